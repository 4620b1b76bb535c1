package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent feed samples, health snapshots, and liquidations.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	samples, err := store.ListRecentFeedSamples(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no feed samples found")
	} else {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tSymbol\tPrice\tStale\tStatus\tError")
		for _, sample := range samples {
			errMsg := ""
			if sample.Error != nil {
				errMsg = sanitizeInline(*sample.Error)
			}
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%t\t%s\t%s\n",
				sample.Bucket.UTC().Format(time.RFC3339),
				sample.Symbol,
				sample.Price.StringFixed(2),
				sample.Stale,
				sample.Status,
				errMsg,
			)
		}
		writer.Flush()
	}

	snaps, err := store.ListRecentSnapshots(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(snaps) > 0 {
		fmt.Fprintln(os.Stdout)
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tAccount\tDebt\tCollateral USD\tHealth\tStatus")
		for _, snap := range snaps {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%s\n",
				snap.Bucket.UTC().Format(time.RFC3339),
				shortAddress(snap.Account),
				snap.DebtMinted.StringFixed(2),
				snap.CollateralUsd.StringFixed(2),
				snap.HealthFactor.StringFixed(3),
				snap.Status,
			)
		}
		writer.Flush()
	}

	liqs, err := store.ListRecentLiquidations(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(liqs) > 0 {
		fmt.Fprintln(os.Stdout)
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tLiquidator\tTarget\tAsset\tDebt Covered\tSeized\tHealth")
		for _, rec := range liqs {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%s\t%s -> %s\n",
				rec.OccurredAt.UTC().Format(time.RFC3339),
				shortAddress(rec.Liquidator),
				shortAddress(rec.Target),
				shortAddress(rec.Asset),
				rec.DebtCovered.StringFixed(2),
				rec.CollateralSeized.String(),
				rec.StartHealthFactor.StringFixed(3),
				rec.EndHealthFactor.StringFixed(3),
			)
		}
		writer.Flush()
	}

	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func shortAddress(v string) string {
	if len(v) <= 12 {
		return v
	}
	return v[:8] + ".." + v[len(v)-4:]
}
