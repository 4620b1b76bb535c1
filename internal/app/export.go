package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	chart "github.com/wcharczuk/go-chart/v2"

	"stablemint/internal/storage"
)

// Export renders historical data as CSV and/or PNG. An asset exports
// its feed price series; an account exports its health history.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if (opts.Asset == "") == (opts.Account == "") {
		return errors.New("exactly one of --asset or --account must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	if opts.Asset != "" {
		return a.exportFeedSeries(ctx, store, opts, from, to)
	}
	return a.exportHealthSeries(ctx, store, opts, from, to)
}

// resolveAsset maps a configured symbol to its address, falling back to
// a literal hex address.
func (a *App) resolveAsset(v string) (string, error) {
	for _, ac := range a.Config.Engine.Assets {
		if strings.EqualFold(ac.Symbol, v) {
			return common.HexToAddress(ac.Address).Hex(), nil
		}
	}
	if common.IsHexAddress(v) {
		return common.HexToAddress(v).Hex(), nil
	}
	return "", fmt.Errorf("unknown asset %q", v)
}

func (a *App) exportFeedSeries(ctx context.Context, store *storage.Store, opts ExportOptions, from, to time.Time) error {
	asset, err := a.resolveAsset(opts.Asset)
	if err != nil {
		return err
	}

	samples, err := store.ListFeedSamplesBetween(ctx, asset, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no feed samples found for export window")
		return nil
	}

	samples = downsample(samples, opts.MaxPoints)
	a.Logger.Info().Int("exported", len(samples)).Str("asset", opts.Asset).Msg("exporting feed samples")

	if opts.CSVPath != "" {
		if err := writeFeedCSV(opts.CSVPath, samples); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeFeedPNG(opts.PNGPath, samples); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) exportHealthSeries(ctx context.Context, store *storage.Store, opts ExportOptions, from, to time.Time) error {
	if !common.IsHexAddress(opts.Account) {
		return fmt.Errorf("invalid account address %q", opts.Account)
	}
	account := common.HexToAddress(opts.Account).Hex()

	snaps, err := store.ListSnapshotsBetween(ctx, account, from, to)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		a.Logger.Info().Msg("no health snapshots found for export window")
		return nil
	}

	snaps = downsample(snaps, opts.MaxPoints)
	a.Logger.Info().Int("exported", len(snaps)).Str("account", account).Msg("exporting health snapshots")

	if opts.CSVPath != "" {
		if err := writeHealthCSV(opts.CSVPath, snaps); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeHealthPNG(opts.PNGPath, snaps); err != nil {
			return err
		}
	}
	return nil
}

func downsample[T any](points []T, max int) []T {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]T, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeFeedCSV(path string, samples []storage.FeedSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"bucket_ts", "asset", "symbol", "price", "round_id", "feed_updated_at", "stale", "status", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		errMsg := ""
		if sample.Error != nil {
			errMsg = *sample.Error
		}
		record := []string{
			sample.Bucket.Format(time.RFC3339),
			sample.Asset,
			sample.Symbol,
			sample.Price.String(),
			sample.RoundID.String(),
			sample.UpdatedAt.Format(time.RFC3339),
			fmt.Sprintf("%t", sample.Stale),
			sample.Status,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeFeedPNG(path string, samples []storage.FeedSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	price := make([]float64, len(samples))
	for i, sample := range samples {
		x[i] = sample.Bucket
		price[i] = sample.Price.InexactFloat64()
	}

	symbol := "price"
	if len(samples) > 0 && samples[0].Symbol != "" {
		symbol = samples[0].Symbol
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Price (USD)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    symbol,
				XValues: x,
				YValues: price,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func writeHealthCSV(path string, snaps []storage.HealthSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"bucket_ts", "account", "debt_minted", "collateral_usd", "health_factor", "status"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snap := range snaps {
		record := []string{
			snap.Bucket.Format(time.RFC3339),
			snap.Account,
			snap.DebtMinted.String(),
			snap.CollateralUsd.String(),
			snap.HealthFactor.String(),
			snap.Status,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeHealthPNG(path string, snaps []storage.HealthSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(snaps))
	health := make([]float64, len(snaps))
	boundary := make([]float64, len(snaps))
	for i, snap := range snaps {
		x[i] = snap.Bucket
		health[i] = snap.HealthFactor.InexactFloat64()
		boundary[i] = 1.0
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Health Factor",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.3f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Health",
				XValues: x,
				YValues: health,
			},
			chart.TimeSeries{
				Name:    "Liquidation Boundary",
				XValues: x,
				YValues: boundary,
				Style: chart.Style{
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
