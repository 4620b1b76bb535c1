package app

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stablemint/internal/engine"
	"stablemint/internal/oracle"
	"stablemint/internal/service"
	"stablemint/internal/storage"
	"stablemint/internal/token"
)

// Simulate 在内存中演练一次完整的清算流程: 抵押、铸币、价格下跌、
// 第三方清算。With Persist enabled, samples, snapshots, and the
// liquidation record are written to the configured database, and
// configured alert channels fire on the unhealthy position.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	var store *storage.Store
	if opts.Persist {
		opened, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if opened != nil {
			store = opened
			defer closeStore()
		} else {
			a.Logger.Warn().Msg("database.dsn not configured; simulation will not persist")
		}
	}

	var (
		engineAddr = common.HexToAddress("0x00000000000000000000000000000000000000e9")
		wethAddr   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
		borrower   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
		liquidator = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	)

	now := time.Now().UTC()
	feed := oracle.NewStaticFeed(usdPrice(2000), now)
	guard := oracle.NewGuardWithClock(a.Config.Engine.OracleTimeout, func() time.Time { return now })

	wethTok := token.NewLedger("WETH")
	debtTok := token.NewLedger(a.Config.Engine.DebtSymbol)

	eng, err := engine.New(engine.Config{
		Address:   engineAddr,
		Assets:    []common.Address{wethAddr},
		Feeds:     []oracle.Feed{feed},
		Tokens:    map[common.Address]engine.AssetToken{wethAddr: wethTok},
		DebtToken: debtTok,
		Guard:     guard,
	}, a.Logger)
	if err != nil {
		return err
	}
	if err := debtTok.Bind(engineAddr); err != nil {
		return err
	}

	// Faucet collateral and grant the engine spending rights.
	for _, holder := range []common.Address{borrower, liquidator} {
		wethTok.Mint(holder, holder, units(1000))
		wethTok.Approve(holder, engineAddr, units(1000))
		debtTok.Approve(holder, engineAddr, units(1_000_000))
	}

	// Step 1: the borrower locks 50 WETH at $2000 and mints 50,000,
	// landing exactly on the minimum health factor.
	if err := eng.DepositAndMint(ctx, borrower, wethAddr, units(50), units(50_000)); err != nil {
		return err
	}
	a.logHealth(ctx, eng, borrower, "position opened at the boundary")

	// Step 2: the liquidator funds a healthy position of their own.
	if err := eng.DepositAndMint(ctx, liquidator, wethAddr, units(100), units(20_000)); err != nil {
		return err
	}

	// Step 3: the price drops 10% and the borrower goes underwater.
	feed.SetPrice(usdPrice(1800), now)
	a.logHealth(ctx, eng, borrower, "price dropped to $1800")

	bucket := now.Truncate(a.Config.Scheduler.Interval)
	monitor := &Monitor{Engine: eng, Guard: guard, Symbols: map[common.Address]string{wethAddr: "WETH"}}
	a.runMonitorPass(ctx, monitor, store, bucket)

	// Step 4: the liquidator covers 20,000 of debt for collateral plus
	// the 10% bonus.
	receipt, err := eng.Liquidate(ctx, liquidator, wethAddr, borrower, units(20_000))
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("debt_covered", decimal.NewFromBigInt(receipt.DebtCovered, -18).StringFixed(2)).
		Str("collateral_seized", decimal.NewFromBigInt(receipt.CollateralSeized, -18).String()).
		Str("start_health", decimal.NewFromBigInt(receipt.StartHealthFactor, -18).StringFixed(3)).
		Str("end_health", decimal.NewFromBigInt(receipt.EndHealthFactor, -18).StringFixed(3)).
		Msg("simulated liquidation complete")

	if store != nil {
		rec := storage.LiquidationRecord{
			OccurredAt:        now,
			Liquidator:        receipt.Liquidator.Hex(),
			Target:            receipt.Target.Hex(),
			Asset:             receipt.Asset.Hex(),
			DebtCovered:       decimal.NewFromBigInt(receipt.DebtCovered, -18),
			CollateralSeized:  decimal.NewFromBigInt(receipt.CollateralSeized, -18),
			StartHealthFactor: decimal.NewFromBigInt(receipt.StartHealthFactor, -18),
			EndHealthFactor:   decimal.NewFromBigInt(receipt.EndHealthFactor, -18),
		}
		if _, err := store.InsertLiquidation(ctx, rec); err != nil {
			a.Logger.Error().Err(err).Msg("failed to persist liquidation record")
		}
	}

	a.logHealth(ctx, eng, borrower, "after liquidation")
	return nil
}

// runMonitorPass runs one sampling bucket over the simulated engine so
// persistence and alerting see the unhealthy position.
func (a *App) runMonitorPass(ctx context.Context, monitor *Monitor, store *storage.Store, bucket time.Time) {
	notifier := a.newNotifier()
	if store == nil && notifier == nil {
		return
	}

	var feedStore storage.FeedSampleStore
	var snapStore storage.HealthSnapshotStore
	if store != nil {
		feedStore = store
		snapStore = store
	}

	svc := service.New(a.Config, nil, monitor.Engine, monitor.Guard, monitor.Symbols, feedStore, snapStore, notifier, a.Logger)
	if err := svc.ProcessBucket(ctx, bucket); err != nil {
		a.Logger.Error().Err(err).Msg("monitor pass failed")
	}
}

func (a *App) logHealth(ctx context.Context, eng *engine.Engine, account common.Address, msg string) {
	info, err := eng.AccountInfo(ctx, account)
	if err != nil {
		a.Logger.Error().Err(err).Msg("account snapshot failed")
		return
	}
	event := a.Logger.Info().
		Str("account", account.Hex()).
		Str("debt", decimal.NewFromBigInt(info.DebtMinted, -18).StringFixed(2)).
		Str("collateral_usd", decimal.NewFromBigInt(info.CollateralValueUsd, -18).StringFixed(2))
	if info.DebtMinted.Sign() > 0 {
		event = event.Str("health", decimal.NewFromBigInt(info.HealthFactor, -18).StringFixed(3))
	}
	event.Msg(msg)
}

// usdPrice renders a dollar amount in 8-decimal feed precision.
func usdPrice(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), big.NewInt(100_000_000))
}

// units renders a whole-token amount in 18-decimal precision.
func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}
