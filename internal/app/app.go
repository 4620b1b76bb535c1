package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"stablemint/internal/alerting"
	"stablemint/internal/config"
	"stablemint/internal/engine"
	"stablemint/internal/oracle"
	"stablemint/internal/scheduler"
	"stablemint/internal/service"
	"stablemint/internal/storage"
	"stablemint/internal/token"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// Monitor bundles the engine built from config together with its
// staleness guard and per-asset display names.
type Monitor struct {
	Engine  *engine.Engine
	Guard   *oracle.Guard
	Symbols map[common.Address]string
}

// buildMonitor wires Chainlink feeds and in-process token ledgers into
// an engine per the configured asset registry. Minting authority over
// the debt token is bound to the engine before the handle is returned.
func (a *App) buildMonitor() (*Monitor, error) {
	guard := oracle.NewGuardWithClock(a.Config.Engine.OracleTimeout, nil)

	assets := make([]common.Address, 0, len(a.Config.Engine.Assets))
	feeds := make([]oracle.Feed, 0, len(a.Config.Engine.Assets))
	tokens := make(map[common.Address]engine.AssetToken, len(a.Config.Engine.Assets))
	symbols := make(map[common.Address]string, len(a.Config.Engine.Assets))

	for _, ac := range a.Config.Engine.Assets {
		addr := common.HexToAddress(ac.Address)
		feed := oracle.NewChainlinkFeed(oracle.ChainlinkOptions{
			RPCURL:  a.Config.Ethereum.RPCURL,
			Address: common.HexToAddress(ac.FeedAddress),
			Timeout: a.Config.Ethereum.RequestTimeout,
		}, a.Logger)

		assets = append(assets, addr)
		feeds = append(feeds, feed)
		tokens[addr] = token.NewLedger(ac.Symbol)
		symbols[addr] = ac.Symbol
	}

	engineAddr := common.HexToAddress(a.Config.Engine.Address)
	debt := token.NewLedger(a.Config.Engine.DebtSymbol)

	eng, err := engine.New(engine.Config{
		Address:   engineAddr,
		Assets:    assets,
		Feeds:     feeds,
		Tokens:    tokens,
		DebtToken: debt,
		Guard:     guard,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	if err := debt.Bind(engineAddr); err != nil {
		return nil, err
	}

	return &Monitor{Engine: eng, Guard: guard, Symbols: symbols}, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	monitor, err := a.buildMonitor()
	if err != nil {
		return err
	}
	if len(a.Config.Engine.Assets) == 0 {
		a.Logger.Warn().Msg("engine.assets not configured; nothing to sample")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	notifier := a.newNotifier()

	var feedStore storage.FeedSampleStore
	var snapStore storage.HealthSnapshotStore
	if store != nil {
		feedStore = store
		snapStore = store
	}

	svc := service.New(a.Config, sched, monitor.Engine, monitor.Guard, monitor.Symbols, feedStore, snapStore, notifier, a.Logger)

	a.Logger.Info().Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical data. Asset
// selects a feed price series; Account selects a health history.
type ExportOptions struct {
	Asset     string
	Account   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure the scripted liquidation scenario.
type SimulateOptions struct {
	Persist bool
}
