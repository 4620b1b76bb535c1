package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stablemint/internal/alerting"
	"stablemint/internal/config"
	"stablemint/internal/engine"
	"stablemint/internal/oracle"
	"stablemint/internal/scheduler"
	"stablemint/internal/storage"
)

// PositionReader is the engine surface the monitor needs.
type PositionReader interface {
	Assets() []common.Address
	Feed(asset common.Address) (oracle.Feed, bool)
	Accounts() []common.Address
	AccountInfo(ctx context.Context, account common.Address) (engine.AccountSnapshot, error)
}

// Service orchestrates feed sampling, position scanning, persistence,
// and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	positions PositionReader
	guard     *oracle.Guard
	feedStore storage.FeedSampleStore
	snapStore storage.HealthSnapshotStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	symbols   map[common.Address]string
	threshold decimal.Decimal
	channels  []string
	alertsOn  bool
	locker    storage.AdvisoryLocker
	lockKey   int64
	now       func() time.Time
}

// New constructs the monitoring service. symbols maps asset addresses
// to their display names for samples and alert text.
func New(cfg *config.Config, sched *scheduler.Scheduler, positions PositionReader, guard *oracle.Guard, symbols map[common.Address]string, feedStore storage.FeedSampleStore, snapStore storage.HealthSnapshotStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if cfg.Alerting.Enabled && cfg.Alerting.HealthThreshold > 0 {
		threshold = decimal.NewFromFloat(cfg.Alerting.HealthThreshold)
	}

	var locker storage.AdvisoryLocker
	if l, ok := feedStore.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		positions: positions,
		guard:     guard,
		feedStore: feedStore,
		snapStore: snapStore,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		symbols:   symbols,
		threshold: threshold,
		channels:  cfg.Alerting.Channels,
		alertsOn:  cfg.Alerting.Enabled,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run begins the aligned sampling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket 执行单个时间桶的采样逻辑。
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	s.sampleFeeds(ctx, bucket)
	s.scanPositions(ctx, bucket)
	return nil
}

// sampleFeeds reads every registered feed without the staleness guard
// so that stale quotes are still recorded, then flags and alerts them.
func (s *Service) sampleFeeds(ctx context.Context, bucket time.Time) {
	for _, asset := range s.positions.Assets() {
		feed, ok := s.positions.Feed(asset)
		if !ok {
			continue
		}
		symbol := s.symbols[asset]

		quote, err := s.guard.RawRead(ctx, feed)
		if err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Time("bucket", bucket).Msg("feed read failed")
			msg := err.Error()
			s.persistFeedSample(ctx, storage.FeedSample{
				Bucket:    bucket,
				Asset:     asset.Hex(),
				Symbol:    symbol,
				Price:     decimal.Zero,
				RoundID:   decimal.Zero,
				UpdatedAt: bucket,
				Status:    "errored",
				Error:     &msg,
			})
			continue
		}

		age := s.now().Sub(quote.UpdatedAt)
		stale := age > s.guard.Timeout()
		status := "ok"
		if stale {
			status = "stale"
		}

		s.persistFeedSample(ctx, storage.FeedSample{
			Bucket:    bucket,
			Asset:     asset.Hex(),
			Symbol:    symbol,
			Price:     quote.PriceDecimal(),
			RoundID:   decimal.NewFromBigInt(quote.RoundID, 0),
			UpdatedAt: quote.UpdatedAt,
			Stale:     stale,
			Status:    status,
		})

		if stale {
			s.logger.Warn().Str("symbol", symbol).Dur("age", age).Msg("feed is stale, engine valuations are frozen")
			if !s.alertsOn {
				continue
			}
			s.dispatchAlert(ctx, alerting.Notification{
				Kind:     alerting.KindStaleFeed,
				Bucket:   bucket,
				Symbol:   symbol,
				FeedAge:  age.Truncate(time.Second),
				Channels: s.channels,
			})
		}
	}
}

// scanPositions snapshots every account the engine has seen and alerts
// on health factors below the configured threshold.
func (s *Service) scanPositions(ctx context.Context, bucket time.Time) {
	for _, account := range s.positions.Accounts() {
		info, err := s.positions.AccountInfo(ctx, account)
		if err != nil {
			s.logger.Error().Err(err).Str("account", account.Hex()).Time("bucket", bucket).Msg("account snapshot failed")
			continue
		}

		snap := storage.HealthSnapshot{
			Bucket:        bucket,
			Account:       account.Hex(),
			DebtMinted:    decimal.NewFromBigInt(info.DebtMinted, -18),
			CollateralUsd: decimal.NewFromBigInt(info.CollateralValueUsd, -18),
		}

		if info.DebtMinted.Sign() == 0 {
			snap.Status = "debt_free"
			s.persistSnapshot(ctx, snap)
			continue
		}

		hf := decimal.NewFromBigInt(info.HealthFactor, -18)
		snap.HealthFactor = hf
		snap.Status = "ok"
		if hf.LessThan(decimal.NewFromInt(1)) {
			snap.Status = "unhealthy"
		}
		s.persistSnapshot(ctx, snap)

		if s.alertsOn && s.notifier != nil && !s.threshold.IsZero() && hf.LessThan(s.threshold) {
			s.dispatchAlert(ctx, alerting.Notification{
				Kind:          alerting.KindUnhealthyPosition,
				Bucket:        bucket,
				Account:       account.Hex(),
				HealthFactor:  hf,
				Threshold:     s.threshold,
				DebtMinted:    snap.DebtMinted,
				CollateralUsd: snap.CollateralUsd,
				Channels:      s.channels,
			})
		}
	}
}

func (s *Service) persistFeedSample(ctx context.Context, sample storage.FeedSample) {
	if s.feedStore == nil {
		return
	}
	sample.CreatedAt = s.now()
	if err := s.feedStore.UpsertFeedSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Str("symbol", sample.Symbol).Msg("failed to upsert feed sample")
	}
}

func (s *Service) persistSnapshot(ctx context.Context, snap storage.HealthSnapshot) {
	if s.snapStore == nil {
		return
	}
	snap.CreatedAt = s.now()
	if err := s.snapStore.UpsertHealthSnapshot(ctx, snap); err != nil {
		s.logger.Error().Err(err).Str("account", snap.Account).Msg("failed to upsert health snapshot")
	}
}

func (s *Service) dispatchAlert(ctx context.Context, note alerting.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("kind", note.Kind).Msg("failed to dispatch alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
