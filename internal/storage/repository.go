package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertFeedSampleSQL = `INSERT INTO feed_samples (
        bucket_ts,
        asset,
        symbol,
        price,
        round_id,
        feed_updated_at,
        stale,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (bucket_ts, asset) DO UPDATE
    SET
        symbol          = EXCLUDED.symbol,
        price           = EXCLUDED.price,
        round_id        = EXCLUDED.round_id,
        feed_updated_at = EXCLUDED.feed_updated_at,
        stale           = EXCLUDED.stale,
        status          = EXCLUDED.status,
        error           = EXCLUDED.error;`

	listFeedSamplesBetweenSQL = `SELECT
        bucket_ts,
        asset,
        symbol,
        price,
        round_id,
        feed_updated_at,
        stale,
        status,
        error,
        created_at
    FROM feed_samples
    WHERE asset = $1
      AND bucket_ts >= $2
      AND bucket_ts < $3
    ORDER BY bucket_ts;`

	listRecentFeedSamplesSQL = `SELECT
        bucket_ts,
        asset,
        symbol,
        price,
        round_id,
        feed_updated_at,
        stale,
        status,
        error,
        created_at
    FROM feed_samples
    ORDER BY bucket_ts DESC, asset
    LIMIT $1;`

	countFeedSamplesSQL = `SELECT COUNT(*) FROM feed_samples;`

	upsertHealthSnapshotSQL = `INSERT INTO health_snapshots (
        bucket_ts,
        account,
        debt_minted,
        collateral_usd,
        health_factor,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (bucket_ts, account) DO UPDATE
    SET debt_minted    = EXCLUDED.debt_minted,
        collateral_usd = EXCLUDED.collateral_usd,
        health_factor  = EXCLUDED.health_factor,
        status         = EXCLUDED.status;`

	listSnapshotsBetweenSQL = `SELECT
        bucket_ts,
        account,
        debt_minted,
        collateral_usd,
        health_factor,
        status,
        created_at
    FROM health_snapshots
    WHERE account = $1
      AND bucket_ts >= $2
      AND bucket_ts < $3
    ORDER BY bucket_ts;`

	listRecentSnapshotsSQL = `SELECT
        bucket_ts,
        account,
        debt_minted,
        collateral_usd,
        health_factor,
        status,
        created_at
    FROM health_snapshots
    ORDER BY bucket_ts DESC, account
    LIMIT $1;`

	insertLiquidationSQL = `INSERT INTO liquidation_records (
        occurred_at,
        liquidator,
        target,
        asset,
        debt_covered,
        collateral_seized,
        start_health_factor,
        end_health_factor
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, occurred_at, liquidator, target, asset,
        debt_covered, collateral_seized,
        start_health_factor, end_health_factor, created_at;`

	listRecentLiquidationsSQL = `SELECT
        id,
        occurred_at,
        liquidator,
        target,
        asset,
        debt_covered,
        collateral_seized,
        start_health_factor,
        end_health_factor,
        created_at
    FROM liquidation_records
    ORDER BY occurred_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// FeedSampleStore defines operations for oracle sample persistence.
type FeedSampleStore interface {
	UpsertFeedSample(ctx context.Context, sample FeedSample) error
	ListFeedSamplesBetween(ctx context.Context, asset string, from, to time.Time) ([]FeedSample, error)
	ListRecentFeedSamples(ctx context.Context, limit int) ([]FeedSample, error)
	CountFeedSamples(ctx context.Context) (int64, error)
}

// HealthSnapshotStore defines operations for position history.
type HealthSnapshotStore interface {
	UpsertHealthSnapshot(ctx context.Context, snap HealthSnapshot) error
	ListSnapshotsBetween(ctx context.Context, account string, from, to time.Time) ([]HealthSnapshot, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]HealthSnapshot, error)
}

// LiquidationStore defines operations for liquidation auditing.
type LiquidationStore interface {
	InsertLiquidation(ctx context.Context, rec LiquidationRecord) (LiquidationRecord, error)
	ListRecentLiquidations(ctx context.Context, limit int) ([]LiquidationRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to feed samples, health snapshots, and
// liquidation records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertFeedSample persists or updates an oracle observation.
func (s *Store) UpsertFeedSample(ctx context.Context, sample FeedSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertFeedSampleSQL,
		sample.Bucket,
		sample.Asset,
		sample.Symbol,
		sample.Price.String(),
		sample.RoundID.String(),
		sample.UpdatedAt,
		sample.Stale,
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert feed sample: %w", execErr)
	}
	return nil
}

// ListFeedSamplesBetween lists one asset's samples within a time window.
func (s *Store) ListFeedSamplesBetween(ctx context.Context, asset string, from, to time.Time) ([]FeedSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFeedSamplesBetweenSQL, asset, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list feed samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]FeedSample, 0)
	for rows.Next() {
		sample, scanErr := scanFeedSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// ListRecentFeedSamples lists the most recent samples across all assets.
func (s *Store) ListRecentFeedSamples(ctx context.Context, limit int) ([]FeedSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentFeedSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent feed samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]FeedSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanFeedSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountFeedSamples counts stored oracle observations.
func (s *Store) CountFeedSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countFeedSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count feed samples: %w", scanErr)
	}
	return count, nil
}

// UpsertHealthSnapshot persists or updates an account snapshot.
func (s *Store) UpsertHealthSnapshot(ctx context.Context, snap HealthSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertHealthSnapshotSQL,
		snap.Bucket,
		snap.Account,
		snap.DebtMinted.String(),
		snap.CollateralUsd.String(),
		snap.HealthFactor.String(),
		snap.Status,
	)
	if execErr != nil {
		return fmt.Errorf("upsert health snapshot: %w", execErr)
	}
	return nil
}

// ListSnapshotsBetween lists one account's snapshots within a window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, account string, from, to time.Time) ([]HealthSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, account, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	snaps := make([]HealthSnapshot, 0)
	for rows.Next() {
		snap, scanErr := scanHealthSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

// ListRecentSnapshots lists the most recent snapshots across accounts.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]HealthSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	snaps := make([]HealthSnapshot, 0, limit)
	for rows.Next() {
		snap, scanErr := scanHealthSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

// InsertLiquidation persists a completed liquidation.
func (s *Store) InsertLiquidation(ctx context.Context, rec LiquidationRecord) (LiquidationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return LiquidationRecord{}, err
	}

	row := pool.QueryRow(ctx, insertLiquidationSQL,
		rec.OccurredAt,
		rec.Liquidator,
		rec.Target,
		rec.Asset,
		rec.DebtCovered.String(),
		rec.CollateralSeized.String(),
		rec.StartHealthFactor.String(),
		rec.EndHealthFactor.String(),
	)

	saved, scanErr := scanLiquidation(row)
	if scanErr != nil {
		return LiquidationRecord{}, fmt.Errorf("insert liquidation: %w", scanErr)
	}
	return saved, nil
}

// ListRecentLiquidations lists the most recent liquidations.
func (s *Store) ListRecentLiquidations(ctx context.Context, limit int) ([]LiquidationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentLiquidationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent liquidations: %w", queryErr)
	}
	defer rows.Close()

	recs := make([]LiquidationRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanLiquidation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		recs = append(recs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recs, nil
}

func scanFeedSample(row pgx.Row) (FeedSample, error) {
	var (
		bucket    time.Time
		asset     string
		symbol    string
		priceStr  string
		roundStr  string
		updatedAt time.Time
		stale     bool
		status    string
		errMsg    sql.NullString
		createdAt time.Time
	)

	if err := row.Scan(
		&bucket,
		&asset,
		&symbol,
		&priceStr,
		&roundStr,
		&updatedAt,
		&stale,
		&status,
		&errMsg,
		&createdAt,
	); err != nil {
		return FeedSample{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return FeedSample{}, fmt.Errorf("parse price: %w", err)
	}
	roundID, err := decimal.NewFromString(roundStr)
	if err != nil {
		return FeedSample{}, fmt.Errorf("parse round id: %w", err)
	}

	sample := FeedSample{
		Bucket:    bucket,
		Asset:     asset,
		Symbol:    symbol,
		Price:     price,
		RoundID:   roundID,
		UpdatedAt: updatedAt,
		Stale:     stale,
		Status:    status,
		CreatedAt: createdAt,
	}
	if errMsg.Valid {
		msg := errMsg.String
		sample.Error = &msg
	}
	return sample, nil
}

func scanHealthSnapshot(row pgx.Row) (HealthSnapshot, error) {
	var (
		bucket    time.Time
		account   string
		debtStr   string
		collStr   string
		hfStr     string
		status    string
		createdAt time.Time
	)

	if err := row.Scan(
		&bucket,
		&account,
		&debtStr,
		&collStr,
		&hfStr,
		&status,
		&createdAt,
	); err != nil {
		return HealthSnapshot{}, err
	}

	debt, err := decimal.NewFromString(debtStr)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("parse debt minted: %w", err)
	}
	coll, err := decimal.NewFromString(collStr)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("parse collateral usd: %w", err)
	}
	hf, err := decimal.NewFromString(hfStr)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("parse health factor: %w", err)
	}

	return HealthSnapshot{
		Bucket:        bucket,
		Account:       account,
		DebtMinted:    debt,
		CollateralUsd: coll,
		HealthFactor:  hf,
		Status:        status,
		CreatedAt:     createdAt,
	}, nil
}

func scanLiquidation(row pgx.Row) (LiquidationRecord, error) {
	var (
		rec       LiquidationRecord
		debtStr   string
		seizedStr string
		startStr  string
		endStr    string
	)

	if err := row.Scan(
		&rec.ID,
		&rec.OccurredAt,
		&rec.Liquidator,
		&rec.Target,
		&rec.Asset,
		&debtStr,
		&seizedStr,
		&startStr,
		&endStr,
		&rec.CreatedAt,
	); err != nil {
		return LiquidationRecord{}, err
	}

	var convErr error
	rec.DebtCovered, convErr = decimal.NewFromString(debtStr)
	if convErr != nil {
		return LiquidationRecord{}, fmt.Errorf("parse debt covered: %w", convErr)
	}
	rec.CollateralSeized, convErr = decimal.NewFromString(seizedStr)
	if convErr != nil {
		return LiquidationRecord{}, fmt.Errorf("parse collateral seized: %w", convErr)
	}
	rec.StartHealthFactor, convErr = decimal.NewFromString(startStr)
	if convErr != nil {
		return LiquidationRecord{}, fmt.Errorf("parse start health factor: %w", convErr)
	}
	rec.EndHealthFactor, convErr = decimal.NewFromString(endStr)
	if convErr != nil {
		return LiquidationRecord{}, fmt.Errorf("parse end health factor: %w", convErr)
	}
	return rec, nil
}
