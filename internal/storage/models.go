package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeedSample represents one persisted oracle observation for an asset.
type FeedSample struct {
	Bucket    time.Time
	Asset     string
	Symbol    string
	Price     decimal.Decimal
	RoundID   decimal.Decimal
	UpdatedAt time.Time
	Stale     bool
	Status    string
	Error     *string
	CreatedAt time.Time
}

// HealthSnapshot captures one account's solvency at a sampling bucket.
// HealthFactor is the engine ratio descaled from 1e18 fixed point, so
// 1.0 marks the liquidation boundary. Debt-free accounts are recorded
// with status "debt_free" and the ratio left at zero.
type HealthSnapshot struct {
	Bucket        time.Time
	Account       string
	DebtMinted    decimal.Decimal
	CollateralUsd decimal.Decimal
	HealthFactor  decimal.Decimal
	Status        string
	CreatedAt     time.Time
}

// LiquidationRecord audits a completed liquidation.
type LiquidationRecord struct {
	ID                int64
	OccurredAt        time.Time
	Liquidator        string
	Target            string
	Asset             string
	DebtCovered       decimal.Decimal
	CollateralSeized  decimal.Decimal
	StartHealthFactor decimal.Decimal
	EndHealthFactor   decimal.Decimal
	CreatedAt         time.Time
}
