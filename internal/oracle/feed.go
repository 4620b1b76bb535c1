package oracle

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single price-feed round. Price carries 8 decimal places,
// matching the shared feed convention.
type Quote struct {
	RoundID         *big.Int
	Price           *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound *big.Int
}

// PriceDecimal renders the raw 8-decimal price as a decimal value.
func (q Quote) PriceDecimal() decimal.Decimal {
	if q.Price == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(q.Price, -8)
}

// Feed exposes the latest round of an external price feed.
type Feed interface {
	LatestRoundData(ctx context.Context) (Quote, error)
}
