package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FeedTimeout is the maximum age a quote may have before the guard
// refuses it. It outlasts typical feed heartbeats while still freezing
// consumers quickly once a feed stops updating.
const FeedTimeout = 3 * time.Hour

// ErrStalePrice marks a quote older than FeedTimeout. Consumers must
// treat it as a hard stop: no cached fallback exists.
var ErrStalePrice = errors.New("oracle: stale price")

// ErrInvalidPrice marks a quote whose answer is missing, zero, or
// negative. The aggregator answer is a signed integer, so a fresh round
// can still carry a price no valuation math can use.
var ErrInvalidPrice = errors.New("oracle: invalid price")

// Guard wraps feed reads with a staleness check.
type Guard struct {
	timeout time.Duration
	now     func() time.Time
}

// NewGuard builds a guard with the standard timeout.
func NewGuard() *Guard {
	return &Guard{timeout: FeedTimeout, now: time.Now}
}

// NewGuardWithClock builds a guard with an injected clock, used in tests
// and the simulator.
func NewGuardWithClock(timeout time.Duration, now func() time.Time) *Guard {
	if timeout <= 0 {
		timeout = FeedTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{timeout: timeout, now: now}
}

// GuardedRead returns the latest quote, failing when its price is not
// positive or it is older than the timeout. A quote aged exactly the
// timeout still passes.
func (g *Guard) GuardedRead(ctx context.Context, feed Feed) (Quote, error) {
	quote, err := feed.LatestRoundData(ctx)
	if err != nil {
		return Quote{}, err
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: answer %s", ErrInvalidPrice, quote.Price)
	}
	age := g.now().UTC().Sub(quote.UpdatedAt)
	if age > g.timeout {
		return Quote{}, fmt.Errorf("%w: quote age %s exceeds %s", ErrStalePrice, age, g.timeout)
	}
	return quote, nil
}

// RawRead returns the latest quote without the staleness check. Used for
// diagnostics only; valuation paths go through GuardedRead.
func (g *Guard) RawRead(ctx context.Context, feed Feed) (Quote, error) {
	return feed.LatestRoundData(ctx)
}

// Timeout exposes the configured staleness window.
func (g *Guard) Timeout() time.Duration {
	return g.timeout
}
