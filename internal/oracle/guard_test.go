package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGuardedReadFreshQuote(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := NewStaticFeed(big.NewInt(2000_00000000), now.Add(-time.Minute))
	guard := NewGuardWithClock(FeedTimeout, fixedClock(now))

	quote, err := guard.GuardedRead(context.Background(), feed)
	if err != nil {
		t.Fatalf("fresh quote should pass: %v", err)
	}
	if quote.Price.Cmp(big.NewInt(2000_00000000)) != 0 {
		t.Fatalf("unexpected price %s", quote.Price)
	}
}

func TestGuardedReadExactTimeoutPasses(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := NewStaticFeed(big.NewInt(1_00000000), now.Add(-FeedTimeout))
	guard := NewGuardWithClock(FeedTimeout, fixedClock(now))

	if _, err := guard.GuardedRead(context.Background(), feed); err != nil {
		t.Fatalf("quote aged exactly the timeout should pass: %v", err)
	}
}

func TestGuardedReadOneSecondPastTimeoutFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := NewStaticFeed(big.NewInt(1_00000000), now.Add(-FeedTimeout-time.Second))
	guard := NewGuardWithClock(FeedTimeout, fixedClock(now))

	_, err := guard.GuardedRead(context.Background(), feed)
	if !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestGuardedReadRejectsNonPositivePrice(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard := NewGuardWithClock(FeedTimeout, fixedClock(now))

	zero := NewStaticFeed(big.NewInt(0), now)
	if _, err := guard.GuardedRead(context.Background(), zero); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero answer should fail with ErrInvalidPrice, got %v", err)
	}

	negative := NewStaticFeed(big.NewInt(-1), now)
	if _, err := guard.GuardedRead(context.Background(), negative); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("negative answer should fail with ErrInvalidPrice, got %v", err)
	}

	// The diagnostic read still surfaces the raw answer.
	if quote, err := guard.RawRead(context.Background(), zero); err != nil || quote.Price.Sign() != 0 {
		t.Fatalf("raw read should return the broken quote: %v", err)
	}
}

func TestRawReadSkipsStalenessCheck(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := NewStaticFeed(big.NewInt(1_00000000), now.Add(-24*time.Hour))
	guard := NewGuardWithClock(FeedTimeout, fixedClock(now))

	if _, err := guard.RawRead(context.Background(), feed); err != nil {
		t.Fatalf("raw read should ignore staleness: %v", err)
	}
}

func TestGuardedReadPropagatesFeedError(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := NewStaticFeed(big.NewInt(1_00000000), now)
	feed.Fail(errors.New("rpc down"))
	guard := NewGuardWithClock(FeedTimeout, fixedClock(now))

	if _, err := guard.GuardedRead(context.Background(), feed); err == nil {
		t.Fatal("feed error should propagate")
	}
}

func TestQuotePriceDecimal(t *testing.T) {
	now := time.Now().UTC()
	feed := NewStaticFeed(big.NewInt(2000_00000000), now)
	quote, _ := feed.LatestRoundData(context.Background())
	if got := quote.PriceDecimal().String(); got != "2000" {
		t.Fatalf("expected 2000, got %s", got)
	}
}
