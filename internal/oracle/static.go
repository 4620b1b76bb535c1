package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// StaticFeed is an in-memory feed backed by a settable quote. The
// simulator and tests drive price movement through it.
type StaticFeed struct {
	mu    sync.Mutex
	quote Quote
	err   error
}

// NewStaticFeed seeds a feed with an 8-decimal price and update time.
func NewStaticFeed(price *big.Int, updatedAt time.Time) *StaticFeed {
	return &StaticFeed{quote: Quote{
		RoundID:         big.NewInt(1),
		Price:           new(big.Int).Set(price),
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: big.NewInt(1),
	}}
}

// SetPrice moves the feed to a new price, advancing the round.
func (s *StaticFeed) SetPrice(price *big.Int, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quote.RoundID = new(big.Int).Add(s.quote.RoundID, big.NewInt(1))
	s.quote.Price = new(big.Int).Set(price)
	s.quote.StartedAt = updatedAt
	s.quote.UpdatedAt = updatedAt
	s.quote.AnsweredInRound = new(big.Int).Set(s.quote.RoundID)
	s.err = nil
}

// Fail makes subsequent reads return err until cleared with SetPrice.
func (s *StaticFeed) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// LatestRoundData returns the current quote.
func (s *StaticFeed) LatestRoundData(ctx context.Context) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Quote{}, s.err
	}
	return s.quote, nil
}

var _ Feed = (*StaticFeed)(nil)
