package feed

import (
	"sync"
	"time"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// Store is the in-memory cache of market state the engine trades against.
// The feed client writes updates; the coordinator and the exit sweep read.
// Every read returns a copy, so callers never see a half-applied update.
type Store struct {
	mu      sync.RWMutex
	markets map[string]types.Market
	now     func() time.Time
}

// NewStore creates an empty market cache.
func NewStore() *Store {
	return &Store{
		markets: make(map[string]types.Market),
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Put upserts a market. An update without a timestamp is stamped with the
// arrival time.
func (s *Store) Put(market types.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if market.UpdatedAt.IsZero() {
		market.UpdatedAt = s.now()
	}
	s.markets[market.ID] = market
}

// Get returns the latest known state of a market.
func (s *Store) Get(marketID string) (types.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	market, ok := s.markets[marketID]
	return market, ok
}

// Fresh returns the market only if its last update is within maxAge. A
// stale or unknown market reads as absent: trading on old quotes is worse
// than not trading.
func (s *Store) Fresh(marketID string, maxAge time.Duration) (types.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	market, ok := s.markets[marketID]
	if !ok {
		return types.Market{}, false
	}
	if s.now().Sub(market.UpdatedAt) > maxAge {
		return types.Market{}, false
	}
	return market, true
}

// All returns a snapshot of every cached market.
func (s *Store) All() []types.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Market, 0, len(s.markets))
	for _, market := range s.markets {
		out = append(out, market)
	}
	return out
}

// Len reports how many markets are cached.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markets)
}
