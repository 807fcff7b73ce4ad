package reporting

import (
	"sort"
	"time"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// SessionReport aggregates one trading session for the shutdown summary
// and the Excel export.
type SessionReport struct {
	StartedAt       time.Time
	EndedAt         time.Time
	StartingCapital float64
	Final           types.PortfolioSnapshot
	Trades          []types.Trade
	Snapshots       []types.PortfolioSnapshot
	Breakers        []types.CircuitBreakerRecord
}

// Build assembles a report from the ledger's records. Trades are ordered
// by entry time; snapshots arrive already ordered.
func Build(startedAt time.Time, startingCapital float64, final types.PortfolioSnapshot,
	trades []types.Trade, snapshots []types.PortfolioSnapshot,
	breakers []types.CircuitBreakerRecord) *SessionReport {

	sorted := make([]types.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EntryTime.Before(sorted[j].EntryTime)
	})

	return &SessionReport{
		StartedAt:       startedAt,
		EndedAt:         time.Now(),
		StartingCapital: startingCapital,
		Final:           final,
		Trades:          sorted,
		Snapshots:       snapshots,
		Breakers:        breakers,
	}
}

// Closed returns the trades that reached a terminal status.
func (r *SessionReport) Closed() []types.Trade {
	out := make([]types.Trade, 0, len(r.Trades))
	for _, t := range r.Trades {
		if t.Status != types.TradeOpen {
			out = append(out, t)
		}
	}
	return out
}

// Open returns the positions still on the book at shutdown.
func (r *SessionReport) Open() []types.Trade {
	out := make([]types.Trade, 0, len(r.Trades))
	for _, t := range r.Trades {
		if t.Status == types.TradeOpen {
			out = append(out, t)
		}
	}
	return out
}

// RealizedPnL sums PnL over closed trades.
func (r *SessionReport) RealizedPnL() float64 {
	total := 0.0
	for _, t := range r.Closed() {
		total += t.PnL
	}
	return total
}

// WinRate returns the fraction of closed trades with positive PnL, and
// whether any trades closed at all.
func (r *SessionReport) WinRate() (float64, bool) {
	closed := r.Closed()
	if len(closed) == 0 {
		return 0, false
	}
	wins := 0
	for _, t := range closed {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(closed)), true
}

// TotalReturn is the session return on starting capital, realized and
// unrealized together.
func (r *SessionReport) TotalReturn() float64 {
	if r.StartingCapital <= 0 {
		return 0
	}
	return (r.Final.TotalCapital + r.Final.UnrealizedPnL - r.StartingCapital) / r.StartingCapital
}
