package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/predictdesk/polyrisk/pkg/types"
)

// Rounding tolerance for the capital invariant. Capital is tracked in
// float64; equality checks across many fills need slack.
const epsilon = 1e-6

var (
	// ErrNoSnapshot is returned when the ledger has no state yet.
	ErrNoSnapshot = errors.New("ledger: no snapshot available")
	// ErrInsufficientCapital is returned when an entry would overdraw
	// available capital.
	ErrInsufficientCapital = errors.New("ledger: insufficient available capital")
	// ErrUnknownTrade is returned for a close against an id the ledger
	// never issued.
	ErrUnknownTrade = errors.New("ledger: unknown trade")
	// ErrAlreadyClosed is returned when a trade is closed twice. The second
	// close has no effect on PnL.
	ErrAlreadyClosed = errors.New("ledger: trade already closed")
	// ErrInvariantViolation means internal accounting no longer balances.
	// This must never happen in correct operation; callers halt admission.
	ErrInvariantViolation = errors.New("ledger: capital invariant violation")
)

// Sink receives every committed trade and snapshot for durable recording.
// Implementations must not block the ledger's critical section for long.
type Sink interface {
	RecordTrade(t types.Trade)
	RecordSnapshot(s types.PortfolioSnapshot)
}

// Ledger is the authoritative record of capital, open positions and PnL.
// All mutations append a new immutable snapshot instead of editing state in
// place, so the full history stays available for point-in-time audit.
//
// The ledger is the single writer for Trade and PortfolioSnapshot records;
// callers serialize risk evaluation against it through the admission queue.
type Ledger struct {
	mu        sync.Mutex
	snapshots []types.PortfolioSnapshot
	trades    map[string]*types.Trade
	openOrder []string

	sink Sink
	now  func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSink attaches a persistence sink.
func WithSink(sink Sink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger seeded with the starting capital snapshot.
func New(startingCapital float64, opts ...Option) *Ledger {
	l := &Ledger{
		trades: make(map[string]*types.Trade),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	initial := types.PortfolioSnapshot{
		ID:               uuid.NewString(),
		TotalCapital:     startingCapital,
		AvailableCapital: startingCapital,
		Timestamp:        l.now(),
	}
	l.snapshots = append(l.snapshots, initial)
	if l.sink != nil {
		l.sink.RecordSnapshot(initial)
	}
	return l
}

// CurrentState returns the latest snapshot. Daily counters roll over to
// zero when the calendar day has changed since the last mutation.
func (l *Ledger) CurrentState() (types.PortfolioSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.snapshots) == 0 {
		return types.PortfolioSnapshot{}, ErrNoSnapshot
	}
	l.rolloverLocked()
	return l.snapshots[len(l.snapshots)-1], nil
}

// History returns a copy of every snapshot, oldest first.
func (l *Ledger) History() []types.PortfolioSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.PortfolioSnapshot, len(l.snapshots))
	copy(out, l.snapshots)
	return out
}

// OpenTrades returns copies of all open positions in entry order.
func (l *Ledger) OpenTrades() []types.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Trade, 0, len(l.openOrder))
	for _, id := range l.openOrder {
		if t := l.trades[id]; t != nil && t.Status == types.TradeOpen {
			out = append(out, *t)
		}
	}
	return out
}

// AllTrades returns copies of every trade the ledger has seen.
func (l *Ledger) AllTrades() []types.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Trade, 0, len(l.trades))
	for _, t := range l.trades {
		out = append(out, *t)
	}
	return out
}

// Trade looks up a single trade by id.
func (l *Ledger) Trade(id string) (types.Trade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.trades[id]
	if !ok {
		return types.Trade{}, false
	}
	return *t, true
}

// OpenRequest describes a position entry.
type OpenRequest struct {
	SignalID   string
	MarketID   string
	Category   string
	Side       types.Side
	Quantity   float64
	EntryPrice float64
	Costs      float64
}

// OpenPosition atomically creates an open trade and appends the snapshot
// reflecting the reduced available capital. Entry costs (fees, slippage)
// are charged against total capital immediately.
func (l *Ledger) OpenPosition(req OpenRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.snapshots) == 0 {
		return "", ErrNoSnapshot
	}
	if req.Quantity <= 0 || req.EntryPrice <= 0 {
		return "", fmt.Errorf("ledger: non-positive quantity or price (qty=%.4f price=%.4f)", req.Quantity, req.EntryPrice)
	}
	l.rolloverLocked()

	prev := l.snapshots[len(l.snapshots)-1]
	notional := req.Quantity * req.EntryPrice
	if notional+req.Costs > prev.AvailableCapital+epsilon {
		return "", ErrInsufficientCapital
	}

	now := l.now()
	trade := &types.Trade{
		ID:         uuid.NewString(),
		SignalID:   req.SignalID,
		MarketID:   req.MarketID,
		Category:   req.Category,
		Side:       req.Side,
		Quantity:   req.Quantity,
		EntryPrice: req.EntryPrice,
		EntryCosts: req.Costs,
		EntryTime:  now,
		Status:     types.TradeOpen,
	}

	next := prev
	next.ID = uuid.NewString()
	next.TotalCapital = prev.TotalCapital - req.Costs
	next.AvailableCapital = prev.AvailableCapital - notional - req.Costs
	next.InvestedCapital = prev.InvestedCapital + notional
	next.OpenPositions = prev.OpenPositions + 1
	next.TradesToday = prev.TradesToday + 1
	next.Timestamp = now

	if err := l.commitLocked(next, trade); err != nil {
		return "", err
	}
	return trade.ID, nil
}

// ClosePosition realizes PnL for an open trade and appends the resulting
// snapshot. PnL follows (exit-entry)*qty - entry costs - exit costs for a
// "yes" position, sign-inverted on the price move for "no". Closing an
// already-closed trade fails with ErrAlreadyClosed and changes nothing.
func (l *Ledger) ClosePosition(tradeID string, exitPrice, costs float64, status types.TradeStatus) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.snapshots) == 0 {
		return 0, ErrNoSnapshot
	}
	trade, ok := l.trades[tradeID]
	if !ok {
		return 0, ErrUnknownTrade
	}
	if trade.Status != types.TradeOpen {
		return 0, ErrAlreadyClosed
	}
	if status != types.TradeClosed && status != types.TradeStoppedOut {
		status = types.TradeClosed
	}
	l.rolloverLocked()

	prev := l.snapshots[len(l.snapshots)-1]
	move := (exitPrice - trade.EntryPrice) * trade.Quantity
	if trade.Side == types.SideNo {
		move = -move
	}
	pnl := move - trade.EntryCosts - costs
	notional := trade.Notional()

	now := l.now()
	updated := *trade
	updated.ExitPrice = exitPrice
	updated.ExitCosts = costs
	updated.ExitTime = now
	updated.PnL = pnl
	updated.Status = status

	// Entry costs were already charged at open; only the price move and
	// exit costs hit capital now.
	capitalDelta := move - costs

	next := prev
	next.ID = uuid.NewString()
	next.TotalCapital = prev.TotalCapital + capitalDelta
	next.AvailableCapital = prev.AvailableCapital + notional + capitalDelta
	next.InvestedCapital = prev.InvestedCapital - notional
	next.OpenPositions = prev.OpenPositions - 1
	next.RealizedPnLToday = prev.RealizedPnLToday + pnl
	next.Timestamp = now
	next.DailyDrawdown = drawdown(next.RealizedPnLToday, next.TotalCapital)

	*trade = updated
	if err := l.commitLocked(next, trade); err != nil {
		// Roll the trade back so a failed commit leaves no trace.
		updated.Status = types.TradeOpen
		updated.ExitPrice, updated.ExitCosts, updated.PnL = 0, 0, 0
		updated.ExitTime = time.Time{}
		*trade = updated
		return 0, err
	}
	return pnl, nil
}

// MarkToMarket revalues open positions against current quotes and appends a
// snapshot with the refreshed unrealized PnL. Markets with no quote keep
// their last valuation out of the total.
func (l *Ledger) MarkToMarket(quote func(marketID string, side types.Side) (float64, bool)) (types.PortfolioSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.snapshots) == 0 {
		return types.PortfolioSnapshot{}, ErrNoSnapshot
	}
	l.rolloverLocked()

	unrealized := 0.0
	for _, id := range l.openOrder {
		t := l.trades[id]
		if t == nil || t.Status != types.TradeOpen {
			continue
		}
		if price, ok := quote(t.MarketID, t.Side); ok {
			unrealized += t.UnrealizedPnL(price)
		}
	}

	prev := l.snapshots[len(l.snapshots)-1]
	if math.Abs(prev.UnrealizedPnL-unrealized) < epsilon {
		return prev, nil
	}
	next := prev
	next.ID = uuid.NewString()
	next.UnrealizedPnL = unrealized
	next.Timestamp = l.now()

	if err := l.commitLocked(next, nil); err != nil {
		return types.PortfolioSnapshot{}, err
	}
	return next, nil
}

// commitLocked verifies the candidate snapshot against the invariants and
// only then appends it and records the trade mutation.
func (l *Ledger) commitLocked(next types.PortfolioSnapshot, trade *types.Trade) error {
	if err := l.checkInvariantsLocked(next, trade); err != nil {
		return err
	}

	if trade != nil {
		if _, known := l.trades[trade.ID]; !known {
			l.trades[trade.ID] = trade
			l.openOrder = append(l.openOrder, trade.ID)
		}
	}
	l.snapshots = append(l.snapshots, next)

	if l.sink != nil {
		if trade != nil {
			l.sink.RecordTrade(*trade)
		}
		l.sink.RecordSnapshot(next)
	}
	return nil
}

// checkInvariantsLocked enforces the capital identity against the candidate
// snapshot. trade is the pending mutation not yet in the maps (nil for
// valuation-only snapshots).
func (l *Ledger) checkInvariantsLocked(next types.PortfolioSnapshot, pending *types.Trade) error {
	tolerance := epsilon * math.Max(1, math.Abs(next.TotalCapital))

	if diff := next.AvailableCapital + next.InvestedCapital - next.TotalCapital; math.Abs(diff) > tolerance {
		return fmt.Errorf("%w: available %.6f + invested %.6f != total %.6f",
			ErrInvariantViolation, next.AvailableCapital, next.InvestedCapital, next.TotalCapital)
	}
	if next.AvailableCapital < -tolerance {
		return fmt.Errorf("%w: negative available capital %.6f", ErrInvariantViolation, next.AvailableCapital)
	}

	invested := 0.0
	for _, t := range l.trades {
		if t.Status == types.TradeOpen {
			invested += t.Notional()
		}
	}
	if pending != nil {
		if _, known := l.trades[pending.ID]; !known && pending.Status == types.TradeOpen {
			invested += pending.Notional()
		}
	}
	if math.Abs(invested-next.InvestedCapital) > tolerance {
		return fmt.Errorf("%w: open notional %.6f != invested capital %.6f",
			ErrInvariantViolation, invested, next.InvestedCapital)
	}
	return nil
}

// rolloverLocked resets the daily counters when the calendar day changed
// since the last snapshot.
func (l *Ledger) rolloverLocked() {
	last := l.snapshots[len(l.snapshots)-1]
	now := l.now()
	if sameDay(last.Timestamp, now) {
		return
	}

	next := last
	next.ID = uuid.NewString()
	next.RealizedPnLToday = 0
	next.DailyDrawdown = 0
	next.TradesToday = 0
	next.Timestamp = now
	l.snapshots = append(l.snapshots, next)
	if l.sink != nil {
		l.sink.RecordSnapshot(next)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// drawdown converts today's realized losses into a positive fraction of
// total capital. Profitable days report zero.
func drawdown(realizedToday, total float64) float64 {
	if total <= 0 || realizedToday >= 0 {
		return 0
	}
	return -realizedToday / total
}
