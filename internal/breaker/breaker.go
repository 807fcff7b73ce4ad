package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/predictdesk/polyrisk/pkg/types"
)

// TransitionSink receives every breaker trip and clear for durable
// recording.
type TransitionSink interface {
	RecordBreaker(rec types.CircuitBreakerRecord)
}

// Machine tracks the trading-halt state. Two reasons exist, each with at
// most one active episode:
//
//   - daily_drawdown trips when the day's realized losses exceed the limit
//     and clears only through an explicit administrative call. Capital
//     preservation bias: nothing resumes automatically after a drawdown.
//   - consecutive_losses trips after the configured number of losing closes
//     in a row and clears itself once the cooldown period has elapsed.
//
// While any episode is active the coordinator rejects every signal, ahead
// of and regardless of the risk evaluator.
type Machine struct {
	mu     sync.Mutex
	active map[types.BreakerReason]*types.CircuitBreakerRecord

	consecutiveLosses int

	limits func() types.RiskLimits
	sink   TransitionSink
	now    func() time.Time

	onTransition func(rec types.CircuitBreakerRecord)
}

// Option configures a Machine.
type Option func(*Machine)

// WithSink attaches a persistence sink for transitions.
func WithSink(sink TransitionSink) Option {
	return func(m *Machine) { m.sink = sink }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithTransitionCallback registers a hook invoked on every trip and clear.
func WithTransitionCallback(fn func(rec types.CircuitBreakerRecord)) Option {
	return func(m *Machine) { m.onTransition = fn }
}

// New creates a breaker machine reading limits through the given getter so
// administrative limit updates take effect immediately.
func New(limits func() types.RiskLimits, opts ...Option) *Machine {
	m := &Machine{
		active: make(map[types.BreakerReason]*types.CircuitBreakerRecord),
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordClose feeds a realized close into the loss-streak tracker. A
// winning close resets the streak; reaching the configured streak trips
// the consecutive-losses breaker.
func (m *Machine) RecordClose(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pnl >= 0 {
		m.consecutiveLosses = 0
		return
	}
	m.consecutiveLosses++

	limits := m.limits()
	if limits.CooldownAfterLosses > 0 && m.consecutiveLosses >= limits.CooldownAfterLosses {
		m.tripLocked(types.BreakerConsecutiveLosses,
			fmt.Sprintf("%d consecutive losing trades", m.consecutiveLosses))
	}
}

// ObserveSnapshot checks the latest portfolio snapshot against the daily
// drawdown limit.
func (m *Machine) ObserveSnapshot(snap types.PortfolioSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limits := m.limits()
	if limits.DailyDrawdownLimitPct > 0 && snap.DailyDrawdown > limits.DailyDrawdownLimitPct {
		m.tripLocked(types.BreakerDailyDrawdown,
			fmt.Sprintf("daily drawdown %.2f%% exceeds limit %.2f%%",
				snap.DailyDrawdown*100, limits.DailyDrawdownLimitPct*100))
	}
}

// Active reports whether any breaker currently halts trading and, if so,
// which reason. Expired consecutive-loss episodes are cleared on the way.
func (m *Machine) Active() (bool, types.BreakerReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()

	// Drawdown dominates in reporting: it requires operator action.
	if _, ok := m.active[types.BreakerDailyDrawdown]; ok {
		return true, types.BreakerDailyDrawdown
	}
	for reason := range m.active {
		return true, reason
	}
	return false, ""
}

// ActiveRecords returns copies of the currently active episodes.
func (m *Machine) ActiveRecords() []types.CircuitBreakerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	out := make([]types.CircuitBreakerRecord, 0, len(m.active))
	for _, rec := range m.active {
		out = append(out, *rec)
	}
	return out
}

// Clear ends an active episode. This is the only way out of a drawdown
// trip and is reserved for the administrative path.
func (m *Machine) Clear(reason types.BreakerReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.active[reason]
	if !ok {
		return fmt.Errorf("breaker: no active %s episode", reason)
	}
	m.clearLocked(rec)
	return nil
}

// LossStreak returns the current count of consecutive losing closes.
func (m *Machine) LossStreak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveLosses
}

func (m *Machine) tripLocked(reason types.BreakerReason, detail string) {
	if _, already := m.active[reason]; already {
		return
	}
	rec := &types.CircuitBreakerRecord{
		ID:          uuid.NewString(),
		Reason:      reason,
		Detail:      detail,
		TriggeredAt: m.now(),
		Status:      types.BreakerActive,
	}
	m.active[reason] = rec
	m.emitLocked(*rec)
}

func (m *Machine) clearLocked(rec *types.CircuitBreakerRecord) {
	clearedAt := m.now()
	rec.ClearedAt = &clearedAt
	rec.Status = types.BreakerCleared
	delete(m.active, rec.Reason)
	if rec.Reason == types.BreakerConsecutiveLosses {
		m.consecutiveLosses = 0
	}
	m.emitLocked(*rec)
}

// expireLocked auto-clears a consecutive-losses episode once the cooldown
// period has elapsed. Drawdown episodes never expire on their own.
func (m *Machine) expireLocked() {
	rec, ok := m.active[types.BreakerConsecutiveLosses]
	if !ok {
		return
	}
	cooldown := m.limits().CooldownPeriod
	if cooldown > 0 && m.now().Sub(rec.TriggeredAt) >= cooldown {
		m.clearLocked(rec)
	}
}

func (m *Machine) emitLocked(rec types.CircuitBreakerRecord) {
	if m.sink != nil {
		m.sink.RecordBreaker(rec)
	}
	if m.onTransition != nil {
		m.onTransition(rec)
	}
}
