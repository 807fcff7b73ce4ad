package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/predictdesk/polyrisk/internal/admission"
	"github.com/predictdesk/polyrisk/internal/breaker"
	"github.com/predictdesk/polyrisk/internal/config"
	engineerrors "github.com/predictdesk/polyrisk/internal/errors"
	"github.com/predictdesk/polyrisk/internal/feed"
	"github.com/predictdesk/polyrisk/internal/ledger"
	"github.com/predictdesk/polyrisk/internal/logger"
	"github.com/predictdesk/polyrisk/internal/monitoring"
	"github.com/predictdesk/polyrisk/internal/risk"
	"github.com/predictdesk/polyrisk/internal/settlement"
	"github.com/predictdesk/polyrisk/pkg/types"
)

// Coordinator drives a signal from arrival to a terminal result:
//
//	validate -> staleness check -> admission queue -> breaker gate ->
//	risk evaluation -> settlement -> ledger commit
//
// Everything after admission runs inside the queue's single evaluation
// slot, so concurrent signals see each other's committed effects and can
// never double-spend the same risk budget. The ledger is only touched
// after a confirmed fill; a settlement failure leaves no trace.
type Coordinator struct {
	cfg     config.ExecutionConfig
	ledger  *ledger.Ledger
	breaker *breaker.Machine
	limits  *risk.LimitsHolder
	queue   *admission.Queue
	settler settlement.Settler
	markets *feed.Store
	journal *logger.Journal
	health  *monitoring.HealthChecker
	now     func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithHealth attaches the health checker the coordinator reports into.
func WithHealth(h *monitoring.HealthChecker) Option {
	return func(c *Coordinator) { c.health = h }
}

// New wires a coordinator over the shared ledger, breaker and market cache.
func New(cfg config.ExecutionConfig, led *ledger.Ledger, brk *breaker.Machine,
	limits *risk.LimitsHolder, settler settlement.Settler, markets *feed.Store,
	journal *logger.Journal, opts ...Option) *Coordinator {

	c := &Coordinator{
		cfg:     cfg,
		ledger:  led,
		breaker: brk,
		limits:  limits,
		queue:   admission.New(),
		settler: settler,
		markets: markets,
		journal: journal,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run services the admission queue until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.queue.Run(ctx, c.evaluate)
}

// Submit takes one signal through the full pipeline and blocks until its
// terminal result. Safe for concurrent use from any number of sources.
func (c *Coordinator) Submit(ctx context.Context, signal types.Signal) types.ExecutionResult {
	if err := signal.Validate(); err != nil {
		return c.rejected(signal, types.Reject(types.RejectInvalidSignal, err.Error()))
	}

	// Pre-admission staleness check: don't occupy the evaluation slot for
	// a market we can't trust the quote of. Re-checked after admission.
	if _, ok := c.markets.Fresh(signal.MarketID, c.cfg.StalenessWindow); !ok {
		return c.rejected(signal, types.Reject(types.RejectStaleMarketData,
			fmt.Sprintf("no market data for %s within %s", signal.MarketID, c.cfg.StalenessWindow)))
	}

	return c.queue.Submit(ctx, signal)
}

// Withdraw cancels a signal still waiting for admission.
func (c *Coordinator) Withdraw(signalID string) bool {
	return c.queue.Withdraw(signalID)
}

// Halted reports whether the fail-safe has stopped admission.
func (c *Coordinator) Halted() bool {
	return c.queue.Halted()
}

// Halt stops all admission permanently. Invoked on ledger invariant
// violations; only a restart resumes trading.
func (c *Coordinator) Halt(reason string) {
	c.journal.Error("EXECUTION HALTED: %s", reason)
	if c.health != nil {
		c.health.SetHalted(reason)
	}
	c.queue.Halt(reason)
}

// evaluate runs inside the admission queue's single slot.
func (c *Coordinator) evaluate(ctx context.Context, signal types.Signal) types.ExecutionResult {
	if active, reason := c.breaker.Active(); active {
		return c.rejected(signal, types.Reject(types.RejectCircuitBreakerActive,
			fmt.Sprintf("circuit breaker active: %s", reason)))
	}

	// The signal may have queued behind slow evaluations; the quote that
	// passed the pre-admission check can be stale by now.
	market, ok := c.markets.Fresh(signal.MarketID, c.cfg.StalenessWindow)
	if !ok {
		return c.rejected(signal, types.Reject(types.RejectStaleMarketData,
			fmt.Sprintf("market data for %s went stale in queue", signal.MarketID)))
	}

	snapshot, err := c.ledger.CurrentState()
	if err != nil {
		return c.failed(signal, fmt.Sprintf("ledger unavailable: %v", err))
	}

	decision := risk.Evaluate(signal, market, snapshot, c.limits.Get(), c.ledger.OpenTrades())
	if !decision.Approved {
		return c.rejected(signal, decision)
	}

	refPrice := market.PriceFor(signal.Side)
	quantity := decision.Size / refPrice

	settleCtx, cancel := context.WithTimeout(ctx, c.cfg.SettlementTimeout)
	fill, err := c.settler.Open(settleCtx, market, signal.Side, quantity, refPrice)
	cancel()
	if err != nil {
		settleErr := engineerrors.NewSettlement("coordinator", "open", err)
		c.journal.Warning("Settlement failed for signal %s: %v (retryable=%t)",
			signal.ID, settleErr, settleErr.Retryable())
		return c.failed(signal, settleErr.Error())
	}

	if slip := math.Abs(fill.Price-refPrice) / refPrice; slip > c.cfg.SlippageTolerance {
		return c.failed(signal, fmt.Sprintf("fill at %.4f slipped %.2f%% beyond tolerance from %.4f",
			fill.Price, slip*100, refPrice))
	}

	tradeID, err := c.ledger.OpenPosition(ledger.OpenRequest{
		SignalID:   signal.ID,
		MarketID:   signal.MarketID,
		Category:   market.Category,
		Side:       signal.Side,
		Quantity:   fill.Quantity,
		EntryPrice: fill.Price,
		Costs:      fill.Cost,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvariantViolation) {
			c.Halt(engineerrors.NewLedgerViolation("open", err.Error()).Error())
		}
		return c.failed(signal, fmt.Sprintf("ledger commit: %v", err))
	}

	c.journal.Trade("OPEN %s %s qty=%.2f @ %.4f cost=%.2f (signal %s, strategy %s)",
		signal.Side, signal.MarketID, fill.Quantity, fill.Price, fill.Cost, signal.ID, signal.Strategy)
	monitoring.RecordOpen(signal.Side, fill.Quantity*fill.Price)

	if snap, err := c.ledger.CurrentState(); err == nil {
		c.breaker.ObserveSnapshot(snap)
		monitoring.UpdatePortfolio(snap)
	}

	result := types.ExecutionResult{
		SignalID:       signal.ID,
		Status:         types.ExecutionCommitted,
		TradeID:        tradeID,
		Decision:       decision,
		FilledQuantity: fill.Quantity,
		FillPrice:      fill.Price,
		Cost:           fill.Cost,
	}
	c.finish(result)
	return result
}

func (c *Coordinator) rejected(signal types.Signal, decision types.Decision) types.ExecutionResult {
	c.journal.Risk("REJECT signal %s (%s): %s", signal.ID, decision.Reason, decision.Detail)
	result := types.ExecutionResult{
		SignalID: signal.ID,
		Status:   types.ExecutionRejected,
		Decision: decision,
	}
	c.finish(result)
	return result
}

func (c *Coordinator) failed(signal types.Signal, cause string) types.ExecutionResult {
	result := types.ExecutionResult{
		SignalID:     signal.ID,
		Status:       types.ExecutionFailed,
		FailureCause: cause,
	}
	c.finish(result)
	return result
}

func (c *Coordinator) finish(result types.ExecutionResult) {
	monitoring.RecordSignal(result)
	if c.health != nil {
		c.health.TouchSignal()
	}
}
