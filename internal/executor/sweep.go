package executor

import (
	"context"
	"errors"
	"time"

	"github.com/predictdesk/polyrisk/internal/breaker"
	"github.com/predictdesk/polyrisk/internal/config"
	"github.com/predictdesk/polyrisk/internal/feed"
	"github.com/predictdesk/polyrisk/internal/ledger"
	"github.com/predictdesk/polyrisk/internal/logger"
	"github.com/predictdesk/polyrisk/internal/monitoring"
	"github.com/predictdesk/polyrisk/internal/settlement"
	"github.com/predictdesk/polyrisk/pkg/types"
)

// Exit reasons recorded per closed trade.
const (
	exitMaxHoldTime    = "max_hold_time"
	exitStopLoss       = "stop_loss"
	exitMarketResolved = "market_resolved"
)

// Sweep is the position exit loop. Every interval it revalues open
// positions and closes any that hit the stop loss, exceeded the maximum
// hold time, or whose market resolved. Closes feed the breaker's loss
// streak and drawdown checks, so a bad run halts entries while the sweep
// keeps unwinding what is already open.
type Sweep struct {
	cfg     config.ExecutionConfig
	ledger  *ledger.Ledger
	breaker *breaker.Machine
	settler settlement.Settler
	markets *feed.Store
	journal *logger.Journal
	onHalt  func(reason string)
	now     func() time.Time
}

// NewSweep wires the exit loop. onHalt fires on a ledger invariant
// violation and may be nil.
func NewSweep(cfg config.ExecutionConfig, led *ledger.Ledger, brk *breaker.Machine,
	settler settlement.Settler, markets *feed.Store, journal *logger.Journal,
	onHalt func(reason string)) *Sweep {

	return &Sweep{
		cfg:     cfg,
		ledger:  led,
		breaker: brk,
		settler: settler,
		markets: markets,
		journal: journal,
		onHalt:  onHalt,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Sweep) WithClock(now func() time.Time) *Sweep {
	s.now = now
	return s
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one full pass: mark open positions to market, then close
// everything with an exit condition. Failed closes are retried on the next
// pass; one stuck market never blocks the others.
func (s *Sweep) SweepOnce(ctx context.Context) {
	snap, err := s.ledger.MarkToMarket(func(marketID string, side types.Side) (float64, bool) {
		market, ok := s.markets.Get(marketID)
		if !ok {
			return 0, false
		}
		return market.PriceFor(side), true
	})
	if err == nil {
		s.breaker.ObserveSnapshot(snap)
		monitoring.UpdatePortfolio(snap)
	}

	for _, trade := range s.ledger.OpenTrades() {
		market, ok := s.markets.Get(trade.MarketID)
		if !ok {
			continue
		}

		reason := s.exitReason(trade, market)
		if reason == "" {
			continue
		}
		s.closeTrade(ctx, trade, market, reason)
	}
}

// exitReason decides whether a position must come off, and why. Resolution
// beats the stop loss: a resolved market's price is final, not a drawdown.
func (s *Sweep) exitReason(trade types.Trade, market types.Market) string {
	if market.Status != types.MarketActive {
		return exitMarketResolved
	}
	if s.now().Sub(trade.EntryTime) >= s.cfg.MaxHoldTime {
		return exitMaxHoldTime
	}

	price := market.PriceFor(trade.Side)
	if price > 0 && trade.Notional() > 0 {
		if loss := -trade.UnrealizedPnL(price) / trade.Notional(); loss >= s.cfg.StopLossPct {
			return exitStopLoss
		}
	}
	return ""
}

func (s *Sweep) closeTrade(ctx context.Context, trade types.Trade, market types.Market, reason string) {
	settleCtx, cancel := context.WithTimeout(ctx, s.cfg.SettlementTimeout)
	fill, err := s.settler.Close(settleCtx, trade, market)
	cancel()
	if err != nil {
		s.journal.Warning("Exit settlement failed for trade %s (%s): %v", trade.ID, reason, err)
		return
	}

	status := types.TradeClosed
	if reason == exitStopLoss {
		status = types.TradeStoppedOut
	}

	pnl, err := s.ledger.ClosePosition(trade.ID, fill.Price, fill.Cost, status)
	if err != nil {
		if errors.Is(err, ledger.ErrInvariantViolation) && s.onHalt != nil {
			s.onHalt(err.Error())
		}
		s.journal.Error("Close commit failed for trade %s: %v", trade.ID, err)
		return
	}

	s.journal.Trade("CLOSE %s %s qty=%.2f @ %.4f pnl=%.2f (%s)",
		trade.Side, trade.MarketID, fill.Quantity, fill.Price, pnl, reason)
	monitoring.RecordClose(reason)

	s.breaker.RecordClose(pnl)
	if snap, err := s.ledger.CurrentState(); err == nil {
		s.breaker.ObserveSnapshot(snap)
		monitoring.UpdatePortfolio(snap)
	}
}
