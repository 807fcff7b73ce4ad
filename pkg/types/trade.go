package types

import (
	"fmt"
	"time"
)

// TradeStatus is the lifecycle state of a position.
type TradeStatus string

const (
	TradeOpen       TradeStatus = "open"
	TradeClosed     TradeStatus = "closed"
	TradeStoppedOut TradeStatus = "stopped_out"
)

// Trade is an executed position. Created by the execution coordinator on
// admission approval and mutated only by the portfolio ledger on close.
type Trade struct {
	ID         string      `json:"trade_id"`
	SignalID   string      `json:"signal_id"`
	MarketID   string      `json:"market_id"`
	Category   string      `json:"category"`
	Side       Side        `json:"side"`
	Quantity   float64     `json:"quantity"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price,omitempty"`
	EntryCosts float64     `json:"entry_costs"`
	ExitCosts  float64     `json:"exit_costs,omitempty"`
	EntryTime  time.Time   `json:"entry_time"`
	ExitTime   time.Time   `json:"exit_time,omitempty"`
	PnL        float64     `json:"pnl"`
	Status     TradeStatus `json:"status"`
}

// Notional returns the capital committed at entry, excluding costs.
func (t *Trade) Notional() float64 {
	return t.EntryPrice * t.Quantity
}

// UnrealizedPnL values the open position against the current quote for its
// side. Zero for anything already closed.
func (t *Trade) UnrealizedPnL(currentPrice float64) float64 {
	if t.Status != TradeOpen {
		return 0
	}
	diff := currentPrice - t.EntryPrice
	if t.Side == SideNo {
		diff = -diff
	}
	return diff * t.Quantity
}

func errMissingField(name string) error {
	return fmt.Errorf("missing required field %q", name)
}

func errInvalidField(name, detail string) error {
	return fmt.Errorf("invalid field %q: %s", name, detail)
}
