package types

import "time"

// MarketStatus is the lifecycle state of a prediction market.
type MarketStatus string

const (
	MarketActive   MarketStatus = "active"
	MarketClosed   MarketStatus = "closed"
	MarketResolved MarketStatus = "resolved"
)

// Side is the outcome a position is taken on.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether the side is one of the known outcomes.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other outcome, used when unwinding a position.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Market is a snapshot of a prediction market as supplied by the data feed.
// The engine holds these by reference only; prices and liquidity are owned
// by the ingestion collaborator. Resolved markets are immutable.
type Market struct {
	ID        string       `json:"market_id"`
	Question  string       `json:"question,omitempty"`
	Category  string       `json:"category"`
	EventTime time.Time    `json:"event_time"`
	YesPrice  float64      `json:"yes_price"`
	NoPrice   float64      `json:"no_price"`
	Liquidity float64      `json:"liquidity"`
	Status    MarketStatus `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// PriceFor returns the quoted probability for the given side.
func (m *Market) PriceFor(side Side) float64 {
	if side == SideYes {
		return m.YesPrice
	}
	return m.NoPrice
}
