package types

import "time"

// PortfolioSnapshot is a point-in-time view of the portfolio. Snapshots are
// immutable; the ledger appends a new one for every mutation and the most
// recent snapshot is the sole source of truth for risk checks.
//
// Invariant: AvailableCapital + InvestedCapital == TotalCapital (within
// rounding epsilon), and InvestedCapital equals the summed entry notional of
// all open trades.
type PortfolioSnapshot struct {
	ID               string    `json:"snapshot_id"`
	TotalCapital     float64   `json:"total_capital"`
	AvailableCapital float64   `json:"available_capital"`
	InvestedCapital  float64   `json:"invested_capital"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	RealizedPnLToday float64   `json:"realized_pnl_today"`
	DailyDrawdown    float64   `json:"daily_drawdown"`
	OpenPositions    int       `json:"open_positions"`
	TradesToday      int       `json:"trades_today"`
	Timestamp        time.Time `json:"timestamp"`
}

// RiskLimits are the portfolio-level limits the evaluator enforces.
// Read-only to the evaluator; mutable only through the admin update path.
type RiskLimits struct {
	MaxPositionSizePct    float64       `json:"max_position_size_pct"`
	DailyDrawdownLimitPct float64       `json:"daily_drawdown_limit_pct"`
	MaxCorrelation        float64       `json:"max_correlation"`
	MinMarketLiquidity    float64       `json:"min_market_liquidity"`
	MaxDailyTrades        int           `json:"max_daily_trades"`
	CooldownAfterLosses   int           `json:"cooldown_after_losses"`
	CooldownPeriod        time.Duration `json:"cooldown_period"`
	KellyFraction         float64       `json:"kelly_fraction"`
	MinEdge               float64       `json:"min_edge"`
}

// BreakerReason identifies what tripped a circuit breaker.
type BreakerReason string

const (
	BreakerDailyDrawdown     BreakerReason = "daily_drawdown"
	BreakerConsecutiveLosses BreakerReason = "consecutive_losses"
)

// BreakerStatus is the lifecycle state of a circuit breaker record.
type BreakerStatus string

const (
	BreakerActive  BreakerStatus = "active"
	BreakerCleared BreakerStatus = "cleared"
)

// CircuitBreakerRecord is one trading-halt episode. While any record is
// active, the coordinator rejects every signal regardless of the risk
// evaluator's outcome.
type CircuitBreakerRecord struct {
	ID          string        `json:"breaker_id"`
	Reason      BreakerReason `json:"reason"`
	Detail      string        `json:"detail"`
	TriggeredAt time.Time     `json:"triggered_at"`
	ClearedAt   *time.Time    `json:"cleared_at,omitempty"`
	Status      BreakerStatus `json:"status"`
}
