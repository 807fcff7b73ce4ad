package types

// RejectReason names the specific rule a signal failed. Rejections are
// non-fatal: they are logged and reported, never raised as errors.
type RejectReason string

const (
	RejectInvalidSignal         RejectReason = "InvalidSignal"
	RejectStaleMarketData       RejectReason = "StaleMarketData"
	RejectInsufficientLiquidity RejectReason = "InsufficientLiquidity"
	RejectEdgeTooSmall          RejectReason = "EdgeTooSmall"
	RejectNegativeKelly         RejectReason = "NegativeKelly"
	RejectCorrelationLimit      RejectReason = "CorrelationLimit"
	RejectDailyTradeLimit       RejectReason = "DailyTradeLimit"
	RejectInsufficientCapital   RejectReason = "InsufficientCapital"
	RejectCircuitBreakerActive  RejectReason = "CircuitBreakerActive"
	RejectMarketNotTradable     RejectReason = "MarketNotTradable"
)

// Decision is the outcome of evaluating one signal against the current
// portfolio snapshot and risk limits.
type Decision struct {
	Approved bool         `json:"approved"`
	Size     float64      `json:"size,omitempty"`
	Reason   RejectReason `json:"reason,omitempty"`
	Detail   string       `json:"detail,omitempty"`
}

// Approve builds an approval with the risk-adjusted position size in
// capital terms.
func Approve(size float64) Decision {
	return Decision{Approved: true, Size: size}
}

// Reject builds a rejection for the named rule.
func Reject(reason RejectReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// ExecutionStatus is the terminal outcome of a submitted signal.
type ExecutionStatus string

const (
	ExecutionCommitted ExecutionStatus = "committed"
	ExecutionRejected  ExecutionStatus = "rejected"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionWithdrawn ExecutionStatus = "withdrawn"
)

// ExecutionResult reports what became of a submitted signal. Settlement
// failures surface here so the originating strategy can resubmit with
// fresh sizing.
type ExecutionResult struct {
	SignalID       string          `json:"signal_id"`
	Status         ExecutionStatus `json:"status"`
	TradeID        string          `json:"trade_id,omitempty"`
	Decision       Decision        `json:"decision"`
	FilledQuantity float64         `json:"filled_quantity,omitempty"`
	FillPrice      float64         `json:"fill_price,omitempty"`
	Cost           float64         `json:"cost,omitempty"`
	FailureCause   string          `json:"failure_cause,omitempty"`
}
