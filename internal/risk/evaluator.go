package risk

import (
	"fmt"
	"math"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// Evaluate runs a candidate signal through the risk rule chain against the
// latest portfolio snapshot. It is a pure function: callers serialize
// invocations through the admission queue so two signals never race on the
// same snapshot.
//
// Rules run in order and short-circuit on the first failure:
//
//	1. market liquidity >= MinMarketLiquidity
//	2. signal edge >= MinEdge
//	3. Kelly-scaled size capped at MaxPositionSizePct of total capital
//	4. shared-category exposure <= MaxCorrelation of total capital
//	5. trades executed today < MaxDailyTrades
//	6. sized position fits available capital
//
// The circuit-breaker gate is deliberately not part of this chain; the
// coordinator checks it before evaluation so the halt policy stays
// explicit and testable on its own.
func Evaluate(signal types.Signal, market types.Market, snapshot types.PortfolioSnapshot,
	limits types.RiskLimits, openTrades []types.Trade) types.Decision {

	if market.Status != types.MarketActive {
		return types.Reject(types.RejectMarketNotTradable,
			fmt.Sprintf("market %s is %s", market.ID, market.Status))
	}

	if market.Liquidity < limits.MinMarketLiquidity {
		return types.Reject(types.RejectInsufficientLiquidity,
			fmt.Sprintf("liquidity %.2f below minimum %.2f", market.Liquidity, limits.MinMarketLiquidity))
	}

	if math.Abs(signal.Edge) < limits.MinEdge {
		return types.Reject(types.RejectEdgeTooSmall,
			fmt.Sprintf("edge %.4f below minimum %.4f", signal.Edge, limits.MinEdge))
	}

	size, err := kellySize(signal, market, snapshot, limits)
	if err != nil {
		return types.Reject(types.RejectNegativeKelly, err.Error())
	}

	if reason, detail, ok := checkCorrelation(signal, market, snapshot, limits, openTrades, size); !ok {
		return types.Reject(reason, detail)
	}

	if snapshot.TradesToday >= limits.MaxDailyTrades {
		return types.Reject(types.RejectDailyTradeLimit,
			fmt.Sprintf("%d trades today reached limit %d", snapshot.TradesToday, limits.MaxDailyTrades))
	}

	if size > snapshot.AvailableCapital {
		return types.Reject(types.RejectInsufficientCapital,
			fmt.Sprintf("size %.2f exceeds available capital %.2f", size, snapshot.AvailableCapital))
	}

	return types.Approve(size)
}

// kellySize converts signal confidence and market odds into a capital
// amount: kelly = (b*p - q) / b with b the net decimal odds at the quoted
// price, then scaled by the configured Kelly fraction and capped at the
// per-position limit. A non-positive Kelly means the bet has no edge at
// these odds; the signal is rejected rather than shorted.
func kellySize(signal types.Signal, market types.Market, snapshot types.PortfolioSnapshot,
	limits types.RiskLimits) (float64, error) {

	price := market.PriceFor(signal.Side)
	if price <= 0 || price >= 1 {
		return 0, fmt.Errorf("quoted price %.4f outside (0,1)", price)
	}

	b := 1/price - 1
	p := signal.Confidence
	q := 1 - p
	kelly := (b*p - q) / b
	if kelly <= 0 {
		return 0, fmt.Errorf("kelly %.4f non-positive at price %.4f confidence %.4f", kelly, price, p)
	}

	capped := limits.MaxPositionSizePct * snapshot.TotalCapital
	size := math.Min(capped, kelly*limits.KellyFraction*snapshot.TotalCapital)
	return size, nil
}

// checkCorrelation enforces the correlation limit via a shared-category
// exposure proxy: the summed entry notional of open positions in the
// signal's market category, plus the proposed size, must stay within
// MaxCorrelation of total capital. No price-correlation history exists for
// these markets, so category concentration stands in for co-movement.
func checkCorrelation(signal types.Signal, market types.Market, snapshot types.PortfolioSnapshot,
	limits types.RiskLimits, openTrades []types.Trade, proposedSize float64) (types.RejectReason, string, bool) {

	if snapshot.TotalCapital <= 0 {
		return types.RejectCorrelationLimit, "no capital to correlate against", false
	}

	categoryExposure := 0.0
	for _, t := range openTrades {
		if t.Status == types.TradeOpen && t.Category == market.Category {
			categoryExposure += t.Notional()
		}
	}

	ratio := (categoryExposure + proposedSize) / snapshot.TotalCapital
	if ratio > limits.MaxCorrelation {
		return types.RejectCorrelationLimit,
			fmt.Sprintf("category %q exposure ratio %.3f exceeds %.3f", market.Category, ratio, limits.MaxCorrelation),
			false
	}
	return "", "", true
}
