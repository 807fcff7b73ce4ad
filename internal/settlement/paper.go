package settlement

import (
	"context"
	"fmt"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// PaperSettler simulates fills against the current quote. Buys fill a
// fixed slippage above the quote, sells the same amount below, and every
// fill pays the configured fee on notional. No external calls, no partial
// fills.
type PaperSettler struct {
	slippagePct float64
	feePct      float64
}

// NewPaperSettler builds a simulated venue with the given slippage and fee
// rates, both expressed as fractions (0.001 = 10 bps).
func NewPaperSettler(slippagePct, feePct float64) *PaperSettler {
	return &PaperSettler{slippagePct: slippagePct, feePct: feePct}
}

func (p *PaperSettler) Open(ctx context.Context, market types.Market, side types.Side, quantity, refPrice float64) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	quote := market.PriceFor(side)
	if quote <= 0 || quote >= 1 {
		return Fill{}, fmt.Errorf("paper settle: market %s quotes %s at %.4f, not fillable", market.ID, side, quote)
	}

	fillPrice := quote * (1 + p.slippagePct)
	if fillPrice >= 1 {
		fillPrice = quote
	}
	notional := quantity * fillPrice
	return Fill{
		Quantity: quantity,
		Price:    fillPrice,
		Cost:     notional * p.feePct,
	}, nil
}

func (p *PaperSettler) Close(ctx context.Context, trade types.Trade, market types.Market) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	quote := market.PriceFor(trade.Side)
	if quote <= 0 {
		return Fill{}, fmt.Errorf("paper settle: market %s has no quote for %s", market.ID, trade.Side)
	}

	fillPrice := quote * (1 - p.slippagePct)
	if fillPrice <= 0 {
		fillPrice = quote
	}
	notional := trade.Quantity * fillPrice
	return Fill{
		Quantity: trade.Quantity,
		Price:    fillPrice,
		Cost:     notional * p.feePct,
	}, nil
}
