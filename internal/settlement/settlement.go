package settlement

import (
	"context"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// Fill is the venue's answer to an order: what actually traded, at what
// price, and what the venue charged for it.
type Fill struct {
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Cost     float64 `json:"cost"`
}

// Settler places orders with the venue. Both calls block until the fill is
// confirmed or ctx expires; the coordinator bounds them with the settlement
// timeout. A returned error means nothing was committed on our side — the
// ledger is only touched after a confirmed fill.
type Settler interface {
	// Open buys quantity shares of the given side at roughly refPrice.
	Open(ctx context.Context, market types.Market, side types.Side, quantity, refPrice float64) (Fill, error)

	// Close unwinds an open trade at the market's current quote.
	Close(ctx context.Context, trade types.Trade, market types.Market) (Fill, error)
}
