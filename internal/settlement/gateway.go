package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// GatewaySettler places orders through the execution gateway's HTTP API.
// The gateway owns exchange connectivity and order routing; this client
// only submits and waits for the confirmed fill.
type GatewaySettler struct {
	baseURL    string
	httpClient *http.Client
}

// NewGatewaySettler builds a client for the gateway at baseURL. Per-order
// deadlines come from the caller's context; the client timeout is a
// backstop against a gateway that never answers.
func NewGatewaySettler(baseURL string) *GatewaySettler {
	return &GatewaySettler{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type orderRequest struct {
	Action   string  `json:"action"`
	MarketID string  `json:"market_id"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	RefPrice float64 `json:"ref_price"`
	TradeID  string  `json:"trade_id,omitempty"`
}

type orderResponse struct {
	Status         string  `json:"status"`
	FilledQuantity float64 `json:"filled_quantity"`
	FillPrice      float64 `json:"fill_price"`
	Cost           float64 `json:"cost"`
	Error          string  `json:"error,omitempty"`
}

func (g *GatewaySettler) Open(ctx context.Context, market types.Market, side types.Side, quantity, refPrice float64) (Fill, error) {
	return g.submit(ctx, orderRequest{
		Action:   "buy",
		MarketID: market.ID,
		Side:     string(side),
		Quantity: quantity,
		RefPrice: refPrice,
	})
}

func (g *GatewaySettler) Close(ctx context.Context, trade types.Trade, market types.Market) (Fill, error) {
	return g.submit(ctx, orderRequest{
		Action:   "sell",
		MarketID: trade.MarketID,
		Side:     string(trade.Side),
		Quantity: trade.Quantity,
		RefPrice: market.PriceFor(trade.Side),
		TradeID:  trade.ID,
	})
}

func (g *GatewaySettler) submit(ctx context.Context, order orderRequest) (Fill, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return Fill{}, fmt.Errorf("failed to marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/trade", g.baseURL),
		bytes.NewBuffer(payload),
	)
	if err != nil {
		return Fill{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Fill{}, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	var result orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Fill{}, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Fill{}, fmt.Errorf("order failed (status %d): %s", resp.StatusCode, result.Error)
	}
	if result.Status != "filled" {
		return Fill{}, fmt.Errorf("order not filled: %s", result.Status)
	}
	if result.FilledQuantity <= 0 || result.FillPrice <= 0 {
		return Fill{}, fmt.Errorf("gateway reported an empty fill for market %s", order.MarketID)
	}

	return Fill{
		Quantity: result.FilledQuantity,
		Price:    result.FillPrice,
		Cost:     result.Cost,
	}, nil
}
