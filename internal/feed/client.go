package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/predictdesk/polyrisk/internal/logger"
	"github.com/predictdesk/polyrisk/pkg/types"
)

// Client maintains a websocket subscription to the market-data feed and
// writes every update into the Store. The connection is re-dialed with
// backoff on any failure; the engine keeps running on cached (eventually
// stale) data in the meantime, which the staleness check turns into
// rejections rather than bad fills.
type Client struct {
	url     string
	store   *Store
	journal *logger.Journal
}

// marketUpdate is the feed's wire format for one market tick.
type marketUpdate struct {
	MarketID  string  `json:"market_id"`
	Question  string  `json:"question"`
	Category  string  `json:"category"`
	EventTime int64   `json:"event_time"`
	YesPrice  float64 `json:"yes_price"`
	NoPrice   float64 `json:"no_price"`
	Liquidity float64 `json:"liquidity"`
	Status    string  `json:"status"`
}

// NewClient creates a feed client writing into store.
func NewClient(url string, store *Store, journal *logger.Journal) *Client {
	return &Client{url: url, store: store, journal: journal}
}

// Run dials, reads, and reconnects until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		c.journal.Warning("Feed connection lost: %v (reconnecting in %s)", err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to feed: %w", err)
	}
	defer conn.Close()

	c.journal.Info("Feed connected: %s", c.url)

	// Close the connection when ctx ends so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go c.pingLoop(ctx, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		c.handleMessage(message)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var update marketUpdate
	if err := json.Unmarshal(message, &update); err != nil {
		c.journal.Warning("Feed message unparseable: %v", err)
		return
	}
	if update.MarketID == "" {
		return
	}

	market := types.Market{
		ID:        update.MarketID,
		Question:  update.Question,
		Category:  update.Category,
		YesPrice:  update.YesPrice,
		NoPrice:   update.NoPrice,
		Liquidity: update.Liquidity,
		Status:    types.MarketStatus(update.Status),
	}
	if update.EventTime > 0 {
		market.EventTime = time.Unix(update.EventTime, 0).UTC()
	}
	if market.Status == "" {
		market.Status = types.MarketActive
	}
	c.store.Put(market)
}
