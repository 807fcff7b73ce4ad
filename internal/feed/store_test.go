package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictdesk/polyrisk/internal/logger"
	"github.com/predictdesk/polyrisk/pkg/types"
)

func TestStore_PutStampsMissingTimestamp(t *testing.T) {
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := NewStore().WithClock(func() time.Time { return current })

	store.Put(types.Market{ID: "m1", YesPrice: 0.4, NoPrice: 0.6, Status: types.MarketActive})

	market, ok := store.Get("m1")
	require.True(t, ok)
	assert.Equal(t, current, market.UpdatedAt)
}

func TestStore_FreshRespectsMaxAge(t *testing.T) {
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := NewStore().WithClock(func() time.Time { return current })

	store.Put(types.Market{ID: "m1", YesPrice: 0.4, Status: types.MarketActive})

	_, ok := store.Fresh("m1", 5*time.Minute)
	assert.True(t, ok)

	current = current.Add(4 * time.Minute)
	_, ok = store.Fresh("m1", 5*time.Minute)
	assert.True(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok = store.Fresh("m1", 5*time.Minute)
	assert.False(t, ok, "a six-minute-old quote is stale at a five-minute window")

	_, ok = store.Fresh("never-seen", 5*time.Minute)
	assert.False(t, ok)
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	store := NewStore()
	store.Put(types.Market{ID: "m1", YesPrice: 0.4, Status: types.MarketActive})

	market, _ := store.Get("m1")
	market.YesPrice = 0.9

	again, _ := store.Get("m1")
	assert.InDelta(t, 0.4, again.YesPrice, 1e-12)
}

func TestClient_HandleMessageUpsertsMarket(t *testing.T) {
	store := NewStore()
	client := NewClient("ws://unused", store, logger.NewDiscard())

	client.handleMessage([]byte(`{
		"market_id": "0xmkt1",
		"question": "Will the Lakers win tonight?",
		"category": "nba",
		"event_time": 1770000000,
		"yes_price": 0.42,
		"no_price": 0.58,
		"liquidity": 12500,
		"status": "active"
	}`))

	market, ok := store.Get("0xmkt1")
	require.True(t, ok)
	assert.Equal(t, "nba", market.Category)
	assert.InDelta(t, 0.42, market.YesPrice, 1e-12)
	assert.Equal(t, types.MarketActive, market.Status)
	assert.Equal(t, time.Unix(1770000000, 0).UTC(), market.EventTime)
}

func TestClient_HandleMessageIgnoresGarbage(t *testing.T) {
	store := NewStore()
	client := NewClient("ws://unused", store, logger.NewDiscard())

	client.handleMessage([]byte(`not json`))
	client.handleMessage([]byte(`{"yes_price": 0.5}`)) // no market id

	assert.Zero(t, store.Len())
}

func TestClient_HandleMessageDefaultsStatusToActive(t *testing.T) {
	store := NewStore()
	client := NewClient("ws://unused", store, logger.NewDiscard())

	client.handleMessage([]byte(`{"market_id": "m2", "yes_price": 0.3, "no_price": 0.7}`))

	market, ok := store.Get("m2")
	require.True(t, ok)
	assert.Equal(t, types.MarketActive, market.Status)
}
