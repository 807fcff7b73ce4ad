package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictdesk/polyrisk/pkg/types"
)

func TestOpenPosition_ReducesAvailableCapital(t *testing.T) {
	l := New(50000)

	id, err := l.OpenPosition(OpenRequest{
		MarketID:   "0xmkt1",
		Category:   "nba",
		Side:       types.SideYes,
		Quantity:   2500,
		EntryPrice: 0.4,
		Costs:      10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := l.CurrentState()
	require.NoError(t, err)
	assert.InDelta(t, 49990.0, snap.TotalCapital, 1e-9)   // fees come out of total
	assert.InDelta(t, 48990.0, snap.AvailableCapital, 1e-9) // minus 1000 notional and fees
	assert.InDelta(t, 1000.0, snap.InvestedCapital, 1e-9)
	assert.Equal(t, 1, snap.OpenPositions)
	assert.Equal(t, 1, snap.TradesToday)
}

func TestOpenPosition_InsufficientCapital(t *testing.T) {
	l := New(100)

	_, err := l.OpenPosition(OpenRequest{
		MarketID:   "0xmkt1",
		Side:       types.SideYes,
		Quantity:   1000,
		EntryPrice: 0.5,
	})
	assert.ErrorIs(t, err, ErrInsufficientCapital)

	snap, err := l.CurrentState()
	require.NoError(t, err)
	assert.InDelta(t, 100.0, snap.AvailableCapital, 1e-9)
	assert.Equal(t, 0, snap.OpenPositions)
}

func TestCapitalInvariant_HoldsAcrossMutations(t *testing.T) {
	l := New(50000)

	id1, err := l.OpenPosition(OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 2000, EntryPrice: 0.3, Costs: 5})
	require.NoError(t, err)
	id2, err := l.OpenPosition(OpenRequest{MarketID: "m2", Side: types.SideNo, Quantity: 1500, EntryPrice: 0.6, Costs: 3})
	require.NoError(t, err)

	_, err = l.ClosePosition(id1, 0.45, 4, types.TradeClosed)
	require.NoError(t, err)
	_, err = l.ClosePosition(id2, 0.7, 2, types.TradeClosed)
	require.NoError(t, err)

	for _, snap := range l.History() {
		assert.InDelta(t, snap.TotalCapital, snap.AvailableCapital+snap.InvestedCapital, 1e-6,
			"snapshot %s breaks the capital identity", snap.ID)
	}
}

func TestClosePosition_PnLBySide(t *testing.T) {
	tests := []struct {
		name       string
		side       types.Side
		entryPrice float64
		exitPrice  float64
		quantity   float64
		entryCosts float64
		exitCosts  float64
		wantPnL    float64
	}{
		{
			name:       "yes side profits when price rises",
			side:       types.SideYes,
			entryPrice: 0.40,
			exitPrice:  0.55,
			quantity:   1000,
			entryCosts: 5,
			exitCosts:  5,
			wantPnL:    140, // 0.15*1000 - 10
		},
		{
			name:       "no side profits when price falls",
			side:       types.SideNo,
			entryPrice: 0.60,
			exitPrice:  0.45,
			quantity:   1000,
			entryCosts: 2,
			exitCosts:  3,
			wantPnL:    145, // 0.15*1000 - 5
		},
		{
			name:       "yes side loses when price falls",
			side:       types.SideYes,
			entryPrice: 0.50,
			exitPrice:  0.40,
			quantity:   500,
			wantPnL:    -50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(50000)
			id, err := l.OpenPosition(OpenRequest{
				MarketID:   "m1",
				Side:       tt.side,
				Quantity:   tt.quantity,
				EntryPrice: tt.entryPrice,
				Costs:      tt.entryCosts,
			})
			require.NoError(t, err)

			pnl, err := l.ClosePosition(id, tt.exitPrice, tt.exitCosts, types.TradeClosed)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantPnL, pnl, 1e-9)

			snap, err := l.CurrentState()
			require.NoError(t, err)
			assert.InDelta(t, 50000+tt.wantPnL, snap.TotalCapital, 1e-9)
			assert.InDelta(t, tt.wantPnL, snap.RealizedPnLToday, 1e-9)
		})
	}
}

func TestClosePosition_SecondCloseFails(t *testing.T) {
	l := New(50000)
	id, err := l.OpenPosition(OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 1000, EntryPrice: 0.5})
	require.NoError(t, err)

	pnl, err := l.ClosePosition(id, 0.6, 0, types.TradeClosed)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, pnl, 1e-9)

	_, err = l.ClosePosition(id, 0.9, 0, types.TradeClosed)
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	// PnL must not be double counted.
	snap, err := l.CurrentState()
	require.NoError(t, err)
	assert.InDelta(t, 100.0, snap.RealizedPnLToday, 1e-9)
	assert.InDelta(t, 50100.0, snap.TotalCapital, 1e-9)
}

func TestClosePosition_UnknownTrade(t *testing.T) {
	l := New(50000)
	_, err := l.ClosePosition("no-such-trade", 0.5, 0, types.TradeClosed)
	assert.ErrorIs(t, err, ErrUnknownTrade)
}

func TestClosePosition_StoppedOutStatus(t *testing.T) {
	l := New(50000)
	id, err := l.OpenPosition(OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 1000, EntryPrice: 0.5})
	require.NoError(t, err)

	_, err = l.ClosePosition(id, 0.3, 0, types.TradeStoppedOut)
	require.NoError(t, err)

	trade, ok := l.Trade(id)
	require.True(t, ok)
	assert.Equal(t, types.TradeStoppedOut, trade.Status)
}

func TestDailyDrawdown_TracksLosses(t *testing.T) {
	l := New(50000)
	id, err := l.OpenPosition(OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 10000, EntryPrice: 0.5})
	require.NoError(t, err)

	_, err = l.ClosePosition(id, 0.3, 0, types.TradeClosed)
	require.NoError(t, err)

	snap, err := l.CurrentState()
	require.NoError(t, err)
	// Lost 2000 of 48000 remaining capital.
	assert.InDelta(t, 2000.0/48000.0, snap.DailyDrawdown, 1e-9)
}

func TestDailyCounters_ResetOnRollover(t *testing.T) {
	current := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	l := New(50000, WithClock(func() time.Time { return current }))

	id, err := l.OpenPosition(OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 1000, EntryPrice: 0.5})
	require.NoError(t, err)
	_, err = l.ClosePosition(id, 0.4, 0, types.TradeClosed)
	require.NoError(t, err)

	snap, err := l.CurrentState()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TradesToday)
	assert.Negative(t, snap.RealizedPnLToday)

	current = current.Add(6 * time.Hour) // past midnight
	snap, err = l.CurrentState()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TradesToday)
	assert.Zero(t, snap.RealizedPnLToday)
	assert.Zero(t, snap.DailyDrawdown)
	// Capital carries over untouched.
	assert.InDelta(t, 49900.0, snap.TotalCapital, 1e-9)
}

func TestMarkToMarket_RefreshesUnrealized(t *testing.T) {
	l := New(50000)
	_, err := l.OpenPosition(OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 1000, EntryPrice: 0.4})
	require.NoError(t, err)
	_, err = l.OpenPosition(OpenRequest{MarketID: "m2", Side: types.SideNo, Quantity: 500, EntryPrice: 0.6})
	require.NoError(t, err)

	quotes := map[string]float64{"m1": 0.5, "m2": 0.5}
	snap, err := l.MarkToMarket(func(marketID string, side types.Side) (float64, bool) {
		p, ok := quotes[marketID]
		return p, ok
	})
	require.NoError(t, err)
	// m1 yes: +0.1*1000 = 100; m2 no: entry 0.6 -> 0.5 = +0.1*500 = 50.
	assert.InDelta(t, 150.0, snap.UnrealizedPnL, 1e-9)
}

type captureSink struct {
	trades    []types.Trade
	snapshots []types.PortfolioSnapshot
}

func (c *captureSink) RecordTrade(t types.Trade)               { c.trades = append(c.trades, t) }
func (c *captureSink) RecordSnapshot(s types.PortfolioSnapshot) { c.snapshots = append(c.snapshots, s) }

func TestSink_ReceivesEveryMutation(t *testing.T) {
	sink := &captureSink{}
	l := New(50000, WithSink(sink))

	id, err := l.OpenPosition(OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 100, EntryPrice: 0.5})
	require.NoError(t, err)
	_, err = l.ClosePosition(id, 0.6, 0, types.TradeClosed)
	require.NoError(t, err)

	assert.Len(t, sink.trades, 2) // open record + close record
	assert.Len(t, sink.snapshots, 3)
	assert.Equal(t, types.TradeOpen, sink.trades[0].Status)
	assert.Equal(t, types.TradeClosed, sink.trades[1].Status)
}
