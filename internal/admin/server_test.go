package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictdesk/polyrisk/internal/breaker"
	"github.com/predictdesk/polyrisk/internal/ledger"
	"github.com/predictdesk/polyrisk/internal/logger"
	"github.com/predictdesk/polyrisk/internal/risk"
	"github.com/predictdesk/polyrisk/pkg/types"
)

type fakeEngine struct {
	halted     bool
	haltReason string
}

func (f *fakeEngine) Halted() bool       { return f.halted }
func (f *fakeEngine) Halt(reason string) { f.halted, f.haltReason = true, reason }

func bootLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxPositionSizePct:    0.02,
		DailyDrawdownLimitPct: 0.08,
		MaxCorrelation:        0.6,
		MinMarketLiquidity:    5000,
		MaxDailyTrades:        20,
		CooldownAfterLosses:   3,
		CooldownPeriod:        time.Hour,
		KellyFraction:         0.5,
		MinEdge:               0.03,
	}
}

func newTestServer(t *testing.T) (*Server, *fakeEngine, *breaker.Machine, *risk.LimitsHolder) {
	t.Helper()

	holder := risk.NewLimitsHolder(bootLimits())
	led := ledger.New(50000)
	brk := breaker.New(holder.Get)
	engine := &fakeEngine{}

	srv := NewServer(":0", led, brk, holder, engine, nil, logger.NewDiscard())
	return srv, engine, brk, holder
}

func TestHandleStatus(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["halted"])
	assert.Equal(t, false, body["breaker_active"])

	portfolio, ok := body["portfolio"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 50000.0, portfolio["total_capital"].(float64), 1e-6)
}

func TestHandleLimits_AtomicUpdate(t *testing.T) {
	srv, _, _, holder := newTestServer(t)

	updated := bootLimits()
	updated.MaxDailyTrades = 5
	updated.MinEdge = 0.05
	payload, _ := json.Marshal(updated)

	rec := httptest.NewRecorder()
	srv.handleLimits(rec, httptest.NewRequest(http.MethodPost, "/api/limits", strings.NewReader(string(payload))))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, holder.Get().MaxDailyTrades)
	assert.InDelta(t, 0.05, holder.Get().MinEdge, 1e-12)
}

func TestHandleLimits_RejectsNonsense(t *testing.T) {
	srv, _, _, holder := newTestServer(t)

	bad := bootLimits()
	bad.MaxPositionSizePct = 1.5
	payload, _ := json.Marshal(bad)

	rec := httptest.NewRecorder()
	srv.handleLimits(rec, httptest.NewRequest(http.MethodPost, "/api/limits", strings.NewReader(string(payload))))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	// The live limits are untouched.
	assert.InDelta(t, 0.02, holder.Get().MaxPositionSizePct, 1e-12)
}

func TestHandleBreakerClear(t *testing.T) {
	srv, _, brk, _ := newTestServer(t)

	brk.ObserveSnapshot(types.PortfolioSnapshot{DailyDrawdown: 0.10})
	active, _ := brk.Active()
	require.True(t, active)

	rec := httptest.NewRecorder()
	srv.handleBreakerClear(rec, httptest.NewRequest(http.MethodPost, "/api/breaker/clear",
		strings.NewReader(`{"reason": "daily_drawdown"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	active, _ = brk.Active()
	assert.False(t, active)
}

func TestHandleBreakerClear_NothingActive(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleBreakerClear(rec, httptest.NewRequest(http.MethodPost, "/api/breaker/clear",
		strings.NewReader(`{"reason": "daily_drawdown"}`)))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleEmergencyStop(t *testing.T) {
	srv, engine, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleEmergencyStop(rec, httptest.NewRequest(http.MethodPost, "/api/emergency-stop", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, engine.halted)
	assert.Contains(t, engine.haltReason, "emergency stop")

	// GET is not an emergency.
	rec = httptest.NewRecorder()
	srv.handleEmergencyStop(rec, httptest.NewRequest(http.MethodGet, "/api/emergency-stop", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
