package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/predictdesk/polyrisk/internal/breaker"
	"github.com/predictdesk/polyrisk/internal/ledger"
	"github.com/predictdesk/polyrisk/internal/logger"
	"github.com/predictdesk/polyrisk/internal/monitoring"
	"github.com/predictdesk/polyrisk/internal/risk"
	"github.com/predictdesk/polyrisk/pkg/types"
)

// Engine exposes the coordinator controls the admin API needs.
type Engine interface {
	Halted() bool
	Halt(reason string)
}

// Server is the operator-facing HTTP API: portfolio inspection, runtime
// limit updates, breaker clearing and the emergency stop.
type Server struct {
	httpServer *http.Server
	ledger     *ledger.Ledger
	breaker    *breaker.Machine
	limits     *risk.LimitsHolder
	engine     Engine
	health     *monitoring.HealthChecker
	journal    *logger.Journal
	startedAt  time.Time
}

// NewServer creates the admin server bound to addr.
func NewServer(addr string, led *ledger.Ledger, brk *breaker.Machine, limits *risk.LimitsHolder,
	engine Engine, health *monitoring.HealthChecker, journal *logger.Journal) *Server {

	s := &Server{
		ledger:    led,
		breaker:   brk,
		limits:    limits,
		engine:    engine,
		health:    health,
		journal:   journal,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/snapshots", s.handleSnapshots)
	mux.HandleFunc("/api/risk", s.handleRisk)
	mux.HandleFunc("/api/limits", s.handleLimits)
	mux.HandleFunc("/api/breaker/clear", s.handleBreakerClear)
	mux.HandleFunc("/api/emergency-stop", s.handleEmergencyStop)
	if health != nil {
		mux.Handle("/health", health)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.journal.Info("Admin API listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.journal.Error("Admin API: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.CurrentState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	breakerActive, breakerReason := s.breaker.Active()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio":      snap,
		"halted":         s.engine.Halted(),
		"breaker_active": breakerActive,
		"breaker_reason": breakerReason,
		"uptime":         time.Since(s.startedAt).String(),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.OpenTrades())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.AllTrades())
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	history := s.ledger.History()
	// The full history can be long; serve the most recent hundred.
	if len(history) > 100 {
		history = history[len(history)-100:]
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limits":          s.limits.Get(),
		"active_breakers": s.breaker.ActiveRecords(),
		"loss_streak":     s.breaker.LossStreak(),
	})
}

// handleLimits replaces the runtime limit set. The whole set swaps
// atomically; evaluations in flight finish against the old limits, the
// next admission sees the new ones.
func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.limits.Get())
	case http.MethodPost:
		var limits types.RiskLimits
		if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limits payload: "+err.Error())
			return
		}
		if err := validateLimits(limits); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.limits.Set(limits)
		s.journal.Risk("Risk limits updated via admin API: %+v", limits)
		writeJSON(w, http.StatusOK, limits)
	default:
		writeError(w, http.StatusMethodNotAllowed, "use GET or POST")
	}
}

func (s *Server) handleBreakerClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	var req struct {
		Reason types.BreakerReason `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	if err := s.breaker.Clear(req.Reason); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.journal.Breaker("Breaker %s cleared via admin API", req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"cleared": string(req.Reason)})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	s.engine.Halt("emergency stop via admin API")
	writeJSON(w, http.StatusOK, map[string]bool{"halted": true})
}

func validateLimits(l types.RiskLimits) error {
	switch {
	case l.MaxPositionSizePct <= 0 || l.MaxPositionSizePct > 1:
		return errOutOfRange("max_position_size_pct", "(0,1]")
	case l.DailyDrawdownLimitPct <= 0 || l.DailyDrawdownLimitPct > 1:
		return errOutOfRange("daily_drawdown_limit_pct", "(0,1]")
	case l.KellyFraction <= 0 || l.KellyFraction > 1:
		return errOutOfRange("kelly_fraction", "(0,1]")
	case l.MaxCorrelation <= 0:
		return errOutOfRange("max_correlation", "(0,inf)")
	case l.MaxDailyTrades <= 0:
		return errOutOfRange("max_daily_trades", "positive")
	case l.MinEdge < 0:
		return errOutOfRange("min_edge", "non-negative")
	}
	return nil
}

type limitError struct{ field, want string }

func (e limitError) Error() string { return e.field + " must be " + e.want }

func errOutOfRange(field, want string) error { return limitError{field: field, want: want} }

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
