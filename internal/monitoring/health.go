package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker tracks liveness facts the engine pushes in and serves them
// as a readiness endpoint.
type HealthChecker struct {
	mu            sync.RWMutex
	feedConnected bool
	lastSignal    time.Time
	lastSnapshot  time.Time
	halted        bool
	haltReason    string
}

type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	FeedConnected bool      `json:"feed_connected"`
	LastSignal    time.Time `json:"last_signal,omitempty"`
	LastSnapshot  time.Time `json:"last_snapshot,omitempty"`
	Halted        bool      `json:"halted"`
	HaltReason    string    `json:"halt_reason,omitempty"`
	Uptime        string    `json:"uptime"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// SetFeedConnected records feed connectivity.
func (h *HealthChecker) SetFeedConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feedConnected = connected
}

// TouchSignal records that a signal just reached a terminal result.
func (h *HealthChecker) TouchSignal() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSignal = time.Now()
}

// TouchSnapshot records that the ledger just committed a snapshot.
func (h *HealthChecker) TouchSnapshot() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSnapshot = time.Now()
}

// SetHalted records the fail-safe halt state.
func (h *HealthChecker) SetHalted(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halted = true
	h.haltReason = reason
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.feedConnected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if h.halted {
		status = "halted"
		code = http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		FeedConnected: h.feedConnected,
		LastSignal:    h.lastSignal,
		LastSnapshot:  h.lastSnapshot,
		Halted:        h.halted,
		HaltReason:    h.haltReason,
		Uptime:        time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
