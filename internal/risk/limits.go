package risk

import (
	"sync"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// LimitsHolder is the runtime home of the risk limits. The admin API swaps
// the whole set atomically; evaluations read a consistent copy. Because
// evaluations serialize through the admission queue, an update is either
// fully visible to an evaluation or not at all.
type LimitsHolder struct {
	mu     sync.RWMutex
	limits types.RiskLimits
}

// NewLimitsHolder seeds the holder with the boot limits.
func NewLimitsHolder(limits types.RiskLimits) *LimitsHolder {
	return &LimitsHolder{limits: limits}
}

// Get returns the current limit set.
func (h *LimitsHolder) Get() types.RiskLimits {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.limits
}

// Set replaces the limit set.
func (h *LimitsHolder) Set(limits types.RiskLimits) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limits = limits
}

// Update applies a partial mutation under the lock.
func (h *LimitsHolder) Update(fn func(*types.RiskLimits)) types.RiskLimits {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.limits)
	return h.limits
}
