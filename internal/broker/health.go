package broker

import (
	"sync"
	"time"
)

// DefaultPriceCooldown is how long a symbol stays off the primary source
// after a subscription failure
const DefaultPriceCooldown = 60 * time.Minute

// PriceHealth remembers symbols the primary source could not price because
// of a missing subscription
type PriceHealth struct {
	mu       sync.Mutex
	failures map[string]time.Time
	cooldown time.Duration
}

// NewPriceHealth creates an empty health map
func NewPriceHealth(cooldown time.Duration) *PriceHealth {
	if cooldown <= 0 {
		cooldown = DefaultPriceCooldown
	}
	return &PriceHealth{
		failures: make(map[string]time.Time),
		cooldown: cooldown,
	}
}

// MarkFailure records a subscription failure for symbol at now
func (h *PriceHealth) MarkFailure(symbol string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[symbol] = now
}

// Unhealthy reports whether symbol is still cooling down. Expired entries are
// removed so the primary source is tried again.
func (h *PriceHealth) Unhealthy(symbol string, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	failedAt, ok := h.failures[symbol]
	if !ok {
		return false
	}
	if now.Sub(failedAt) < h.cooldown {
		return true
	}
	delete(h.failures, symbol)
	return false
}

// Snapshot returns symbols currently tracked and when they failed
func (h *PriceHealth) Snapshot() map[string]time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]time.Time, len(h.failures))
	for symbol, at := range h.failures {
		out[symbol] = at
	}
	return out
}
