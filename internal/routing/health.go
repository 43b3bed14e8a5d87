// Package routing assembles per-tenant provider stacks and tracks
// upstream provider health.
package routing

import (
	"sync"
	"time"
)

const (
	// DefaultErrorThreshold is the consecutive-error count at which a
	// provider is considered unhealthy.
	DefaultErrorThreshold = 5

	// DefaultResetInterval is how long counters live before a global clear.
	DefaultResetInterval = 60 * time.Second
)

// HealthMonitor is a consecutive-error circuit breaker per provider name.
// recordSuccess resets a provider's counter; the whole map is cleared once
// the reset interval has elapsed since the last clear. Coarse by design of
// the reset: there is no per-provider recovery timer.
type HealthMonitor struct {
	mu             sync.Mutex
	errors         map[string]int
	lastReset      time.Time
	errorThreshold int
	resetInterval  time.Duration
	now            func() time.Time
}

// NewHealthMonitor creates a monitor with the default threshold and reset interval.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		errors:         make(map[string]int),
		lastReset:      time.Now(),
		errorThreshold: DefaultErrorThreshold,
		resetInterval:  DefaultResetInterval,
		now:            time.Now,
	}
}

// RecordSuccess resets the consecutive-error counter for a provider.
func (h *HealthMonitor) RecordSuccess(providerName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkReset()
	h.errors[providerName] = 0
}

// RecordError increments the consecutive-error counter for a provider.
func (h *HealthMonitor) RecordError(providerName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkReset()
	h.errors[providerName]++
}

// IsHealthy reports whether the provider is below the error threshold.
func (h *HealthMonitor) IsHealthy(providerName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkReset()
	return h.errors[providerName] < h.errorThreshold
}

// Stats returns a snapshot of current error counts per provider.
func (h *HealthMonitor) Stats() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkReset()
	out := make(map[string]int, len(h.errors))
	for name, count := range h.errors {
		out[name] = count
	}
	return out
}

// checkReset clears all counters once the reset interval has elapsed.
// Callers must hold h.mu.
func (h *HealthMonitor) checkReset() {
	now := h.now()
	if now.Sub(h.lastReset) > h.resetInterval {
		h.errors = make(map[string]int)
		h.lastReset = now
	}
}
