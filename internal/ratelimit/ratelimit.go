// Package ratelimit implements a fixed-window request limiter keyed by
// caller identity and action. Counters are process-local; multi-instance
// deployments need a shared store behind the same interface.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count     int
	resetTime time.Time
}

// Limiter is a fixed-window counter map. The zero value is not usable;
// construct with NewLimiter so each owner (server, tests) gets an
// isolated instance.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records one request against key and reports whether it fits within
// limit requests per window. The window starts at the first request after
// the previous window lapsed.
func (l *Limiter) Allow(key string, limit int, windowDur time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetTime) {
		w = &window{resetTime: now.Add(windowDur)}
		l.windows[key] = w
	}

	w.count++
	return w.count <= limit
}

// Prune drops windows that have lapsed. Called opportunistically by the
// maintenance loop to bound memory.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if now.After(w.resetTime) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
