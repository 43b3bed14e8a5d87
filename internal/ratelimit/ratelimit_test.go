package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(start time.Time) (*Limiter, *time.Time) {
	clock := start
	l := NewLimiter()
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(time.Now())

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("connect:1.2.3.4", 5, time.Minute), "request %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("connect:1.2.3.4", 5, time.Minute), "sixth request should be rejected")
}

func TestWindowReset(t *testing.T) {
	l, clock := newTestLimiter(time.Now())

	require.True(t, l.Allow("token:ip", 1, time.Minute))
	require.False(t, l.Allow("token:ip", 1, time.Minute))

	*clock = clock.Add(61 * time.Second)
	assert.True(t, l.Allow("token:ip", 1, time.Minute), "request after window lapse should start a new window")
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Now())

	require.True(t, l.Allow("connect:a", 1, time.Minute))
	require.False(t, l.Allow("connect:a", 1, time.Minute))

	assert.True(t, l.Allow("connect:b", 1, time.Minute))
	assert.True(t, l.Allow("token:a", 1, time.Minute))
}

func TestPrune(t *testing.T) {
	l, clock := newTestLimiter(time.Now())

	l.Allow("a", 5, time.Minute)
	l.Allow("b", 5, time.Hour)

	*clock = clock.Add(2 * time.Minute)
	removed := l.Prune()

	assert.Equal(t, 1, removed)
	// Pruned window restarts cleanly.
	assert.True(t, l.Allow("a", 5, time.Minute))
}
