package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthyByDefault(t *testing.T) {
	h := NewHealthMonitor()
	assert.True(t, h.IsHealthy("alpaca"))
}

func TestUnhealthyAtThreshold(t *testing.T) {
	h := NewHealthMonitor()

	for i := 0; i < DefaultErrorThreshold-1; i++ {
		h.RecordError("polygon")
		require.True(t, h.IsHealthy("polygon"), "healthy below threshold (%d errors)", i+1)
	}

	h.RecordError("polygon")
	assert.False(t, h.IsHealthy("polygon"), "unhealthy at exactly %d consecutive errors", DefaultErrorThreshold)
}

func TestSuccessResetsCounter(t *testing.T) {
	h := NewHealthMonitor()

	for i := 0; i < DefaultErrorThreshold; i++ {
		h.RecordError("fmp")
	}
	require.False(t, h.IsHealthy("fmp"))

	h.RecordSuccess("fmp")
	assert.True(t, h.IsHealthy("fmp"))
	assert.Equal(t, 0, h.Stats()["fmp"])
}

func TestProvidersAreIndependent(t *testing.T) {
	h := NewHealthMonitor()

	for i := 0; i < DefaultErrorThreshold; i++ {
		h.RecordError("alpaca")
	}

	assert.False(t, h.IsHealthy("alpaca"))
	assert.True(t, h.IsHealthy("polygon"))
}

func TestGlobalResetAfterInterval(t *testing.T) {
	h := NewHealthMonitor()
	clock := time.Now()
	h.now = func() time.Time { return clock }
	h.lastReset = clock

	for i := 0; i < DefaultErrorThreshold; i++ {
		h.RecordError("finnhub")
	}
	require.False(t, h.IsHealthy("finnhub"))

	clock = clock.Add(DefaultResetInterval + time.Second)
	assert.True(t, h.IsHealthy("finnhub"), "counters clear after the reset interval")
	assert.Empty(t, h.Stats())
}
