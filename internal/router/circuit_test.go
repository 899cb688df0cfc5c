package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	assert.True(t, b.Allow(), "below threshold should stay closed")

	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsRun(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	assert.True(t, b.Allow(), "run was reset, two failures should not trip")
}

func TestBreakerSingleProbe(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	b.Failure()
	require.Equal(t, BreakerOpen, b.State())

	// Cooldown elapsed.
	b.mu.Lock()
	b.openedAt = time.Now().Add(-2 * time.Minute)
	b.mu.Unlock()

	assert.True(t, b.Allow(), "first caller owns the probe")
	assert.False(t, b.Allow(), "second caller must wait for the probe outcome")

	b.Success()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	b.Failure()

	b.mu.Lock()
	b.openedAt = time.Now().Add(-2 * time.Minute)
	b.mu.Unlock()

	require.True(t, b.Allow())
	b.Failure()

	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestHealthTracksProvidersIndependently(t *testing.T) {
	h := NewHealth(2, time.Minute)

	h.ReportFailure("qwen_normal")
	h.ReportFailure("qwen_normal")

	assert.False(t, h.Allow("qwen_normal"))
	assert.True(t, h.Allow("hunyuan"))

	states := h.States()
	assert.Equal(t, "open", states["qwen_normal"])
	assert.Equal(t, "closed", states["hunyuan"])
}
