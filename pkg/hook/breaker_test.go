package hook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	b := newCircuitBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour})
	now := time.Unix(0, 0)

	for i := 0; i < 2; i++ {
		assert.True(t, b.Allow(now))
		transition := b.RecordResult(now, false)
		assert.Empty(t, transition)
	}
	assert.True(t, b.Allow(now))
	transition := b.RecordResult(now, false)
	assert.Equal(t, "trip", transition)
	assert.Equal(t, "open", b.State())
	assert.False(t, b.Allow(now))
}

func TestCircuitBreaker_HalfOpenProbeAfterCooldown(t *testing.T) {
	b := newCircuitBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	now := time.Unix(0, 0)

	b.Allow(now)
	b.RecordResult(now, false) // trips open

	assert.False(t, b.Allow(now.Add(500*time.Millisecond)))
	assert.True(t, b.Allow(now.Add(2*time.Second)))
	assert.Equal(t, "half_open", b.State())

	reset := b.RecordResult(now.Add(2*time.Second), true)
	assert.Equal(t, "reset", reset)
	assert.Equal(t, "closed", b.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	b := newCircuitBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	now := time.Unix(0, 0)
	b.Allow(now)
	b.RecordResult(now, false)

	probeTime := now.Add(2 * time.Second)
	assert.True(t, b.Allow(probeTime))
	transition := b.RecordResult(probeTime, false)
	assert.Equal(t, "trip", transition)
	assert.Equal(t, "open", b.State())
}
