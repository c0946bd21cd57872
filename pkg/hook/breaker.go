package hook

import (
	"sync"
	"time"
)

// breakerState closes the set of circuit breaker states: Closed (normal),
// Open (short-circuiting), HalfOpen (single probe in flight).
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// BreakerConfig tunes a per-hook circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker open.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before allowing a single
	// half-open probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig matches the hook package's default posture: trip
// after 5 consecutive failures, cool down for 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// breakerEvent describes one breaker transition. The executor reports trip
// and reset transitions through Executor.OnBreakerEvent rather than through
// this type; admitting a half-open probe is not reported.
type breakerEvent struct {
	Token     string
	Point     HookPoint
	State     string
	Timestamp time.Time
}

// circuitBreaker tracks recent failures for a single hook and decides
// whether a dispatch should be short-circuited to Continue.
type circuitBreaker struct {
	mu sync.Mutex

	cfg BreakerConfig

	state        breakerState
	failureCount int
	openedAt     time.Time
}

func newCircuitBreaker(cfg BreakerConfig) *circuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &circuitBreaker{cfg: cfg, state: breakerClosed}
}

// Allow reports whether the hook should actually execute right now. When
// the breaker is open and the cooldown has elapsed, it transitions to
// half-open and allows exactly one probe through.
func (b *circuitBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if now.Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		// Only one probe in flight; subsequent calls during the probe are
		// treated as still-open until RecordResult resolves it.
		return false
	default:
		return true
	}
}

// RecordResult updates the breaker's failure tally following a dispatch,
// returning the resulting state transition name for event emission (or ""
// if nothing changed).
func (b *circuitBreaker) RecordResult(now time.Time, success bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		prev := b.state
		b.failureCount = 0
		b.state = breakerClosed
		if prev != breakerClosed {
			return "reset"
		}
		return ""
	}

	b.failureCount++
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = now
		return "trip"
	}
	if b.failureCount >= b.cfg.FailureThreshold {
		b.state = breakerOpen
		b.openedAt = now
		return "trip"
	}
	return ""
}

// State reports the current breaker state as a string for diagnostics.
func (b *circuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
