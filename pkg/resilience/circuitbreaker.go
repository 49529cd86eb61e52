// Package resilience implements the reusable policies composed around the
// raw AI client: a sliding-window circuit breaker, a token-bucket rate
// limiter, a channel-based bulkhead, and a retry policy with exponential
// backoff.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen names the refusal of a call while the circuit is open or
// an in-flight half-open probe already occupies the single test slot.
// Allow itself reports that case as false rather than returning this error.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the three-state lifecycle of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes the sliding window and thresholds.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string
	// ErrorThreshold is the failure rate, in [0,1], that trips the circuit.
	ErrorThreshold float64
	// VolumeThreshold is the minimum number of calls in the window before
	// the error rate is evaluated at all.
	VolumeThreshold int
	// WindowSize is the duration of the sliding window.
	WindowSize time.Duration
	// BucketCount subdivides WindowSize for rotation granularity.
	BucketCount int
	// SleepWindow is how long the circuit stays OPEN before admitting a
	// single HALF_OPEN probe.
	SleepWindow time.Duration
}

// DefaultCircuitBreakerConfig trips the breaker once at least 5 calls fall
// in the 60s window and at least half of them failed (rate 0.5 over a
// volume of 5), so five consecutive failures trip it.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:            name,
		ErrorThreshold:  0.5,
		VolumeThreshold: 5,
		WindowSize:      60 * time.Second,
		BucketCount:     10,
		SleepWindow:     30 * time.Second,
	}
}

type bucket struct {
	at      time.Time
	success int
	failure int
}

// CircuitBreaker is a sliding-window circuit breaker: it opens when the
// failure rate over the window reaches ErrorThreshold once at least
// VolumeThreshold calls have been observed, and probes recovery with a
// single HALF_OPEN call after SleepWindow.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu             sync.Mutex
	state          CircuitState
	stateChangedAt time.Time
	buckets        []bucket
	current        int
	probeInFlight  bool
}

// NewCircuitBreaker builds a breaker ready in the CLOSED state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.BucketCount <= 0 {
		cfg.BucketCount = 10
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 60 * time.Second
	}
	now := time.Now()
	buckets := make([]bucket, cfg.BucketCount)
	for i := range buckets {
		buckets[i].at = now
	}
	return &CircuitBreaker{
		cfg:            cfg,
		state:          StateClosed,
		stateChangedAt: now,
		buckets:        buckets,
	}
}

// Allow reports whether a call may proceed, transitioning OPEN→HALF_OPEN
// once SleepWindow has elapsed. It reserves the single HALF_OPEN probe slot
// so concurrent callers don't all probe at once.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.stateChangedAt) >= cb.cfg.SleepWindow {
			cb.transitionLocked(StateHalfOpen)
			cb.probeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess marks the most recent admitted call as successful.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rotateLocked()
	cb.buckets[cb.current].success++

	if cb.state == StateHalfOpen {
		cb.probeInFlight = false
		cb.transitionLocked(StateClosed)
		cb.resetWindowLocked()
	}
}

// RecordFailure marks the most recent admitted call as failed and
// re-evaluates whether the circuit should open.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rotateLocked()
	cb.buckets[cb.current].failure++

	if cb.state == StateHalfOpen {
		cb.probeInFlight = false
		cb.transitionLocked(StateOpen)
		return
	}

	success, failure := cb.countsLocked()
	total := success + failure
	if cb.cfg.VolumeThreshold > 0 && total >= cb.cfg.VolumeThreshold {
		rate := float64(failure) / float64(total)
		if rate >= cb.cfg.ErrorThreshold {
			cb.transitionLocked(StateOpen)
		}
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.stateChangedAt = time.Now()
	slog.Info("circuit breaker state change", "name", cb.cfg.Name, "from", from.String(), "to", to.String())
}

func (cb *CircuitBreaker) resetWindowLocked() {
	now := time.Now()
	for i := range cb.buckets {
		cb.buckets[i] = bucket{at: now}
	}
	cb.current = 0
}

func (cb *CircuitBreaker) rotateLocked() {
	bucketSize := cb.cfg.WindowSize / time.Duration(len(cb.buckets))
	if bucketSize <= 0 {
		return
	}
	now := time.Now()
	elapsed := now.Sub(cb.buckets[cb.current].at)
	steps := int(elapsed / bucketSize)
	if steps <= 0 {
		return
	}
	if steps > len(cb.buckets) {
		steps = len(cb.buckets)
	}
	for i := 0; i < steps; i++ {
		cb.current = (cb.current + 1) % len(cb.buckets)
		cb.buckets[cb.current] = bucket{at: now}
	}
}

func (cb *CircuitBreaker) countsLocked() (success, failure int) {
	cutoff := time.Now().Add(-cb.cfg.WindowSize)
	for _, b := range cb.buckets {
		if b.at.After(cutoff) {
			success += b.success
			failure += b.failure
		}
	}
	return success, failure
}
