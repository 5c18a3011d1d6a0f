// Package health supplements §4.3's connection-state tracking with a
// per-provider circuit breaker and a periodic monitor that demotes a
// flapping provider out of the dispatch path before every call has to
// pay its timeout individually.
package health

import (
	"sync"
	"time"
)

// CircuitState is one of the three circuit-breaker states.
type CircuitState int

// Supported states.
const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String renders the state for logs and snapshots.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time, lock-free-to-read view of a breaker.
type Snapshot struct {
	State           CircuitState
	FailureCount    int
	LastStateChange time.Time
	LastFailureTime time.Time
}

// CircuitBreaker trips a provider out of the dispatch path after
// FailureThreshold consecutive failures, and allows exactly one trial
// call once Timeout has elapsed (half-open), closing again on success
// or reopening on failure.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	timeout   time.Duration

	state           CircuitState
	failureCount    int
	testInFlight    bool
	lastStateChange time.Time
	lastFailureTime time.Time
}

// NewCircuitBreaker constructs a breaker starting Closed.
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:       threshold,
		timeout:         timeout,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetFailureCount returns the current consecutive-failure count.
func (cb *CircuitBreaker) GetFailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// GetLastStateChange returns when the breaker last transitioned state.
func (cb *CircuitBreaker) GetLastStateChange() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastStateChange
}

// GetSnapshot returns a consistent view of every field at once.
func (cb *CircuitBreaker) GetSnapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		LastStateChange: cb.lastStateChange,
		LastFailureTime: cb.lastFailureTime,
	}
}

// CanAttempt reports whether a call may proceed. Closed always allows;
// Open allows only after Timeout has elapsed, at which point it
// transitions to HalfOpen and grants exactly one trial call until that
// call's result is recorded; HalfOpen denies every subsequent attempt
// until the trial completes.
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastStateChange) < cb.timeout {
			return false
		}
		cb.transition(CircuitHalfOpen)
		cb.testInFlight = true
		return true
	case CircuitHalfOpen:
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.testInFlight = false
	if cb.state != CircuitClosed {
		cb.transition(CircuitClosed)
	}
}

// RecordFailure increments the failure count, opening the circuit once
// the threshold is reached (or immediately, from HalfOpen).
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()
	cb.testInFlight = false

	if cb.state == CircuitHalfOpen {
		cb.transition(CircuitOpen)
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.threshold && cb.threshold > 0 {
		cb.transition(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	cb.state = to
	cb.lastStateChange = time.Now()
}
