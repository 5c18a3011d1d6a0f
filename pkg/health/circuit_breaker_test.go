package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_InitialState(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(5, 60*time.Second)
	assert.Equal(t, CircuitClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetFailureCount())
	assert.True(t, cb.CanAttempt())
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	t.Parallel()
	threshold := 3
	cb := NewCircuitBreaker(threshold, 60*time.Second)

	for i := 0; i < threshold-1; i++ {
		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.GetState())
		assert.True(t, cb.CanAttempt())
	}
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
	assert.Equal(t, threshold, cb.GetFailureCount())
	assert.False(t, cb.CanAttempt())
}

func TestCircuitBreaker_OpenToHalfOpen(t *testing.T) {
	t.Parallel()
	timeout := 50 * time.Millisecond
	cb := NewCircuitBreaker(3, timeout)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.False(t, cb.CanAttempt())
	time.Sleep(timeout + 10*time.Millisecond)
	assert.True(t, cb.CanAttempt())
	assert.Equal(t, CircuitHalfOpen, cb.GetState())
	assert.False(t, cb.CanAttempt())
}

func TestCircuitBreaker_HalfOpenToClosed(t *testing.T) {
	t.Parallel()
	timeout := 20 * time.Millisecond
	cb := NewCircuitBreaker(3, timeout)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(timeout + 10*time.Millisecond)
	require.True(t, cb.CanAttempt())
	require.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetFailureCount())
	assert.True(t, cb.CanAttempt())
}

func TestCircuitBreaker_HalfOpenToOpen(t *testing.T) {
	t.Parallel()
	timeout := 20 * time.Millisecond
	cb := NewCircuitBreaker(3, timeout)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(timeout + 10*time.Millisecond)
	require.True(t, cb.CanAttempt())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
	assert.False(t, cb.CanAttempt())
}

func TestCircuitBreaker_HalfOpenSingleTest(t *testing.T) {
	t.Parallel()
	timeout := 20 * time.Millisecond
	cb := NewCircuitBreaker(2, timeout)
	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.GetState())

	time.Sleep(timeout + 10*time.Millisecond)
	assert.True(t, cb.CanAttempt())
	assert.Equal(t, CircuitHalfOpen, cb.GetState())
	assert.False(t, cb.CanAttempt())
	assert.False(t, cb.CanAttempt())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())
	assert.True(t, cb.CanAttempt())
}

func TestCircuitBreaker_GetSnapshot(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(3, 60*time.Second)
	cb.RecordFailure()
	cb.RecordFailure()

	snap := cb.GetSnapshot()
	assert.Equal(t, CircuitClosed, snap.State)
	assert.Equal(t, 2, snap.FailureCount)
	assert.False(t, snap.LastFailureTime.IsZero())

	cb.RecordFailure()
	snap2 := cb.GetSnapshot()
	assert.Equal(t, CircuitOpen, snap2.State)
	assert.True(t, snap2.LastStateChange.After(snap.LastStateChange) || snap2.LastStateChange.Equal(snap.LastStateChange))
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(100, 100*time.Millisecond)

	var wg sync.WaitGroup
	for _, fn := range []func(){
		func() { for i := 0; i < 1000; i++ { cb.RecordFailure() } },
		func() { for i := 0; i < 1000; i++ { cb.RecordSuccess() } },
		func() { for i := 0; i < 1000; i++ { _ = cb.GetState(); _ = cb.CanAttempt() } },
	} {
		wg.Add(1)
		fn := fn
		go func() { defer wg.Done(); fn() }()
	}
	wg.Wait()

	state := cb.GetState()
	assert.True(t, state == CircuitClosed || state == CircuitOpen || state == CircuitHalfOpen)
}

func TestCircuitBreaker_ThresholdOfOneTripsImmediately(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(1, 60*time.Second)
	assert.Equal(t, CircuitClosed, cb.GetState())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
}
