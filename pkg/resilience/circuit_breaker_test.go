package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_DefaultBehavior(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "test-cb",
		MaxRequests: 3,
		Interval:    time.Second,
		Timeout:     time.Second,
	})

	// Initially closed
	assert.Equal(t, StateClosed, cb.State())

	// Successful requests should keep it closed
	for i := 0; i < 5; i++ {
		result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return "success", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, StateClosed, cb.State())
	}
}

func TestCircuitBreaker_TripsOnFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "test-cb",
		MaxRequests: 3,
		Interval:    time.Second,
		Timeout:     100 * time.Millisecond,
	})

	// Generate enough failures to trip the circuit breaker
	for i := 0; i < 5; i++ {
		_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
		require.Error(t, err)
	}

	// Circuit breaker should be open now
	assert.Equal(t, StateOpen, cb.State())

	// Requests should be rejected
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "should not execute", nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
}

func TestCircuitBreaker_HalfOpenState(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "test-cb",
		MaxRequests: 2,
		Interval:    time.Second,
		Timeout:     50 * time.Millisecond,
	})

	// Trip the circuit breaker
	for i := 0; i < 5; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
	}
	assert.Equal(t, StateOpen, cb.State())

	// Wait for timeout
	time.Sleep(60 * time.Millisecond)

	// Should be half-open now
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Another successful request should close the circuit
	_, err = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "test-cb",
		MaxRequests: 2,
		Interval:    time.Second,
		Timeout:     50 * time.Millisecond,
	})

	// Trip the circuit breaker
	for i := 0; i < 5; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
	}
	assert.Equal(t, StateOpen, cb.State())

	// Wait for timeout
	time.Sleep(60 * time.Millisecond)

	// Fail in half-open state should open the circuit again
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("test error")
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_CustomReadyToTrip(t *testing.T) {
	tripped := false
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "test-cb",
		MaxRequests: 3,
		Interval:    time.Second,
		Timeout:     time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
		OnStateChange: func(name string, from CircuitState, to CircuitState) {
			if to == StateOpen {
				tripped = true
			}
		},
	})

	// First failure
	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("test error")
	})
	assert.Equal(t, StateClosed, cb.State())
	assert.False(t, tripped)

	// Second failure should trip
	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("test error")
	})
	assert.Equal(t, StateOpen, cb.State())
	assert.True(t, tripped)
}

func TestCircuitBreaker_Counts(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "test-cb",
		MaxRequests: 3,
		Interval:    time.Second,
		Timeout:     time.Second,
	})

	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "success", nil
	})
	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("error")
	})
	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "success", nil
	})

	counts := cb.Counts()
	assert.Equal(t, uint32(3), counts.Requests)
	assert.Equal(t, uint32(2), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
	assert.Equal(t, uint32(0), counts.ConsecutiveFailures)
}

func TestCircuitBreaker_Panic(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "test-cb",
		MaxRequests: 3,
		Interval:    time.Second,
		Timeout:     time.Second,
	})

	assert.Panics(t, func() {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			panic("test panic")
		})
	})

	// The panicking request counts as a failure
	counts := cb.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(0), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
}

func TestIsCircuitBreakerError(t *testing.T) {
	assert.True(t, IsCircuitBreakerError(&CircuitBreakerError{Name: "test", State: StateOpen}))
	assert.False(t, IsCircuitBreakerError(errors.New("regular error")))
	assert.False(t, IsCircuitBreakerError(nil))
}
