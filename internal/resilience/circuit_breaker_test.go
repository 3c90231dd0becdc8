// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker("test_trip", 3, 10*time.Second, WithClock(clock))

	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, 10*time.Second, cb.RetryAfter())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test_reset", 2, time.Second, WithClock(clockwork.NewFakeClock()))

	_ = cb.Execute(fail)
	assert.NoError(t, cb.Execute(succeed))
	_ = cb.Execute(fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	tests := []struct {
		name  string
		trial func() error
		want  State
	}{
		{"trial succeeds", succeed, StateClosed},
		{"trial fails", fail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			cb := NewCircuitBreaker("test_trial", 1, 5*time.Second, WithClock(clock))
			_ = cb.Execute(fail)
			assert.Equal(t, StateOpen, cb.State())

			clock.Advance(4 * time.Second)
			assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)

			clock.Advance(time.Second)
			_ = cb.Execute(tt.trial)
			assert.Equal(t, tt.want, cb.State())
		})
	}
}

func TestCircuitBreaker_SingleTrialInFlight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker("test_single_trial", 1, time.Second, WithClock(clock))
	_ = cb.Execute(fail)
	clock.Advance(time.Second)

	var inner error
	_ = cb.Execute(func() error {
		inner = cb.Execute(succeed)
		return nil
	})
	assert.ErrorIs(t, inner, ErrCircuitOpen)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailurePredicate(t *testing.T) {
	errClient := errors.New("bad request")
	cb := NewCircuitBreaker("test_predicate", 1, time.Second,
		WithClock(clockwork.NewFakeClock()),
		WithFailurePredicate(func(err error) bool { return !errors.Is(err, errClient) }),
	)

	assert.ErrorIs(t, cb.Execute(func() error { return errClient }), errClient)
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.State())
}
