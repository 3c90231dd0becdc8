// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fallback

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const settle = 50 * time.Millisecond

type expiryRecorder struct {
	count atomic.Int32
	ch    chan struct{}
}

func newExpiryRecorder() *expiryRecorder {
	return &expiryRecorder{ch: make(chan struct{}, 8)}
}

func (r *expiryRecorder) fire() {
	r.count.Add(1)
	r.ch <- struct{}{}
}

func (r *expiryRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expiry notification")
	}
}

func (r *expiryRecorder) none(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
		t.Fatal("unexpected expiry notification")
	case <-time.After(settle):
	}
}

func newTestTimer(fc *clockwork.FakeClock, rec *expiryRecorder, timeout time.Duration) *Timer {
	nop := zerolog.Nop()
	return New(Options{
		Clock:    fc,
		Timeout:  timeout,
		OnExpire: rec.fire,
		Logger:   &nop,
	})
}

func TestTimer_ExpiresExactlyOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	tm := newTestTimer(fc, rec, 10*time.Second)
	defer tm.Stop()

	tm.Start(10 * time.Second)
	fc.Advance(10 * time.Second)
	rec.wait(t)

	state := tm.Snapshot()
	assert.True(t, state.Expired)
	assert.False(t, state.Running)
	assert.Equal(t, 10*time.Second, state.Elapsed, "elapsed is clamped to the timeout")
	assert.Equal(t, time.Duration(0), state.Remaining)

	fc.Advance(time.Minute)
	rec.none(t)
	assert.Equal(t, int32(1), rec.count.Load())
}

func TestTimer_DoesNotExpireEarly(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	tm := newTestTimer(fc, rec, time.Second)
	defer tm.Stop()

	tm.Start(time.Second)
	fc.Advance(999 * time.Millisecond)
	rec.none(t)
	assert.False(t, tm.Expired())

	fc.Advance(time.Millisecond)
	rec.wait(t)
	assert.True(t, tm.Expired())
}

func TestTimer_PausedTimeDoesNotCount(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	tm := newTestTimer(fc, rec, 10*time.Second)
	defer tm.Stop()

	tm.Start(10 * time.Second)
	fc.Advance(3 * time.Second)
	tm.Pause()
	assert.False(t, tm.Running())
	assert.Equal(t, 3*time.Second, tm.Snapshot().Elapsed)

	// Arbitrary time passes while an anchor is tracked.
	fc.Advance(time.Hour)
	rec.none(t)
	assert.Equal(t, 3*time.Second, tm.Snapshot().Elapsed)

	tm.Resume()
	assert.True(t, tm.Running())
	fc.Advance(7*time.Second - time.Millisecond)
	rec.none(t)

	fc.Advance(time.Millisecond)
	rec.wait(t)
	assert.Equal(t, int32(1), rec.count.Load())
}

func TestTimer_PauseAndResumeAreIdempotent(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	tm := newTestTimer(fc, rec, 10*time.Second)
	defer tm.Stop()

	tm.Start(10 * time.Second)
	fc.Advance(2 * time.Second)
	tm.Pause()
	tm.Pause()
	assert.Equal(t, 2*time.Second, tm.Snapshot().Elapsed, "second pause must not fold time twice")

	tm.Resume()
	fc.Advance(time.Second)
	tm.Resume()
	assert.Equal(t, 3*time.Second, tm.Snapshot().Elapsed, "second resume must not restart the window")
}

func TestTimer_ResumeAfterExpiryIsNoop(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	tm := newTestTimer(fc, rec, time.Second)
	defer tm.Stop()

	tm.Start(time.Second)
	fc.Advance(time.Second)
	rec.wait(t)

	tm.Resume()
	assert.False(t, tm.Running())
	assert.True(t, tm.Expired())
}

func TestTimer_ResetRestoresFullWindow(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		expire  bool
	}{
		{name: "mid countdown", advance: 4 * time.Second},
		{name: "after expiry", advance: 5 * time.Second, expire: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clockwork.NewFakeClock()
			rec := newExpiryRecorder()
			tm := newTestTimer(fc, rec, 5*time.Second)
			defer tm.Stop()

			tm.Start(5 * time.Second)
			fc.Advance(tt.advance)
			if tt.expire {
				rec.wait(t)
			}

			tm.Reset()
			state := tm.Snapshot()
			assert.False(t, state.Expired)
			assert.True(t, state.Running)
			assert.Equal(t, time.Duration(0), state.Elapsed)
			assert.Equal(t, 5*time.Second, state.Remaining)

			fc.Advance(5*time.Second - time.Millisecond)
			rec.none(t)
			fc.Advance(time.Millisecond)
			rec.wait(t)
		})
	}
}

func TestTimer_ResetBeforeStartUsesConfiguredTimeout(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	tm := newTestTimer(fc, rec, 2*time.Second)
	defer tm.Stop()

	tm.Reset()
	fc.Advance(2 * time.Second)
	rec.wait(t)
}

func TestTimer_NonPositiveTimeoutIsFloored(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	tm := newTestTimer(fc, rec, time.Second)
	defer tm.Stop()

	tm.Start(-5 * time.Second)
	assert.Equal(t, MinTimeout, tm.Snapshot().Timeout)

	fc.Advance(MinTimeout)
	rec.wait(t)
}

func TestTimer_PublishesRemaining(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ticks := make(chan time.Duration, 16)
	nop := zerolog.Nop()
	tm := New(Options{
		Clock:   fc,
		Timeout: time.Second,
		OnTick: func(remaining time.Duration) {
			select {
			case ticks <- remaining:
			default:
			}
		},
		Logger: &nop,
	})
	defer tm.Stop()

	tm.Start(time.Second)
	fc.Advance(DefaultTickInterval)

	select {
	case got := <-ticks:
		assert.Equal(t, 900*time.Millisecond, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick published")
	}
	require.Eventually(t, func() bool {
		return tm.Remaining() == 900*time.Millisecond
	}, time.Second, 5*time.Millisecond)
}

func TestTimer_PauseAfterMissedDeadlineExpires(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	// A huge tick interval keeps the goroutine from observing the deadline via ticks.
	nop := zerolog.Nop()
	tm := New(Options{Clock: fc, Timeout: time.Second, TickInterval: time.Hour, OnExpire: rec.fire, Logger: &nop})
	defer tm.Stop()

	tm.Start(time.Second)
	fc.Advance(2 * time.Second)
	tm.Pause()

	rec.wait(t)
	rec.none(t)
	assert.True(t, tm.Expired())
	assert.Equal(t, time.Second, tm.Snapshot().Elapsed)
}

func TestTimer_StopAfterMissedDeadlineExpires(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	nop := zerolog.Nop()
	tm := New(Options{Clock: fc, Timeout: time.Second, TickInterval: time.Hour, OnExpire: rec.fire, Logger: &nop})

	tm.Start(time.Second)
	fc.Advance(2 * time.Second)
	tm.Stop()

	rec.wait(t)
	rec.none(t)
	state := tm.Snapshot()
	assert.True(t, state.Expired)
	assert.False(t, state.Running)
	assert.Equal(t, time.Duration(0), state.Remaining)
	assert.Equal(t, time.Second, state.Elapsed)
}

func TestTimer_StopBeforeDeadlineKeepsRemaining(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	tm := newTestTimer(fc, rec, 10*time.Second)

	tm.Start(10 * time.Second)
	fc.Advance(3 * time.Second)
	tm.Stop()

	state := tm.Snapshot()
	assert.False(t, state.Expired)
	assert.Equal(t, 7*time.Second, state.Remaining)
	rec.none(t)
}

func TestTimer_StartLogsFlooredTimeout(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	tm := New(Options{Clock: clockwork.NewFakeClock(), Logger: &logger})

	tm.Start(-5 * time.Second)
	tm.Stop()

	assert.Contains(t, buf.String(), `"timeout":1,`)
	assert.NotContains(t, buf.String(), "-5000")
}

func TestTimer_StopReleasesGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fc := clockwork.NewFakeClock()
	rec := newExpiryRecorder()
	tm := newTestTimer(fc, rec, 10*time.Second)

	tm.Start(10 * time.Second)
	fc.Advance(time.Second)
	tm.Stop()

	assert.False(t, tm.Running())
	fc.Advance(time.Minute)
	rec.none(t)
}
