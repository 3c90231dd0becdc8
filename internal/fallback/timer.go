// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fallback implements the AR fallback countdown: if no anchor is
// detected within the configured window the session switches to the non-AR
// presentation. Paused time (while an anchor is tracked) never counts.
package fallback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/storyverse/internal/log"
	"github.com/ManuGH/storyverse/internal/metrics"
)

const (
	// DefaultTimeout is the window before the fallback is shown.
	DefaultTimeout = 10 * time.Second
	// DefaultTickInterval is the granularity of remaining-time publication.
	DefaultTickInterval = 100 * time.Millisecond
	// MinTimeout is the floor applied to non-positive or sub-millisecond timeouts.
	// Such timers expire on the first deadline check.
	MinTimeout = time.Millisecond
)

// Options configures a Timer.
type Options struct {
	Timeout      time.Duration
	TickInterval time.Duration
	Clock        clockwork.Clock

	// OnTick receives the remaining time at tick granularity.
	OnTick func(remaining time.Duration)
	// OnExpire fires exactly once per expiry.
	OnExpire func()

	Logger *zerolog.Logger
}

// State is a point-in-time view of the countdown.
type State struct {
	Timeout   time.Duration
	Elapsed   time.Duration
	Remaining time.Duration
	Running   bool
	Expired   bool
}

// Timer is a pausable countdown. Methods are safe for concurrent use.
// Callbacks run on the timer goroutine, never under the timer lock.
type Timer struct {
	mu sync.Mutex

	clock  clockwork.Clock
	tick   time.Duration
	logger zerolog.Logger

	onTick   func(time.Duration)
	onExpire func()

	timeout   time.Duration
	elapsed   time.Duration
	lastStart time.Time
	running   bool
	expired   bool
	remaining time.Duration

	// gen identifies the current run; stale goroutines compare and bail out.
	gen  uint64
	stop chan struct{}
}

// New creates an idle timer. Call Start to begin the countdown.
func New(opts Options) *Timer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := xglog.WithComponent("fallback")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	timeout := floorTimeout(opts.Timeout)
	return &Timer{
		clock:     opts.Clock,
		tick:      opts.TickInterval,
		logger:    logger,
		onTick:    opts.OnTick,
		onExpire:  opts.OnExpire,
		timeout:   timeout,
		remaining: timeout,
	}
}

func floorTimeout(d time.Duration) time.Duration {
	if d < MinTimeout {
		return MinTimeout
	}
	return d
}

// Start begins a fresh countdown of the given duration. A running countdown
// is discarded.
func (t *Timer) Start(timeout time.Duration) {
	t.mu.Lock()
	t.timeout = floorTimeout(timeout)
	effective := t.timeout
	t.restartLocked()
	t.mu.Unlock()

	metrics.RecordFallbackTransition("start")
	t.logger.Debug().Dur("timeout", effective).Msg("fallback timer started")
}

// Reset clears expiry and restarts a full-duration countdown. Safe at any point,
// including after expiry or before Start.
func (t *Timer) Reset() {
	t.mu.Lock()
	t.restartLocked()
	t.mu.Unlock()

	metrics.RecordFallbackTransition("reset")
	t.logger.Debug().Msg("fallback timer reset")
}

func (t *Timer) restartLocked() {
	t.haltLocked()
	t.expired = false
	t.elapsed = 0
	t.remaining = t.timeout
	t.runLocked()
}

// Pause folds the running time into the elapsed total and stops the countdown.
// No-op unless running.
func (t *Timer) Pause() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.elapsed += t.clock.Since(t.lastStart)
	t.haltLocked()
	fire := false
	if t.elapsed >= t.timeout {
		// Deadline passed before the timer goroutine observed it.
		fire = t.expireLocked()
	} else {
		t.remaining = t.timeout - t.elapsed
	}
	t.mu.Unlock()

	if fire {
		t.fireExpire()
		return
	}
	metrics.RecordFallbackTransition("pause")
	t.logger.Debug().Msg("fallback timer paused")
}

// Resume continues the countdown from the accumulated elapsed time.
// No-op if running or expired.
func (t *Timer) Resume() {
	t.mu.Lock()
	if t.running || t.expired {
		t.mu.Unlock()
		return
	}
	t.runLocked()
	t.mu.Unlock()

	metrics.RecordFallbackTransition("resume")
	t.logger.Debug().Msg("fallback timer resumed")
}

// Stop cancels the countdown goroutine. Owners must call it when the AR
// session goes away. A deadline that passed before the goroutine observed it
// is delivered as the expiry, as in Pause.
func (t *Timer) Stop() {
	t.mu.Lock()
	wasRunning := t.running
	fire := false
	if wasRunning {
		t.elapsed += t.clock.Since(t.lastStart)
		if t.elapsed >= t.timeout {
			fire = t.expireLocked()
		} else {
			t.remaining = t.timeout - t.elapsed
		}
	}
	t.haltLocked()
	t.mu.Unlock()

	if fire {
		t.fireExpire()
		return
	}
	if wasRunning {
		metrics.RecordFallbackTransition("stop")
	}
}

// Snapshot returns the current state with remaining time computed now.
func (t *Timer) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := t.elapsed
	if t.running {
		elapsed += t.clock.Since(t.lastStart)
	}
	if elapsed > t.timeout {
		elapsed = t.timeout
	}
	return State{
		Timeout:   t.timeout,
		Elapsed:   elapsed,
		Remaining: t.timeout - elapsed,
		Running:   t.running,
		Expired:   t.expired,
	}
}

// Remaining returns the last published remaining time (tick granularity).
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Expired reports whether the fallback fired and has not been reset.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// Running reports whether the countdown is advancing.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// runLocked starts a countdown goroutine for the current window. Caller holds mu.
func (t *Timer) runLocked() {
	t.gen++
	t.running = true
	t.lastStart = t.clock.Now()

	stop := make(chan struct{})
	t.stop = stop

	ticker := t.clock.NewTicker(t.tick)
	deadline := t.clock.NewTimer(t.timeout - t.elapsed)
	go t.loop(t.gen, stop, ticker, deadline)
}

// haltLocked stops the current goroutine, if any. Caller holds mu.
func (t *Timer) haltLocked() {
	t.running = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// expireLocked performs the expired transition. It returns true when the
// caller must deliver the expiry notification. Caller holds mu.
func (t *Timer) expireLocked() bool {
	if t.expired {
		return false
	}
	t.haltLocked()
	t.elapsed = t.timeout
	t.remaining = 0
	t.expired = true
	return true
}

func (t *Timer) loop(gen uint64, stop <-chan struct{}, ticker clockwork.Ticker, deadline clockwork.Timer) {
	defer ticker.Stop()
	defer deadline.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
		case <-deadline.Chan():
		}

		remaining, fire, ok := t.check(gen)
		if !ok {
			return
		}
		if t.onTick != nil {
			t.onTick(remaining)
		}
		if fire {
			t.fireExpire()
			return
		}
	}
}

// check recomputes the remaining time for run gen. ok is false when the run
// was superseded or halted.
func (t *Timer) check(gen uint64) (remaining time.Duration, fire bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || !t.running {
		return 0, false, false
	}
	remaining = t.timeout - t.elapsed - t.clock.Since(t.lastStart)
	if remaining <= 0 {
		return 0, t.expireLocked(), true
	}
	t.remaining = remaining
	return remaining, false, true
}

func (t *Timer) fireExpire() {
	metrics.RecordFallbackTransition("expire")
	t.logger.Info().Str(xglog.FieldEvent, "fallback.expired").Msg("fallback timer expired")
	if t.onExpire != nil {
		t.onExpire()
	}
}
