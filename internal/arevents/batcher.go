// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package arevents buffers AR tracking events and delivers them to the
// backend in batches.
package arevents

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/storyverse/internal/analytics"
	"github.com/ManuGH/storyverse/internal/backend"
	xglog "github.com/ManuGH/storyverse/internal/log"
	"github.com/ManuGH/storyverse/internal/metrics"
	"github.com/ManuGH/storyverse/internal/resilience"
	"github.com/ManuGH/storyverse/internal/telemetry"
)

const (
	DefaultMaxBatchSize   = 10
	DefaultFlushInterval  = 5 * time.Second
	DefaultMaxPending     = 500
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = time.Minute

	triggerSize   = "size"
	triggerTimer  = "timer"
	triggerManual = "manual"
	triggerForce  = "force"
)

// Deliverer sends a batch to the backend. *backend.Client implements it.
type Deliverer interface {
	LogEvents(ctx context.Context, events []backend.ArEvent) error
}

// Recorder receives the local analytics copy of each event.
// *analytics.Tracker implements it.
type Recorder interface {
	Track(ctx context.Context, ev analytics.Event)
}

// Options configures a Batcher. Zero values take the defaults.
type Options struct {
	MaxBatchSize  int
	FlushInterval time.Duration
	// MaxPending caps the queue; the oldest events are evicted beyond it.
	MaxPending     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Breaker guards delivery. A breaker that only counts transient
	// backend errors is created when nil.
	Breaker  *resilience.CircuitBreaker
	Recorder Recorder
	Clock    clockwork.Clock
	Logger   *zerolog.Logger
}

// Batcher queues events and flushes them when the batch is full or the
// flush interval passes. Failed batches go back to the front of the queue.
// Enqueue never blocks on the network and never fails.
type Batcher struct {
	deliver  Deliverer
	recorder Recorder
	breaker  *resilience.CircuitBreaker
	clock    clockwork.Clock
	logger   zerolog.Logger

	maxBatch   int
	interval   time.Duration
	maxPending int

	mu           sync.Mutex
	queue        []Event
	timer        clockwork.Timer
	timerStop    chan struct{}
	timerGen     uint64
	sizePending  bool
	closed       bool
	backoff      *backoff.ExponentialBackOff
	retryAt      time.Time
	failedRounds int

	// flushMu serializes deliveries; it is never taken while holding mu.
	flushMu sync.Mutex

	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// New creates a batcher delivering through d.
func New(d Deliverer, opts Options) *Batcher {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	if opts.MaxPending < opts.MaxBatchSize {
		opts.MaxPending = opts.MaxBatchSize
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker("ar_events", 5, 30*time.Second,
			resilience.WithClock(opts.Clock),
			resilience.WithFailurePredicate(backend.IsTransient))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialBackoff
	bo.MaxInterval = opts.MaxBackoff
	bo.Reset()

	b := &Batcher{
		deliver:    d,
		recorder:   opts.Recorder,
		breaker:    opts.Breaker,
		clock:      opts.Clock,
		logger:     xglog.WithComponent("arevents"),
		maxBatch:   opts.MaxBatchSize,
		interval:   opts.FlushInterval,
		maxPending: opts.MaxPending,
		backoff:    bo,
	}
	if opts.Logger != nil {
		b.logger = *opts.Logger
	}
	b.bgCtx, b.bgCancel = context.WithCancel(context.Background())
	return b
}

// Enqueue stamps ev, records it locally and queues it for delivery.
func (b *Batcher) Enqueue(ctx context.Context, ev Event) {
	ev.Timestamp = b.clock.Now()

	b.logger.Debug().
		Str(xglog.FieldEventType, string(ev.Type)).
		Str(xglog.FieldBookID, ev.BookID).
		Msg("AR event")

	if b.recorder != nil {
		if aev, ok := ev.analyticsEvent(); ok {
			b.recorder.Track(ctx, aev)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		metrics.IncAREventDropped("closed")
		return
	}

	b.queue = append(b.queue, ev)
	metrics.IncAREventEnqueued(string(ev.Type))
	b.evictLocked()
	metrics.SetAREventQueueDepth(len(b.queue))

	switch {
	case len(b.queue) >= b.maxBatch && !b.backingOffLocked() && !b.sizePending:
		b.sizePending = true
		b.bg.Add(1)
		go func() {
			defer b.bg.Done()
			_ = b.flush(b.bgCtx, triggerSize)
		}()
	case b.timer == nil:
		b.armLocked(b.nextDelayLocked())
	}
}

// Flush delivers everything queued. It is a no-op on an empty queue and
// returns the delivery error, if any; failed events stay queued.
func (b *Batcher) Flush(ctx context.Context) error {
	return b.flush(ctx, triggerManual)
}

// ForceFlush waits for an in-flight flush and then delivers whatever is
// left. Used on session teardown.
func (b *Batcher) ForceFlush(ctx context.Context) error {
	return b.flush(ctx, triggerForce)
}

// Close stops the flush timer, waits for background flushes and delivers
// the remaining queue. Events enqueued afterwards are recorded locally only.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.disarmLocked()
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.bgCancel()
		<-done
		return ctx.Err()
	}

	err := b.flush(ctx, triggerForce)
	b.bgCancel()

	if n := b.Len(); n > 0 {
		metrics.IncAREventDropped("undelivered")
		b.logger.Warn().Int("pending", n).Err(err).Msg("closing with undelivered AR events")
	}
	return err
}

// Len returns the number of queued events.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Pending returns a copy of the queued events in delivery order.
func (b *Batcher) Pending() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.queue)
}

func (b *Batcher) flush(ctx context.Context, trigger string) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	b.disarmLocked()
	if trigger == triggerSize {
		b.sizePending = false
	}
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	err := b.send(ctx, trigger, batch)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.backoff.Reset()
		b.retryAt = time.Time{}
		b.failedRounds = 0
	} else {
		// Every failed batch goes back ahead of newer events.
		b.queue = slices.Concat(batch, b.queue)
		b.evictLocked()
		b.failedRounds++
		b.retryAt = b.clock.Now().Add(b.backoff.NextBackOff())
		b.logger.Warn().Err(err).
			Int("count", len(batch)).
			Int("failed_rounds", b.failedRounds).
			Time("retry_after", b.retryAt).
			Msg("failed to flush AR events")
	}
	metrics.SetAREventQueueDepth(len(b.queue))
	return err
}

func (b *Batcher) send(ctx context.Context, trigger string, batch []Event) error {
	ctx, span := telemetry.Tracer("storyverse.arevents").Start(ctx, "storyverse.arevents.flush")
	defer span.End()
	span.SetAttributes(telemetry.FlushAttributes(trigger, len(batch))...)

	wire := make([]backend.ArEvent, len(batch))
	for i, ev := range batch {
		wire[i] = ev.Wire()
	}

	err := b.breaker.Execute(func() error {
		return b.deliver.LogEvents(ctx, wire)
	})

	outcome := "ok"
	switch {
	case err == nil:
		metrics.AddAREventsDelivered(len(batch))
		span.SetStatus(codes.Ok, "")
		b.logger.Debug().Int("count", len(batch)).Str("trigger", trigger).Msg("events flushed")
	case errors.Is(err, resilience.ErrCircuitOpen):
		outcome = "circuit_open"
	default:
		outcome = "error"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.RecordAREventFlush(trigger, outcome)
	return err
}

// backingOffLocked reports whether a failed delivery still gates
// size-triggered flushes.
func (b *Batcher) backingOffLocked() bool {
	return !b.retryAt.IsZero() && b.clock.Now().Before(b.retryAt)
}

func (b *Batcher) nextDelayLocked() time.Duration {
	d := b.interval
	if b.backingOffLocked() {
		if wait := b.retryAt.Sub(b.clock.Now()); wait > d {
			d = wait
		}
	}
	return d
}

func (b *Batcher) evictLocked() {
	over := len(b.queue) - b.maxPending
	if over <= 0 {
		return
	}
	b.queue = slices.Delete(b.queue, 0, over)
	for range over {
		metrics.IncAREventDropped("overflow")
	}
	b.logger.Warn().Int("evicted", over).Int("max_pending", b.maxPending).Msg("AR event queue full, evicted oldest events")
}

func (b *Batcher) armLocked(d time.Duration) {
	t := b.clock.NewTimer(d)
	stop := make(chan struct{})
	b.timer = t
	b.timerStop = stop
	b.timerGen++
	gen := b.timerGen

	b.bg.Add(1)
	go func() {
		defer b.bg.Done()
		select {
		case <-t.Chan():
			b.onTimer(gen)
		case <-stop:
		}
	}()
}

func (b *Batcher) disarmLocked() {
	if b.timer == nil {
		return
	}
	b.timer.Stop()
	close(b.timerStop)
	b.timer = nil
	b.timerStop = nil
}

func (b *Batcher) onTimer(gen uint64) {
	b.mu.Lock()
	if b.closed || gen != b.timerGen || b.timer == nil {
		b.mu.Unlock()
		return
	}
	// The goroutine that owns this timer is the caller; just forget it.
	b.timer = nil
	b.timerStop = nil
	b.mu.Unlock()

	_ = b.flush(b.bgCtx, triggerTimer)
}
