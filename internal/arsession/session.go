// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package arsession drives one AR viewing session: it resolves the book's
// experience, runs the fallback countdown while no anchor is tracked and
// reports lifecycle events to the event batcher.
package arsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ManuGH/storyverse/internal/arevents"
	"github.com/ManuGH/storyverse/internal/backend"
	"github.com/ManuGH/storyverse/internal/fallback"
	xglog "github.com/ManuGH/storyverse/internal/log"
	"github.com/ManuGH/storyverse/internal/metrics"
)

// State is the session's presentation state.
type State string

const (
	StateInitializing State = "initializing"
	StateScanning     State = "scanning"
	StateTracking     State = "tracking"
	StatePaused       State = "paused"
	StateFallback     State = "fallback"
	StateError        State = "error"
)

var (
	// ErrInvalidTransition is returned when an input is not valid in the current state.
	ErrInvalidTransition = errors.New("arsession: invalid transition")
	// ErrClosed is returned for any input after Close.
	ErrClosed = errors.New("arsession: session closed")
)

// Resolver looks up a book's AR experience. *library.Service implements it.
type Resolver interface {
	Experience(ctx context.Context, bookID string) (*backend.ArExperience, error)
}

// EventSink queues tracking events. *arevents.Batcher implements it.
type EventSink interface {
	Enqueue(ctx context.Context, ev arevents.Event)
	ForceFlush(ctx context.Context) error
}

// Options configures a Session.
type Options struct {
	FallbackTimeout time.Duration
	TickInterval    time.Duration
	Clock           clockwork.Clock
	Logger          *zerolog.Logger

	// OnStateChange is called after every transition, outside the session lock.
	OnStateChange func(from, to State)
	// OnTick receives the fallback countdown while it runs.
	OnTick func(remaining time.Duration)
}

// Session is safe for concurrent use; the scene and the fallback timer
// report into it from different goroutines.
type Session struct {
	id       string
	bookID   string
	resolver Resolver
	events   EventSink
	timer    *fallback.Timer
	timeout  time.Duration
	clock    clockwork.Clock
	logger   zerolog.Logger
	onChange func(from, to State)

	mu          sync.Mutex
	state       State
	experience  *backend.ArExperience
	detectStart time.Time
	err         error
	closed      bool
}

// New creates a session for bookID in the initializing state.
func New(bookID string, r Resolver, events EventSink, opts Options) *Session {
	if opts.FallbackTimeout <= 0 {
		opts.FallbackTimeout = fallback.DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	id := uuid.NewString()
	base := xglog.WithComponent("arsession")
	if opts.Logger != nil {
		base = *opts.Logger
	}
	logger := base.With().Str(xglog.FieldSessionID, id).Str(xglog.FieldBookID, bookID).Logger()

	s := &Session{
		id:       id,
		bookID:   bookID,
		resolver: r,
		events:   events,
		timeout:  opts.FallbackTimeout,
		clock:    opts.Clock,
		logger:   logger,
		onChange: opts.OnStateChange,
		state:    StateInitializing,
	}
	s.timer = fallback.New(fallback.Options{
		Timeout:      opts.FallbackTimeout,
		TickInterval: opts.TickInterval,
		Clock:        opts.Clock,
		OnTick:       opts.OnTick,
		OnExpire:     s.expire,
		Logger:       &logger,
	})
	metrics.RecordARSessionState(string(StateInitializing))
	return s
}

// ID returns the session id attached to every log line.
func (s *Session) ID() string { return s.id }

// BookID returns the book the session was created for.
func (s *Session) BookID() string { return s.bookID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Experience returns the resolved experience, nil before Start succeeds.
func (s *Session) Experience() *backend.ArExperience {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.experience
}

// Err returns the error that moved the session into the error state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Remaining returns the fallback countdown's remaining time.
func (s *Session) Remaining() time.Duration {
	return s.timer.Snapshot().Remaining
}

// Context returns ctx carrying the session id for logging.
func (s *Session) Context(ctx context.Context) context.Context {
	return xglog.ContextWithSessionID(ctx, s.id)
}

// Start resolves the experience, starts the fallback countdown and moves
// to scanning. A resolve failure moves the session to error.
func (s *Session) Start(ctx context.Context) error {
	if err := s.require(StateInitializing); err != nil {
		return err
	}

	exp, err := s.resolver.Experience(ctx, s.bookID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load AR experience")
		s.Fail(fmt.Errorf("resolve experience: %w", err))
		return err
	}

	s.mu.Lock()
	if s.closed || s.state != StateInitializing {
		err := fmt.Errorf("%w: start raced with %s", ErrInvalidTransition, s.state)
		s.mu.Unlock()
		return err
	}
	s.experience = exp
	s.detectStart = s.clock.Now()
	old := s.setLocked(StateScanning)
	s.mu.Unlock()

	s.timer.Start(s.timeout)
	s.notify(old, StateScanning)
	s.enqueue(ctx, arevents.SessionStart, nil)
	s.logger.Info().Str("title", exp.Title).Dur("fallback_timeout", s.timeout).Msg("AR session started")
	return nil
}

// AnchorFound moves to tracking and pauses the fallback countdown.
func (s *Session) AnchorFound(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkLocked(StateScanning, StatePaused); err != nil {
		s.mu.Unlock()
		return err
	}
	detect := s.clock.Since(s.detectStart)
	old := s.setLocked(StateTracking)
	s.mu.Unlock()

	s.timer.Pause()
	s.notify(old, StateTracking)
	s.enqueue(ctx, arevents.AnchorFound, map[string]any{arevents.MetaTimeToDetectMS: detect.Milliseconds()})
	s.logger.Info().Int64("time_to_detect_ms", detect.Milliseconds()).Msg("anchor found")
	return nil
}

// AnchorLost moves to paused and resumes the fallback countdown.
func (s *Session) AnchorLost(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkLocked(StateTracking); err != nil {
		s.mu.Unlock()
		return err
	}
	since := s.clock.Since(s.detectStart)
	old := s.setLocked(StatePaused)
	s.mu.Unlock()

	s.timer.Resume()
	s.notify(old, StatePaused)
	s.enqueue(ctx, arevents.AnchorLost, map[string]any{arevents.MetaSessionDurationMS: since.Milliseconds()})
	s.logger.Info().Msg("anchor lost")

	// The countdown may have run out while the anchor was tracked.
	if s.timer.Expired() {
		s.expire()
	}
	return nil
}

// VideoStarted records that the overlay video began playing.
func (s *Session) VideoStarted(ctx context.Context) error {
	if err := s.require(StateTracking); err != nil {
		return err
	}
	s.enqueue(ctx, arevents.VideoStarted, nil)
	return nil
}

// VideoCompleted records that the overlay video played to the end.
func (s *Session) VideoCompleted(ctx context.Context) error {
	if err := s.require(StateTracking, StatePaused); err != nil {
		return err
	}
	s.enqueue(ctx, arevents.VideoCompleted, nil)
	s.logger.Info().Msg("video complete")
	return nil
}

// PlayFullscreen records that the user chose the non-AR presentation.
func (s *Session) PlayFullscreen(ctx context.Context) error {
	if err := s.require(StateFallback); err != nil {
		return err
	}
	s.enqueue(ctx, arevents.FallbackTriggered, nil)
	s.logger.Info().Msg("playing fullscreen")
	return nil
}

// Retry restarts scanning with a full countdown and a fresh detection clock.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkLocked(StateFallback, StateError); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.experience == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: no experience loaded", ErrInvalidTransition)
	}
	s.err = nil
	s.detectStart = s.clock.Now()
	old := s.setLocked(StateScanning)
	s.mu.Unlock()

	s.timer.Reset()
	s.notify(old, StateScanning)
	s.logger.Info().Msg("retrying scan")
	return nil
}

// Fail moves the session to error and stops the countdown.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.err = err
	old := s.setLocked(StateError)
	s.mu.Unlock()

	s.timer.Stop()
	s.logger.Error().Err(err).Msg("AR error")
	s.notify(old, StateError)
}

// Close stops the countdown, records the end of the session and delivers
// every pending event. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	started := s.experience != nil
	s.mu.Unlock()

	s.timer.Stop()
	if started {
		s.enqueue(ctx, arevents.SessionEnd, map[string]any{
			arevents.MetaSessionDurationMS: s.clock.Since(s.detectStart).Milliseconds(),
		})
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.events.ForceFlush(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("AR events not delivered on close")
		return fmt.Errorf("flush AR events: %w", err)
	}
	s.logger.Debug().Msg("AR session closed")
	return nil
}

// expire is the fallback timer's callback.
func (s *Session) expire() {
	s.mu.Lock()
	if s.closed || (s.state != StateScanning && s.state != StatePaused) {
		s.mu.Unlock()
		return
	}
	old := s.setLocked(StateFallback)
	s.mu.Unlock()

	s.logger.Info().Msg("no anchor detected in time, showing fallback")
	s.notify(old, StateFallback)
}

func (s *Session) require(allowed ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(allowed...)
}

func (s *Session) checkLocked(allowed ...State) error {
	if s.closed {
		return ErrClosed
	}
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: not allowed in %s", ErrInvalidTransition, s.state)
}

// setLocked changes state and returns the previous one. Caller holds mu.
func (s *Session) setLocked(next State) State {
	old := s.state
	s.state = next
	if old != next {
		metrics.RecordARSessionState(string(next))
		s.logger.Debug().Str(xglog.FieldOldState, string(old)).Str(xglog.FieldNewState, string(next)).Msg("AR session state change")
	}
	return old
}

func (s *Session) notify(old, next State) {
	if s.onChange != nil && old != next {
		s.onChange(old, next)
	}
}

func (s *Session) enqueue(ctx context.Context, t arevents.EventType, meta map[string]any) {
	s.events.Enqueue(s.Context(ctx), arevents.Event{Type: t, BookID: s.bookID, Metadata: meta})
}
