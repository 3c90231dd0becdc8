// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package analytics

import (
	"context"
	"maps"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/storyverse/internal/log"
	"github.com/ManuGH/storyverse/internal/metrics"
)

// Sink receives every accepted event.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Options configures a Tracker.
type Options struct {
	Sinks    []Sink
	Disabled bool
	Clock    clockwork.Clock
	Logger   *zerolog.Logger
}

// Tracker validates events, stamps them and fans them out to sinks.
// Sink failures are logged and never surface to callers.
type Tracker struct {
	mu      sync.RWMutex
	enabled bool
	userID  string
	traits  map[string]any

	sinks  []Sink
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewTracker creates a tracker.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		enabled: !opts.Disabled,
		sinks:   opts.Sinks,
		clock:   opts.Clock,
		logger:  xglog.WithComponent("analytics"),
	}
	if t.clock == nil {
		t.clock = clockwork.NewRealClock()
	}
	if opts.Logger != nil {
		t.logger = *opts.Logger
	}
	return t
}

// Track records ev. Invalid events are dropped with a warning.
func (t *Tracker) Track(ctx context.Context, ev Event) {
	t.mu.RLock()
	enabled, userID := t.enabled, t.userID
	t.mu.RUnlock()
	if !enabled {
		return
	}

	if err := ev.Validate(); err != nil {
		t.logger.Warn().Err(err).Str(xglog.FieldEventType, string(ev.Type)).Msg("dropping analytics event")
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.clock.Now()
	}
	if ev.UserID == "" {
		ev.UserID = userID
	}

	t.logger.Debug().
		Str(xglog.FieldEventType, string(ev.Type)).
		Str(xglog.FieldBookID, ev.BookID).
		Interface("properties", ev.Properties).
		Msg("event tracked")
	metrics.IncAnalyticsEvent(string(ev.Type))

	for _, s := range t.sinks {
		if err := s.Record(ctx, ev); err != nil {
			metrics.IncAnalyticsStoreError()
			t.logger.Warn().Err(err).Str(xglog.FieldEventType, string(ev.Type)).Msg("analytics sink failed")
		}
	}
}

// TrackScreen records a screen view.
func (t *Tracker) TrackScreen(ctx context.Context, screen string) {
	t.Track(ctx, Screen(screen))
}

// SetEnabled toggles tracking.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
	if enabled {
		t.logger.Info().Msg("analytics enabled")
	} else {
		t.logger.Info().Msg("analytics disabled")
	}
}

func (t *Tracker) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Identify attributes subsequent events to userID.
func (t *Tracker) Identify(userID string, traits map[string]any) {
	t.mu.Lock()
	t.userID = userID
	t.traits = maps.Clone(traits)
	t.mu.Unlock()
	t.logger.Debug().Msg("user identified")
}

// Identity returns the identified user and a copy of their traits.
func (t *Tracker) Identity() (string, map[string]any) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userID, maps.Clone(t.traits)
}

// Reset forgets the identified user.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.userID = ""
	t.traits = nil
	t.mu.Unlock()
	t.logger.Debug().Msg("analytics reset")
}
