// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package arevents

import (
	"time"

	"github.com/ManuGH/storyverse/internal/analytics"
	"github.com/ManuGH/storyverse/internal/backend"
)

// EventType is an AR session lifecycle event as emitted by the session.
type EventType string

const (
	SessionStart      EventType = "session_start"
	AnchorFound       EventType = "anchor_found"
	AnchorLost        EventType = "anchor_lost"
	VideoStarted      EventType = "video_started"
	VideoCompleted    EventType = "video_completed"
	FallbackTriggered EventType = "fallback_triggered"
	SessionEnd        EventType = "session_end"
)

// Metadata keys understood by the local analytics mapping.
const (
	MetaTimeToDetectMS    = "timeToDetectMs"
	MetaSessionDurationMS = "sessionDurationMs"
)

// isoMillis matches the backend's ISO-8601 expectation (UTC, millisecond precision).
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Event is one queued tracking event. Timestamp is set by the batcher.
type Event struct {
	Type      EventType
	BookID    string
	Timestamp time.Time
	Metadata  map[string]any
}

func (e Event) wireType() backend.ArEventType {
	switch e.Type {
	case SessionStart:
		return backend.ArSessionStart
	case AnchorFound:
		return backend.ArAnchorFound
	case AnchorLost:
		return backend.ArAnchorLost
	case VideoStarted:
		return backend.ArVideoStarted
	case VideoCompleted:
		return backend.ArVideoCompleted
	case SessionEnd:
		return backend.ArSessionEnd
	default:
		return backend.ArFallbackShown
	}
}

// Wire converts the event to its backend representation.
func (e Event) Wire() backend.ArEvent {
	return backend.ArEvent{
		BookID:    e.BookID,
		EventType: e.wireType(),
		Timestamp: e.Timestamp.UTC().Format(isoMillis),
		Metadata:  e.Metadata,
	}
}

// analyticsEvent returns the local analytics record for e, if any.
func (e Event) analyticsEvent() (analytics.Event, bool) {
	var ev analytics.Event
	switch e.Type {
	case SessionStart:
		ev = analytics.SessionStart(e.BookID)
	case AnchorFound:
		ev = analytics.AnchorFound(e.BookID, metaMillis(e.Metadata, MetaTimeToDetectMS))
	case AnchorLost:
		ev = analytics.AnchorLost(e.BookID, metaMillis(e.Metadata, MetaSessionDurationMS))
	case FallbackTriggered:
		ev = analytics.FallbackShown(e.BookID)
	case VideoCompleted:
		ev = analytics.VideoCompleted(e.BookID)
	default:
		return ev, false
	}
	ev.Timestamp = e.Timestamp
	return ev, true
}

// metaMillis reads a millisecond count from metadata; missing or
// non-numeric values read as zero.
func metaMillis(meta map[string]any, key string) time.Duration {
	switch v := meta[key].(type) {
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v * float64(time.Millisecond))
	case time.Duration:
		return v
	default:
		return 0
	}
}
