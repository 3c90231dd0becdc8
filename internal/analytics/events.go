// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package analytics records product analytics events.
package analytics

import (
	"errors"
	"fmt"
	"time"
)

// EventType names an analytics event.
type EventType string

const (
	ScreenView               EventType = "screen_view"
	ARSessionStart           EventType = "ar_session_start"
	ARAnchorFound            EventType = "ar_anchor_found"
	ARAnchorLost             EventType = "ar_anchor_lost"
	ARFallbackShown          EventType = "ar_fallback_shown"
	ARVideoCompleted         EventType = "ar_video_completed"
	BookUnlocked             EventType = "book_unlocked"
	LibraryOpened            EventType = "library_opened"
	PersonalizationStarted   EventType = "personalization_started"
	PersonalizationCompleted EventType = "personalization_completed"
	CTAPressed               EventType = "cta_pressed"
)

// Property keys.
const (
	PropScreen            = "screen"
	PropTimeToDetectMS    = "timeToDetectMs"
	PropSessionDurationMS = "sessionDurationMs"
	PropRenderTimeMS      = "renderTimeMs"
	PropCTAType           = "ctaType"
)

var ErrInvalidEvent = errors.New("analytics: invalid event")

// Event is one tracked occurrence.
type Event struct {
	Type       EventType
	BookID     string
	UserID     string
	Properties map[string]any
	Timestamp  time.Time
}

// required lists the fields each event type must carry.
var required = map[EventType]struct {
	book bool
	prop string
}{
	ScreenView:               {prop: PropScreen},
	ARSessionStart:           {book: true},
	ARAnchorFound:            {book: true, prop: PropTimeToDetectMS},
	ARAnchorLost:             {book: true, prop: PropSessionDurationMS},
	ARFallbackShown:          {book: true},
	ARVideoCompleted:         {book: true},
	BookUnlocked:             {book: true},
	LibraryOpened:            {},
	PersonalizationStarted:   {book: true},
	PersonalizationCompleted: {book: true, prop: PropRenderTimeMS},
	CTAPressed:               {prop: PropCTAType},
}

// Validate checks that the event type is known and its fields are present.
func (e Event) Validate() error {
	req, ok := required[e.Type]
	if !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if req.book && e.BookID == "" {
		return fmt.Errorf("%w: %s requires bookId", ErrInvalidEvent, e.Type)
	}
	if req.prop != "" {
		if _, ok := e.Properties[req.prop]; !ok {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidEvent, e.Type, req.prop)
		}
	}
	return nil
}

func withProp(t EventType, bookID, key string, v any) Event {
	return Event{Type: t, BookID: bookID, Properties: map[string]any{key: v}}
}

func Screen(name string) Event { return withProp(ScreenView, "", PropScreen, name) }

func SessionStart(bookID string) Event { return Event{Type: ARSessionStart, BookID: bookID} }

func AnchorFound(bookID string, timeToDetect time.Duration) Event {
	return withProp(ARAnchorFound, bookID, PropTimeToDetectMS, timeToDetect.Milliseconds())
}

func AnchorLost(bookID string, sessionDuration time.Duration) Event {
	return withProp(ARAnchorLost, bookID, PropSessionDurationMS, sessionDuration.Milliseconds())
}

func FallbackShown(bookID string) Event { return Event{Type: ARFallbackShown, BookID: bookID} }

func VideoCompleted(bookID string) Event { return Event{Type: ARVideoCompleted, BookID: bookID} }

func Unlocked(bookID string) Event { return Event{Type: BookUnlocked, BookID: bookID} }

func LibraryOpen() Event { return Event{Type: LibraryOpened} }

func PreviewStarted(bookID string) Event { return Event{Type: PersonalizationStarted, BookID: bookID} }

func PreviewCompleted(bookID string, renderTime time.Duration) Event {
	return withProp(PersonalizationCompleted, bookID, PropRenderTimeMS, renderTime.Milliseconds())
}

// CTA records a call-to-action press; bookID may be empty.
func CTA(ctaType, bookID string) Event { return withProp(CTAPressed, bookID, PropCTAType, ctaType) }
