// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"encoding/json"
	"time"
)

// RenderStatus is the lifecycle state of a server-side render job.
type RenderStatus string

const (
	RenderPending    RenderStatus = "pending"
	RenderProcessing RenderStatus = "processing"
	RenderCompleted  RenderStatus = "completed"
	RenderFailed     RenderStatus = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s RenderStatus) Terminal() bool {
	return s == RenderCompleted || s == RenderFailed
}

// Valid reports whether s is a known status.
func (s RenderStatus) Valid() bool {
	switch s {
	case RenderPending, RenderProcessing, RenderCompleted, RenderFailed:
		return true
	}
	return false
}

// RenderJob is the backend's view of a personalization render.
// The client only observes it.
type RenderJob struct {
	JobID        string       `json:"jobId"`
	BookID       string       `json:"bookId,omitempty"`
	Status       RenderStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
	PreviewURL   string       `json:"previewUrl,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}

// CreatePreviewRequest asks the backend for a personalized preview.
type CreatePreviewRequest struct {
	BookID    string `json:"bookId"`
	ChildName string `json:"childName"`
	Locale    string `json:"locale,omitempty"`
}

// ArExperience is the AR configuration resolved for a book.
type ArExperience struct {
	BookID         string  `json:"bookId"`
	Title          string  `json:"title"`
	TargetURL      string  `json:"targetUrl"`
	VideoURL       string  `json:"videoUrl"`
	PhysicalWidth  float64 `json:"physicalWidth"`
	PhysicalHeight float64 `json:"physicalHeight"`
	Theme          string  `json:"theme"`
}

// ArEventType is the wire name of an AR analytics event.
type ArEventType string

const (
	ArSessionStart   ArEventType = "session_start"
	ArAnchorFound    ArEventType = "anchor_found"
	ArAnchorLost     ArEventType = "anchor_lost"
	ArVideoStarted   ArEventType = "video_started"
	ArVideoCompleted ArEventType = "video_completed"
	ArFallbackShown  ArEventType = "fallback_shown"
	ArSessionEnd     ArEventType = "session_end"
)

// ArEvent is one delivered AR analytics event. Timestamp is ISO-8601.
type ArEvent struct {
	BookID    string         `json:"bookId"`
	EventType ArEventType    `json:"eventType"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ArEventBatch is the body of POST /ar/events/batch.
type ArEventBatch struct {
	Events []ArEvent `json:"events"`
}

// LibraryBook is a book the user has unlocked.
type LibraryBook struct {
	BookID       string     `json:"bookId"`
	Title        string     `json:"title"`
	CoverURL     string     `json:"coverUrl"`
	Theme        string     `json:"theme"`
	UnlockedAt   time.Time  `json:"unlockedAt"`
	LastViewedAt *time.Time `json:"lastViewedAt,omitempty"`
	IsNew        bool       `json:"isNew"`
}

// LibraryResponse is the body of GET /library.
type LibraryResponse struct {
	Books      []LibraryBook `json:"books"`
	TotalCount int           `json:"totalCount"`
}

// errorBody is the optional structured body of a non-2xx response.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// rawJSON keeps b as error data when it is a valid JSON document.
func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}
