// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldBookID    = "book_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldEventType = "event_type"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldStatus   = "status"

	// Timing fields
	FieldElapsedMS   = "elapsed_ms"
	FieldRemainingMS = "remaining_ms"

	// Network fields
	FieldMethod   = "method"
	FieldEndpoint = "endpoint"
	FieldBaseURL  = "base_url"
)
