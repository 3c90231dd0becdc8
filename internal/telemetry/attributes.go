// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Render jobs
	RenderJobIDKey    = "render.job_id"
	RenderBookIDKey   = "render.book_id"
	RenderStatusKey   = "render.status"
	RenderAttemptsKey = "render.attempts"

	// AR events
	AREventCountKey   = "ar.event_count"
	AREventTriggerKey = "ar.flush_trigger"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RenderAttributes describes a render job poll. Empty values are omitted.
func RenderAttributes(jobID, bookID, status string, attempts int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if jobID != "" {
		attrs = append(attrs, attribute.String(RenderJobIDKey, jobID))
	}
	if bookID != "" {
		attrs = append(attrs, attribute.String(RenderBookIDKey, bookID))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(RenderStatusKey, status))
	}
	return append(attrs, attribute.Int(RenderAttemptsKey, attempts))
}

// FlushAttributes describes one event batch delivery.
func FlushAttributes(trigger string, count int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AREventTriggerKey, trigger),
		attribute.Int(AREventCountKey, count),
	}
}

// ErrorAttributes marks a span as failed with a classified error type.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
