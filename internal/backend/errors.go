// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnavailable = errors.New("backend: host unreachable or transport failure")
	ErrRejected    = errors.New("backend: request rejected")
	ErrTimeout     = errors.New("backend: request timed out")
	ErrBadResponse = errors.New("backend: invalid response format or malformed data")
)

// APIError is a rich error type that wraps the sentinel errors with context.
// Status is 0 for transport failures and 408 for client-side timeouts.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Code      string
	Message   string
	Data      json.RawMessage
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("backend: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsTransient reports whether retrying the same request may succeed:
// transport failures, client-side timeouts, throttling and 5xx.
func IsTransient(err error) bool {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) {
		return true
	}
	if !errors.Is(err, ErrRejected) {
		return false
	}
	status := StatusCode(err)
	return status >= http.StatusInternalServerError ||
		status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout
}
