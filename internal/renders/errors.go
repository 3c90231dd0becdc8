// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package renders

import (
	"errors"
	"fmt"
)

var (
	ErrPollTimeout = errors.New("renders: render job timed out")
	ErrJobFailed   = errors.New("renders: render job failed")
	ErrInvalidJob  = errors.New("renders: malformed render job")
	ErrInvalidName = errors.New("renders: invalid child name")
)

// JobFailedError reports a job that reached the failed status.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("renders: job %s failed", e.JobID)
	}
	return fmt.Sprintf("renders: job %s failed: %s", e.JobID, e.Message)
}

func (e *JobFailedError) Unwrap() error { return ErrJobFailed }
