// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package renders drives personalized preview renders: it creates jobs and
// polls them until the backend reports a terminal status.
package renders

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/storyverse/internal/backend"
	xglog "github.com/ManuGH/storyverse/internal/log"
	"github.com/ManuGH/storyverse/internal/metrics"
	"github.com/ManuGH/storyverse/internal/telemetry"
)

const (
	DefaultPollInterval     = 2 * time.Second
	DefaultMaxWait          = 120 * time.Second
	DefaultTransportRetries = 2

	defaultRetryInitial = 250 * time.Millisecond
	defaultRetryMax     = 2 * time.Second
)

// JobFetcher reads a render job. *backend.Client implements it.
type JobFetcher interface {
	GetJob(ctx context.Context, jobID string) (*backend.RenderJob, error)
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	// TransportRetries bounds retries of a single fetch after a transient
	// error. Zero means the default; negative disables retries.
	TransportRetries int
	RetryInitial     time.Duration
	RetryMax         time.Duration

	Clock  clockwork.Clock
	Logger *zerolog.Logger
}

// Poller watches render jobs. It holds no per-job state and may be shared.
type Poller struct {
	fetcher      JobFetcher
	interval     time.Duration
	maxWait      time.Duration
	retries      int
	retryInitial time.Duration
	retryMax     time.Duration
	clock        clockwork.Clock
	logger       zerolog.Logger
}

// NewPoller creates a poller reading jobs through f.
func NewPoller(f JobFetcher, opts PollerOptions) *Poller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	switch {
	case opts.TransportRetries == 0:
		opts.TransportRetries = DefaultTransportRetries
	case opts.TransportRetries < 0:
		opts.TransportRetries = 0
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = defaultRetryInitial
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = defaultRetryMax
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	p := &Poller{
		fetcher:      f,
		interval:     opts.PollInterval,
		maxWait:      opts.MaxWait,
		retries:      opts.TransportRetries,
		retryInitial: opts.RetryInitial,
		retryMax:     opts.RetryMax,
		clock:        opts.Clock,
		logger:       xglog.WithComponent("renders"),
	}
	if opts.Logger != nil {
		p.logger = *opts.Logger
	}
	return p
}

// PollUntilComplete fetches the job until it is terminal, calling
// onProgress (if non-nil) with every fetched snapshot, the first and the
// last included. A completed job is returned with a nil error. A failed job
// is returned together with a *JobFailedError. Running out of budget yields
// ErrPollTimeout; transport errors that survive retry are returned as is.
//
// The budget is checked before each wait: polling stops as soon as the next
// fetch would land past MaxWait. A MaxWait shorter than PollInterval
// therefore allows exactly one fetch and times out right after it.
func (p *Poller) PollUntilComplete(ctx context.Context, jobID string, onProgress func(*backend.RenderJob)) (*backend.RenderJob, error) {
	ctx, span := telemetry.Tracer("storyverse.renders").Start(ctx, "storyverse.renders.poll")
	defer span.End()

	start := p.clock.Now()
	polls := 0
	var last *backend.RenderJob

	job, err := func() (*backend.RenderJob, error) {
		for snap, err := range p.Snapshots(ctx, jobID) {
			if err != nil {
				return last, err
			}
			polls++
			last = snap
			if onProgress != nil {
				onProgress(snap)
			}
		}
		return last, nil
	}()

	if err == nil && job != nil && job.Status == backend.RenderFailed {
		err = &JobFailedError{JobID: job.JobID, Message: job.ErrorMessage}
	}

	status := ""
	if job != nil {
		status = string(job.Status)
	}
	span.SetAttributes(telemetry.RenderAttributes(jobID, bookIDOf(job), status, polls)...)
	metrics.ObserveRenderWait(p.clock.Since(start))
	outcome := outcomeOf(err)
	metrics.RecordRenderOutcome(outcome)

	logger := p.logger.With().Str(xglog.FieldJobID, jobID).Int("polls", polls).Logger()
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(telemetry.ErrorAttributes(outcome)...)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Str("outcome", outcome).Msg("render poll ended without a preview")
		if errors.Is(err, ErrJobFailed) {
			return job, err
		}
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	logger.Info().Dur("waited", p.clock.Since(start)).Msg("render job completed")
	return job, nil
}

// Snapshots yields every fetched job state until a terminal status is seen.
// A timeout, cancellation or fetch error is yielded once as the final
// element. Each iteration performs at most one fetch (plus transport
// retries); nothing runs between iterations.
func (p *Poller) Snapshots(ctx context.Context, jobID string) iter.Seq2[*backend.RenderJob, error] {
	return func(yield func(*backend.RenderJob, error) bool) {
		start := p.clock.Now()
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			job, err := p.fetch(ctx, jobID, start)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(job, nil) || job.Status.Terminal() {
				return
			}

			// Give up if the next fetch would land past the budget.
			elapsed := p.clock.Since(start)
			if elapsed+p.interval > p.maxWait {
				yield(nil, fmt.Errorf("%w: job %s still %s after %s, next poll at %s would exceed max wait %s",
					ErrPollTimeout, jobID, job.Status, elapsed, elapsed+p.interval, p.maxWait))
				return
			}
			if err := p.sleep(ctx, p.interval); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// fetch reads the job once, retrying transient failures within the budget.
func (p *Poller) fetch(ctx context.Context, jobID string, start time.Time) (*backend.RenderJob, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.retryInitial
	bo.MaxInterval = p.retryMax
	bo.Reset()

	for retry := 0; ; retry++ {
		job, err := p.fetcher.GetJob(ctx, jobID)
		if err == nil {
			metrics.IncRenderPoll(string(job.Status))
			if verr := validateJob(job); verr != nil {
				return nil, verr
			}
			return job, nil
		}
		metrics.IncRenderPoll("error")

		if retry >= p.retries || ctx.Err() != nil || !backend.IsTransient(err) {
			return nil, err
		}
		wait := bo.NextBackOff()
		if p.clock.Since(start)+wait > p.maxWait {
			return nil, err
		}

		metrics.IncRenderTransportRetry()
		p.logger.Debug().Err(err).
			Str(xglog.FieldJobID, jobID).
			Int("retry", retry+1).
			Dur("backoff", wait).
			Msg("transient error fetching render job, retrying")
		if err := p.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	t := p.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

func validateJob(job *backend.RenderJob) error {
	switch {
	case job == nil:
		return fmt.Errorf("%w: empty response", ErrInvalidJob)
	case !job.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJob, job.Status)
	case !job.Status.Terminal() && (job.PreviewURL != "" || job.ErrorMessage != ""):
		return fmt.Errorf("%w: %s job carries a result", ErrInvalidJob, job.Status)
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrJobFailed):
		return "failed"
	case errors.Is(err, ErrPollTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func bookIDOf(job *backend.RenderJob) string {
	if job == nil {
		return ""
	}
	return job.BookID
}
