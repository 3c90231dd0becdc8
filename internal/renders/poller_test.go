// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package renders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/storyverse/internal/backend"
)

type step struct {
	status  backend.RenderStatus
	preview string
	err     error
}

// scriptedFetcher returns the scripted steps in order; the last one repeats.
type scriptedFetcher struct {
	mu      sync.Mutex
	steps   []step
	fetches int
}

func (f *scriptedFetcher) GetJob(_ context.Context, jobID string) (*backend.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.steps[min(f.fetches, len(f.steps)-1)]
	f.fetches++
	if s.err != nil {
		return nil, s.err
	}
	job := &backend.RenderJob{JobID: jobID, BookID: "book-moon", Status: s.status, PreviewURL: s.preview}
	if s.status == backend.RenderFailed {
		job.ErrorMessage = "out of glitter"
	}
	if s.status == backend.RenderCompleted && job.PreviewURL == "" {
		job.PreviewURL = "https://cdn.example.test/previews/" + jobID + ".mp4"
	}
	return job, nil
}

func (f *scriptedFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func statuses(ss ...backend.RenderStatus) []step {
	out := make([]step, len(ss))
	for i, s := range ss {
		out[i] = step{status: s}
	}
	return out
}

func newTestPoller(f JobFetcher, opts PollerOptions) (*Poller, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	nop := zerolog.Nop()
	opts.Clock = clock
	opts.Logger = &nop
	return NewPoller(f, opts), clock
}

// drive advances the fake clock by step whenever the poller is waiting,
// until done is closed.
func drive(clock *clockwork.FakeClock, step time.Duration, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		err := clock.BlockUntilContext(ctx, 1)
		cancel()
		if err == nil {
			clock.Advance(step)
		}
	}
}

type pollResult struct {
	job      *backend.RenderJob
	err      error
	progress []backend.RenderStatus
}

func runPoll(ctx context.Context, p *Poller, clock *clockwork.FakeClock, step time.Duration) pollResult {
	done := make(chan struct{})
	go drive(clock, step, done)
	defer close(done)

	var res pollResult
	res.job, res.err = p.PollUntilComplete(ctx, "job-1", func(j *backend.RenderJob) {
		res.progress = append(res.progress, j.Status)
	})
	return res
}

func TestPoller_CompletesAfterThreeFetches(t *testing.T) {
	f := &scriptedFetcher{steps: statuses(backend.RenderPending, backend.RenderPending, backend.RenderCompleted)}
	p, clock := newTestPoller(f, PollerOptions{})

	res := runPoll(context.Background(), p, clock, DefaultPollInterval)

	require.NoError(t, res.err)
	assert.Equal(t, backend.RenderCompleted, res.job.Status)
	assert.Equal(t, 3, f.count())
	assert.Equal(t, []backend.RenderStatus{backend.RenderPending, backend.RenderPending, backend.RenderCompleted}, res.progress)
}

func TestPoller_TimesOutBeforeThirdFetch(t *testing.T) {
	tests := []struct {
		name        string
		maxWait     time.Duration
		wantFetches int
	}{
		{"budget below one interval", time.Second, 1},
		{"budget between one and two intervals", 3 * time.Second, 2},
		{"budget just under two intervals", 4*time.Second - time.Millisecond, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{steps: statuses(backend.RenderProcessing)}
			p, clock := newTestPoller(f, PollerOptions{PollInterval: 2 * time.Second, MaxWait: tt.maxWait})

			res := runPoll(context.Background(), p, clock, 2*time.Second)

			require.ErrorIs(t, res.err, ErrPollTimeout)
			assert.Nil(t, res.job)
			assert.Equal(t, tt.wantFetches, f.count())
			assert.Len(t, res.progress, tt.wantFetches)
		})
	}
}

func TestPoller_BudgetShorterThanIntervalExplainsTimeout(t *testing.T) {
	f := &scriptedFetcher{steps: statuses(backend.RenderPending)}
	p, clock := newTestPoller(f, PollerOptions{PollInterval: 2 * time.Second, MaxWait: time.Second})

	res := runPoll(context.Background(), p, clock, 2*time.Second)

	require.ErrorIs(t, res.err, ErrPollTimeout)
	assert.Equal(t, 1, f.count())
	assert.Contains(t, res.err.Error(), "still pending after 0s, next poll at 2s would exceed max wait 1s")
}

func TestPoller_FailedJob(t *testing.T) {
	f := &scriptedFetcher{steps: statuses(backend.RenderProcessing, backend.RenderFailed)}
	p, clock := newTestPoller(f, PollerOptions{})

	res := runPoll(context.Background(), p, clock, DefaultPollInterval)

	require.ErrorIs(t, res.err, ErrJobFailed)
	var failed *JobFailedError
	require.True(t, errors.As(res.err, &failed))
	assert.Equal(t, "out of glitter", failed.Message)
	require.NotNil(t, res.job)
	assert.Equal(t, backend.RenderFailed, res.job.Status)
	assert.Len(t, res.progress, 2)
}

func TestPoller_TransportErrors(t *testing.T) {
	unavailable := &backend.APIError{Sentinel: backend.ErrUnavailable}
	serverErr := &backend.APIError{Sentinel: backend.ErrRejected, Status: 503}
	notFound := &backend.APIError{Sentinel: backend.ErrRejected, Status: 404}

	tests := []struct {
		name        string
		retries     int
		steps       []step
		wantErr     error
		wantFetches int
	}{
		{
			name:        "transient error is retried",
			steps:       []step{{err: serverErr}, {status: backend.RenderCompleted}},
			wantFetches: 2,
		},
		{
			name:        "rejection aborts immediately",
			steps:       []step{{err: notFound}},
			wantErr:     backend.ErrRejected,
			wantFetches: 1,
		},
		{
			name:        "retries are bounded",
			steps:       []step{{err: unavailable}},
			wantErr:     backend.ErrUnavailable,
			wantFetches: 1 + DefaultTransportRetries,
		},
		{
			name:        "negative retries fail fast",
			retries:     -1,
			steps:       []step{{err: unavailable}, {status: backend.RenderCompleted}},
			wantErr:     backend.ErrUnavailable,
			wantFetches: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{steps: tt.steps}
			p, clock := newTestPoller(f, PollerOptions{TransportRetries: tt.retries})

			res := runPoll(context.Background(), p, clock, DefaultPollInterval)

			if tt.wantErr != nil {
				assert.ErrorIs(t, res.err, tt.wantErr)
			} else {
				assert.NoError(t, res.err)
			}
			assert.Equal(t, tt.wantFetches, f.count())
		})
	}
}

func TestPoller_RetryNeverExtendsBudget(t *testing.T) {
	unavailable := &backend.APIError{Sentinel: backend.ErrUnavailable}
	f := &scriptedFetcher{steps: []step{{status: backend.RenderProcessing}, {err: unavailable}}}
	p, clock := newTestPoller(f, PollerOptions{
		PollInterval:     2 * time.Second,
		MaxWait:          2*time.Second + 100*time.Millisecond,
		TransportRetries: 5,
		RetryInitial:     time.Second,
	})

	res := runPoll(context.Background(), p, clock, 2*time.Second)

	assert.ErrorIs(t, res.err, backend.ErrUnavailable)
	assert.Equal(t, 2, f.count(), "no retry may start once the budget would be exceeded")
}

func TestPoller_RejectsMalformedJob(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: backend.RenderProcessing, preview: "https://cdn.example.test/early.mp4"}}}
	p, clock := newTestPoller(f, PollerOptions{})

	res := runPoll(context.Background(), p, clock, DefaultPollInterval)
	assert.ErrorIs(t, res.err, ErrInvalidJob)

	f = &scriptedFetcher{steps: statuses("queued")}
	p, clock = newTestPoller(f, PollerOptions{})
	res = runPoll(context.Background(), p, clock, DefaultPollInterval)
	assert.ErrorIs(t, res.err, ErrInvalidJob)
}

func TestPoller_CancellationStopsPolling(t *testing.T) {
	f := &scriptedFetcher{steps: statuses(backend.RenderProcessing)}
	p, clock := newTestPoller(f, PollerOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := p.PollUntilComplete(ctx, "job-1", nil)
		errc <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poll did not stop after cancellation")
	}
	assert.Equal(t, 1, f.count())
}

func TestPoller_SnapshotsStopsWhenConsumerBreaks(t *testing.T) {
	f := &scriptedFetcher{steps: statuses(backend.RenderPending)}
	p, _ := newTestPoller(f, PollerOptions{})

	var seen int
	for job, err := range p.Snapshots(context.Background(), "job-1") {
		require.NoError(t, err)
		assert.Equal(t, backend.RenderPending, job.Status)
		seen++
		break
	}
	assert.Equal(t, 1, seen)
	assert.Equal(t, 1, f.count())
}

func TestPoller_SnapshotsAgainstMockServer(t *testing.T) {
	mock := backend.NewMockServer()
	defer mock.Close()
	mock.AddJob("job-1", backend.RenderPending, backend.RenderProcessing, backend.RenderCompleted)

	nop := zerolog.Nop()
	client := backend.New(mock.URL, backend.Options{Logger: &nop})
	p, clock := newTestPoller(client, PollerOptions{})

	done := make(chan struct{})
	go drive(clock, DefaultPollInterval, done)
	defer close(done)

	var got []backend.RenderStatus
	for job, err := range p.Snapshots(context.Background(), "job-1") {
		require.NoError(t, err)
		got = append(got, job.Status)
	}
	assert.Equal(t, []backend.RenderStatus{backend.RenderPending, backend.RenderProcessing, backend.RenderCompleted}, got)
	assert.Equal(t, 3, mock.Fetches("job-1"))
}
