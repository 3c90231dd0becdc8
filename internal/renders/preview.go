// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package renders

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/storyverse/internal/analytics"
	"github.com/ManuGH/storyverse/internal/backend"
	"github.com/ManuGH/storyverse/internal/cache"
	xglog "github.com/ManuGH/storyverse/internal/log"
)

// MaxChildNameRunes bounds the personalized name.
const MaxChildNameRunes = 40

// PreviewClient creates and reads render jobs. *backend.Client implements it.
type PreviewClient interface {
	JobFetcher
	CreatePreview(ctx context.Context, req backend.CreatePreviewRequest) (*backend.RenderJob, error)
}

// Tracker receives analytics events. *analytics.Tracker implements it.
type Tracker interface {
	Track(ctx context.Context, ev analytics.Event)
}

// PreviewerOptions configures a Previewer.
type PreviewerOptions struct {
	Tracker  Tracker
	Cache    cache.Cache
	CacheTTL time.Duration
	Clock    clockwork.Clock
	Logger   *zerolog.Logger
}

// Previewer runs the personalization flow: create a preview job, poll it
// and record the outcome.
type Previewer struct {
	client  PreviewClient
	poller  *Poller
	tracker Tracker
	cache   cache.Cache
	ttl     time.Duration
	clock   clockwork.Clock
	logger  zerolog.Logger
}

// NewPreviewer wires a previewer. poller should read through client.
func NewPreviewer(client PreviewClient, poller *Poller, opts PreviewerOptions) *Previewer {
	p := &Previewer{
		client:  client,
		poller:  poller,
		tracker: opts.Tracker,
		cache:   opts.Cache,
		ttl:     opts.CacheTTL,
		clock:   opts.Clock,
		logger:  xglog.WithComponent("preview"),
	}
	if p.cache == nil {
		p.cache = cache.NoOpCache{}
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	if opts.Logger != nil {
		p.logger = *opts.Logger
	}
	return p
}

// NormalizeChildName trims, NFC-normalizes and collapses whitespace in
// name, then checks it is 1-40 printable runes.
func NormalizeChildName(name string) (string, error) {
	n := strings.Join(strings.Fields(norm.NFC.String(name)), " ")
	if n == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if c := utf8.RuneCountInString(n); c > MaxChildNameRunes {
		return "", fmt.Errorf("%w: %d characters, at most %d allowed", ErrInvalidName, c, MaxChildNameRunes)
	}
	for _, r := range n {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("%w: contains non-printable character %U", ErrInvalidName, r)
		}
	}
	return n, nil
}

// Request creates a personalized preview for bookID and waits for it.
// The terminal job is cached under its job key.
func (p *Previewer) Request(ctx context.Context, bookID, childName, locale string, onProgress func(*backend.RenderJob)) (*backend.RenderJob, error) {
	if strings.TrimSpace(bookID) == "" {
		return nil, fmt.Errorf("renders: book id is required")
	}
	name, err := NormalizeChildName(childName)
	if err != nil {
		return nil, err
	}

	logger := p.logger.With().Str(xglog.FieldBookID, bookID).Logger()
	logger.Info().Msg("creating personalization preview")
	p.track(ctx, analytics.PreviewStarted(bookID))
	start := p.clock.Now()

	created, err := p.client.CreatePreview(ctx, backend.CreatePreviewRequest{BookID: bookID, ChildName: name, Locale: locale})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create preview")
		return nil, fmt.Errorf("create preview: %w", err)
	}
	logger = logger.With().Str(xglog.FieldJobID, created.JobID).Logger()

	job, err := p.poller.PollUntilComplete(ctx, created.JobID, func(j *backend.RenderJob) {
		logger.Debug().Str(xglog.FieldStatus, string(j.Status)).Msg("render progress")
		if onProgress != nil {
			onProgress(j)
		}
	})
	if job != nil && job.Status.Terminal() {
		if cerr := cache.SetJSON(ctx, p.cache, cache.RenderJobKey(job.JobID), job, p.ttl); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to cache render job")
		}
	}
	if err != nil {
		return job, err
	}

	p.track(ctx, analytics.PreviewCompleted(bookID, renderTime(job, p.clock.Since(start))))
	return job, nil
}

// CachedJob returns a previously finished job from the cache.
func (p *Previewer) CachedJob(ctx context.Context, jobID string) (*backend.RenderJob, bool) {
	job, ok := cache.GetJSON[backend.RenderJob](ctx, p.cache, cache.RenderJobKey(jobID))
	if !ok {
		return nil, false
	}
	return &job, true
}

func (p *Previewer) track(ctx context.Context, ev analytics.Event) {
	if p.tracker != nil {
		p.tracker.Track(ctx, ev)
	}
}

// renderTime prefers the server's own timestamps and falls back to the
// locally observed wait.
func renderTime(job *backend.RenderJob, observed time.Duration) time.Duration {
	if job.CompletedAt != nil && !job.CreatedAt.IsZero() {
		if d := job.CompletedAt.Sub(job.CreatedAt); d >= 0 {
			return d
		}
	}
	return observed
}
