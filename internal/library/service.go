// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package library serves the user's unlocked books and their AR experiences
// through the response cache.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/storyverse/internal/analytics"
	"github.com/ManuGH/storyverse/internal/backend"
	"github.com/ManuGH/storyverse/internal/cache"
	xglog "github.com/ManuGH/storyverse/internal/log"
)

// ErrInvalidBook is returned for an empty book id.
var ErrInvalidBook = errors.New("library: book id is required")

// Backend is the subset of the API the library needs. *backend.Client implements it.
type Backend interface {
	GetLibrary(ctx context.Context) (*backend.LibraryResponse, error)
	MarkViewed(ctx context.Context, bookID string) error
	UnlockBook(ctx context.Context, bookID string) (*backend.LibraryBook, error)
	ResolveExperience(ctx context.Context, bookID string) (*backend.ArExperience, error)
}

// Tracker receives analytics events. *analytics.Tracker implements it.
type Tracker interface {
	Track(ctx context.Context, ev analytics.Event)
}

// Options configures a Service.
type Options struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	Tracker  Tracker
	Logger   *zerolog.Logger
}

// Service provides the library and experience lookups.
type Service struct {
	api     Backend
	cache   cache.Cache
	ttl     time.Duration
	tracker Tracker
	logger  zerolog.Logger

	// Concurrent misses for the same key share one backend call.
	loads singleflight.Group
}

// NewService creates a library service backed by api.
func NewService(api Backend, opts Options) *Service {
	s := &Service{
		api:     api,
		cache:   opts.Cache,
		ttl:     opts.CacheTTL,
		tracker: opts.Tracker,
		logger:  xglog.WithComponent("library"),
	}
	if s.cache == nil {
		s.cache = cache.NoOpCache{}
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	return s
}

// Library returns the unlocked books, from cache when fresh.
func (s *Service) Library(ctx context.Context) (*backend.LibraryResponse, error) {
	resp, err := shared(s, cache.LibraryKey(), func() (backend.LibraryResponse, error) {
		return cache.GetOrSet(ctx, s.cache, cache.LibraryKey(), s.ttl, func(ctx context.Context) (backend.LibraryResponse, error) {
			r, err := s.api.GetLibrary(ctx)
			if err != nil {
				return backend.LibraryResponse{}, err
			}
			s.logger.Debug().Int("books", len(r.Books)).Msg("library loaded from backend")
			return *r, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	return &resp, nil
}

// Open loads the library and records that it was shown.
func (s *Service) Open(ctx context.Context) (*backend.LibraryResponse, error) {
	resp, err := s.Library(ctx)
	if err != nil {
		return nil, err
	}
	s.track(ctx, analytics.LibraryOpen())
	return resp, nil
}

// Refresh drops the cached library and loads it again.
func (s *Service) Refresh(ctx context.Context) (*backend.LibraryResponse, error) {
	s.invalidate(ctx)
	return s.Library(ctx)
}

// MarkViewed records that the book was opened and invalidates the library.
func (s *Service) MarkViewed(ctx context.Context, bookID string) error {
	if err := checkBookID(bookID); err != nil {
		return err
	}
	if err := s.api.MarkViewed(ctx, bookID); err != nil {
		return fmt.Errorf("mark %s viewed: %w", bookID, err)
	}
	s.invalidate(ctx)
	return nil
}

// Unlock adds the book to the library.
func (s *Service) Unlock(ctx context.Context, bookID string) (*backend.LibraryBook, error) {
	if err := checkBookID(bookID); err != nil {
		return nil, err
	}
	book, err := s.api.UnlockBook(ctx, bookID)
	if err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldBookID, bookID).Msg("unlock failed")
		return nil, fmt.Errorf("unlock %s: %w", bookID, err)
	}
	s.invalidate(ctx)
	s.track(ctx, analytics.Unlocked(bookID))
	s.logger.Info().Str(xglog.FieldBookID, bookID).Msg("book unlocked")
	return book, nil
}

// Experience resolves the AR experience for a book, from cache when fresh.
func (s *Service) Experience(ctx context.Context, bookID string) (*backend.ArExperience, error) {
	if err := checkBookID(bookID); err != nil {
		return nil, err
	}
	key := cache.ExperienceKey(bookID)
	exp, err := shared(s, key, func() (backend.ArExperience, error) {
		return cache.GetOrSet(ctx, s.cache, key, s.ttl, func(ctx context.Context) (backend.ArExperience, error) {
			e, err := s.api.ResolveExperience(ctx, bookID)
			if err != nil {
				return backend.ArExperience{}, err
			}
			return *e, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("resolve experience %s: %w", bookID, err)
	}
	return &exp, nil
}

func (s *Service) invalidate(ctx context.Context) {
	s.loads.Forget(cache.LibraryKey())
	s.cache.Delete(ctx, cache.LibraryKey())
}

func (s *Service) track(ctx context.Context, ev analytics.Event) {
	if s.tracker != nil {
		s.tracker.Track(ctx, ev)
	}
}

// shared collapses concurrent loads of key into one call.
func shared[T any](s *Service, key string, fn func() (T, error)) (T, error) {
	v, err, _ := s.loads.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func checkBookID(bookID string) error {
	if strings.TrimSpace(bookID) == "" {
		return ErrInvalidBook
	}
	return nil
}
