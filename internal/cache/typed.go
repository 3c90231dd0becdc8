// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ManuGH/storyverse/internal/log"
	"github.com/ManuGH/storyverse/internal/metrics"
)

// Key builders shared by every consumer of the cache.
func LibraryKey() string { return "library" }

func ExperienceKey(bookID string) string { return "ar-experience:" + bookID }

func RenderJobKey(jobID string) string { return "render-job:" + jobID }

// GetJSON decodes the cached value for key into a T.
// Undecodable entries are treated as misses and evicted.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(ctx, key)
	if !ok {
		metrics.IncCacheLookup("miss")
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		logger := log.WithComponent("cache")
		logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		c.Delete(ctx, key)
		metrics.IncCacheLookup("corrupt")
		var zero T
		return zero, false
	}
	metrics.IncCacheLookup("hit")
	return out, true
}

// SetJSON stores v under key.
func SetJSON[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Set(ctx, key, raw, ttl)
	return nil
}

// GetOrSet returns the cached T for key or loads, stores and returns it.
// Load errors are returned and nothing is cached.
func GetOrSet[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := GetJSON[T](ctx, c, key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := SetJSON(ctx, c, key, v, ttl); err != nil {
		logger := log.WithComponent("cache")
		logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
	}
	return v, nil
}
