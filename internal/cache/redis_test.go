// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := newRedisCache(client, "", zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedisCache_SetGet(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)

	c.Set(ctx, "library", []byte(`{"books":[]}`), time.Minute)

	val, ok := c.Get(ctx, "library")
	require.True(t, ok)
	assert.JSONEq(t, `{"books":[]}`, string(val))
	assert.True(t, mr.Exists("storyverse:library"), "keys are namespaced")

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)

	c.Set(ctx, "short", []byte("v"), 10*time.Second)
	c.Set(ctx, "default", []byte("v"), 0)
	assert.Equal(t, DefaultTTL, mr.TTL("storyverse:default"))

	mr.FastForward(11 * time.Second)
	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "default")
	assert.True(t, ok)
}

func TestRedisCache_ClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)

	for _, k := range []string{"library", "ar-experience:a", "render-job:1"} {
		c.Set(ctx, k, []byte("v"), time.Minute)
	}
	require.NoError(t, mr.Set("other-app:key", "keep"))

	c.Clear(ctx)
	assert.Equal(t, 0, c.Stats().CurrentSize)
	assert.True(t, mr.Exists("other-app:key"))
}

func TestRedisCache_Delete(t *testing.T) {
	ctx := context.Background()
	_, c := setupMiniRedis(t)

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_ServerDownIsMiss(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)
	mr.Close()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Error(t, c.HealthCheck(ctx))
}

func TestNewRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(context.Background(), RedisConfig{Addr: mr.Addr(), KeyPrefix: "sv:"}, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	c.Set(context.Background(), "k", []byte("v"), time.Minute)
	assert.True(t, mr.Exists("sv:k"))

	mr.Close()
	_, err = NewRedisCache(context.Background(), RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	assert.Error(t, err)
}

func TestGetOrSet_Redis(t *testing.T) {
	ctx := context.Background()
	_, c := setupMiniRedis(t)

	loads := 0
	for i := 0; i < 3; i++ {
		got, err := GetOrSet(ctx, c, LibraryKey(), time.Minute, func(context.Context) ([]string, error) {
			loads++
			return []string{"book-moon"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"book-moon"}, got)
	}
	assert.Equal(t, 1, loads)
}
