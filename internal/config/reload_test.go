// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/renameio/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newHolder(t *testing.T, body string) (*ConfigHolder, string) {
	t.Helper()
	path := writeConfig(t, body)
	loader := NewLoader(path, "dev")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return NewConfigHolder(cfg, loader), path
}

func TestConfigHolder_Reload(t *testing.T) {
	h, path := newHolder(t, "logLevel: info\n")
	updates := make(chan AppConfig, 1)
	h.RegisterListener(updates)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "debug", h.Get().LogLevel)
	select {
	case cfg := <-updates:
		assert.Equal(t, "debug", cfg.LogLevel)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestConfigHolder_InvalidReloadKeepsCurrent(t *testing.T) {
	h, path := newHolder(t, "logLevel: warn\n")

	require.NoError(t, os.WriteFile(path, []byte("logLevel: loud\n"), 0o600))
	assert.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "warn", h.Get().LogLevel)

	require.NoError(t, os.WriteFile(path, []byte("nope: true\n"), 0o600))
	assert.ErrorIs(t, h.Reload(context.Background()), ErrUnknownConfigField)
	assert.Equal(t, "warn", h.Get().LogLevel)
}

func TestConfigHolder_FullListenerDoesNotBlock(t *testing.T) {
	h, _ := newHolder(t, "")
	full := make(chan AppConfig)
	h.RegisterListener(full)
	assert.NoError(t, h.Reload(context.Background()))
}

func TestConfigHolder_WatcherReloadsOnReplace(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h, path := newHolder(t, "ar:\n  fallbackTimeout: 10s\n")
	h.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))

	// Editors and WriteDefault replace the file rather than writing in place.
	require.NoError(t, renameio.WriteFile(path, []byte("ar:\n  fallbackTimeout: 20s\n"), 0o600))

	assert.Eventually(t, func() bool {
		return h.Get().AR.FallbackTimeout == 20*time.Second
	}, 5*time.Second, 10*time.Millisecond)

	h.Stop()
	// Let a pending debounce callback finish before the leak check.
	time.Sleep(50 * time.Millisecond)
}

func TestConfigHolder_WatcherDisabledWithoutFile(t *testing.T) {
	cfg, err := NewLoader("", "dev").Load()
	require.NoError(t, err)
	h := NewConfigHolder(cfg, NewLoader("", "dev"))

	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
