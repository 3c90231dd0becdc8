// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/storyverse/internal/validate"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storyverse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("", "1.2.3").Load()
	require.NoError(t, err)

	want := Defaults()
	want.Version = "1.2.3"
	assert.Equal(t, want, cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: staging
api:
  url: https://api.storyverse.example/
  timeout: 10s
renders:
  pollInterval: 1s
ar:
  fallbackTimeout: 15s
cache:
  backend: redis
  redis:
    addr: redis:6379
    db: 2
`)
	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, "https://api.storyverse.example", cfg.API.URL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, "v1", cfg.API.Version, "unset keys keep their default")
	assert.Equal(t, time.Second, cfg.Renders.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.AR.FallbackTimeout)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, "storyverse:", cfg.Cache.Redis.KeyPrefix)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "api:\n  url: https://file.example\nar:\n  batchSize: 20\n")
	t.Setenv(EnvKeyAPIURL, "https://env.example")
	t.Setenv(EnvKeyAPIToken, "secret-token")
	t.Setenv(EnvKeyBatchSize, "5")
	t.Setenv(EnvKeyDebug, "yes")
	t.Setenv(EnvKeyFallbackTimeout, "not-a-duration")

	l := NewLoader(path, "dev")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example", cfg.API.URL)
	assert.Equal(t, "secret-token", cfg.API.AuthToken)
	assert.Equal(t, 5, cfg.AR.BatchSize)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, 10*time.Second, cfg.AR.FallbackTimeout, "invalid env values fall back")
	assert.Contains(t, l.ConsumedEnvKeys, EnvKeyAPIURL)
	assert.Equal(t, "***", cfg.Redacted().API.AuthToken)
}

func TestLoad_StrictParsing(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"unknown top-level key", "apiUrl: http://x\n", ErrUnknownConfigField},
		{"unknown nested key", "ar:\n  fallbackTimeoutMs: 10\n", ErrUnknownConfigField},
		{"multiple documents", "environment: staging\n---\nenvironment: production\n", nil},
		{"malformed duration", "api:\n  timeout: soon\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(writeConfig(t, tt.body), "dev").Load()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, ""), "dev").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().API.URL, cfg.API.URL)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "dev").Load()
	assert.ErrorContains(t, err, "only YAML supported")
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Environment = "prod"
	cfg.AR.BatchSize = 0
	cfg.Renders.PollInterval = time.Minute
	cfg.Renders.MaxWait = 30 * time.Second
	cfg.Cache.Backend = "disk"

	err := Validate(cfg)
	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Subset(t, verr.Fields(), []string{"environment", "ar.batchSize", "renders.maxWait", "cache.backend"})
}

func TestValidate_ProductionRequiresHTTPS(t *testing.T) {
	cfg := Defaults()
	cfg.Environment = EnvProduction
	assert.Error(t, Validate(cfg))

	cfg.API.URL = "https://api.storyverse.example"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_TelemetryOnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.Exporter = "zipkin"
	assert.NoError(t, Validate(cfg))

	cfg.Telemetry.Enabled = true
	assert.Error(t, Validate(cfg))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "", want: ""},
		{in: "  http://localhost:3000/ ", want: "http://localhost:3000"},
		{in: "https://API.Example.com/v1/", want: "https://api.example.com/v1"},
		{in: "https://bücher.example/api", want: "https://xn--bcher-kva.example/api"},
		{in: "http://[::1]:3000", want: "http://[::1]:3000"},
		{in: "http://bad host", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storyverse.yaml")
	require.NoError(t, WriteDefault(path, false))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "fallbackTimeout: 10s")

	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)
	want := Defaults()
	want.Version = "dev"
	assert.Equal(t, want, cfg)

	assert.ErrorIs(t, WriteDefault(path, false), ErrConfigExists)
	assert.NoError(t, WriteDefault(path, true))
}

func TestParseHelpers(t *testing.T) {
	t.Setenv("STORYVERSE_TEST_INT", "42")
	t.Setenv("STORYVERSE_TEST_BAD_INT", "forty-two")
	t.Setenv("STORYVERSE_TEST_BOOL", "No")
	t.Setenv("STORYVERSE_TEST_FLOAT", "0.25")
	t.Setenv("STORYVERSE_TEST_EMPTY", "")

	assert.Equal(t, 42, ParseInt("STORYVERSE_TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("STORYVERSE_TEST_BAD_INT", 1))
	assert.False(t, ParseBool("STORYVERSE_TEST_BOOL", true))
	assert.InDelta(t, 0.25, ParseFloat("STORYVERSE_TEST_FLOAT", 1), 1e-9)
	assert.Equal(t, "fallback", ParseString("STORYVERSE_TEST_EMPTY", "fallback"))
	assert.Equal(t, time.Minute, ParseDuration("STORYVERSE_TEST_MISSING", time.Minute))
}
