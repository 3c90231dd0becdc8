// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvKeyEnvironment     = "STORYVERSE_ENV"
	EnvKeyDebug           = "STORYVERSE_DEBUG"
	EnvKeyLogLevel        = "LOG_LEVEL"
	EnvKeyAPIURL          = "STORYVERSE_API_URL"
	EnvKeyAPIToken        = "STORYVERSE_API_TOKEN"
	EnvKeyAPITimeout      = "STORYVERSE_API_TIMEOUT"
	EnvKeyAPIRateLimit    = "STORYVERSE_API_RATE_LIMIT"
	EnvKeyCDNURL          = "STORYVERSE_CDN_URL"
	EnvKeyPlatform        = "STORYVERSE_PLATFORM"
	EnvKeyPollInterval    = "STORYVERSE_RENDER_POLL_INTERVAL"
	EnvKeyRenderMaxWait   = "STORYVERSE_RENDER_MAX_WAIT"
	EnvKeyRenderRetries   = "STORYVERSE_RENDER_RETRIES"
	EnvKeyFallbackTimeout = "STORYVERSE_AR_FALLBACK_TIMEOUT"
	EnvKeyBatchSize       = "STORYVERSE_AR_BATCH_SIZE"
	EnvKeyFlushInterval   = "STORYVERSE_AR_FLUSH_INTERVAL"
	EnvKeyCacheBackend    = "STORYVERSE_CACHE_BACKEND"
	EnvKeyCacheTTL        = "STORYVERSE_CACHE_TTL"
	EnvKeyRedisAddr       = "STORYVERSE_REDIS_ADDR"
	EnvKeyRedisPassword   = "STORYVERSE_REDIS_PASSWORD"
	EnvKeyAnalytics       = "STORYVERSE_ANALYTICS_ENABLED"
	EnvKeyAnalyticsStore  = "STORYVERSE_ANALYTICS_DB"
	EnvKeyOTelEnabled     = "STORYVERSE_OTEL_ENABLED"
	EnvKeyOTelEndpoint    = "STORYVERSE_OTEL_ENDPOINT"
	EnvKeyMetricsAddr     = "STORYVERSE_METRICS_ADDR"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
// Use errors.Is(err, ErrUnknownConfigField) instead of string matching.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // env keys read during the last Load
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, empty for ENV-only configuration.
func (l *Loader) Path() string { return l.configPath }

// Load loads configuration with precedence: ENV > File > Defaults,
// then normalizes and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if err := normalize(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields cause an error to prevent silent misconfiguration.
func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the config path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv overrides cfg with environment variables (highest priority).
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Environment = l.envString(EnvKeyEnvironment, cfg.Environment)
	cfg.DebugMode = l.envBool(EnvKeyDebug, cfg.DebugMode)
	cfg.LogLevel = l.envString(EnvKeyLogLevel, cfg.LogLevel)

	cfg.API.URL = l.envString(EnvKeyAPIURL, cfg.API.URL)
	cfg.API.AuthToken = l.envString(EnvKeyAPIToken, cfg.API.AuthToken)
	cfg.API.Timeout = l.envDuration(EnvKeyAPITimeout, cfg.API.Timeout)
	cfg.API.RateLimit = l.envFloat(EnvKeyAPIRateLimit, cfg.API.RateLimit)
	cfg.CDNURL = l.envString(EnvKeyCDNURL, cfg.CDNURL)
	cfg.Platform = l.envString(EnvKeyPlatform, cfg.Platform)

	cfg.Renders.PollInterval = l.envDuration(EnvKeyPollInterval, cfg.Renders.PollInterval)
	cfg.Renders.MaxWait = l.envDuration(EnvKeyRenderMaxWait, cfg.Renders.MaxWait)
	cfg.Renders.TransportRetries = l.envInt(EnvKeyRenderRetries, cfg.Renders.TransportRetries)

	cfg.AR.FallbackTimeout = l.envDuration(EnvKeyFallbackTimeout, cfg.AR.FallbackTimeout)
	cfg.AR.BatchSize = l.envInt(EnvKeyBatchSize, cfg.AR.BatchSize)
	cfg.AR.FlushInterval = l.envDuration(EnvKeyFlushInterval, cfg.AR.FlushInterval)

	cfg.Cache.Backend = l.envString(EnvKeyCacheBackend, cfg.Cache.Backend)
	cfg.Cache.TTL = l.envDuration(EnvKeyCacheTTL, cfg.Cache.TTL)
	cfg.Cache.Redis.Addr = l.envString(EnvKeyRedisAddr, cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = l.envString(EnvKeyRedisPassword, cfg.Cache.Redis.Password)

	cfg.Analytics.Enabled = l.envBool(EnvKeyAnalytics, cfg.Analytics.Enabled)
	cfg.Analytics.StorePath = l.envString(EnvKeyAnalyticsStore, cfg.Analytics.StorePath)

	cfg.Telemetry.Enabled = l.envBool(EnvKeyOTelEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = l.envString(EnvKeyOTelEndpoint, cfg.Telemetry.Endpoint)

	cfg.Ops.MetricsAddr = l.envString(EnvKeyMetricsAddr, cfg.Ops.MetricsAddr)
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}
