// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"

	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// AppConfig is the complete client configuration.
type AppConfig struct {
	Version     string `yaml:"-"`
	Environment string `yaml:"environment"`
	DebugMode   bool   `yaml:"debug"`
	LogLevel    string `yaml:"logLevel"`

	API       APIConfig       `yaml:"api"`
	CDNURL    string          `yaml:"cdnUrl"`
	Platform  string          `yaml:"platform"`
	Renders   RendersConfig   `yaml:"renders"`
	AR        ARConfig        `yaml:"ar"`
	Cache     CacheConfig     `yaml:"cache"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Ops       OpsConfig       `yaml:"ops"`
}

// APIConfig addresses the StoryVerse backend.
type APIConfig struct {
	URL            string        `yaml:"url"`
	Version        string        `yaml:"version"`
	Timeout        time.Duration `yaml:"timeout"`
	AuthToken      string        `yaml:"authToken,omitempty"`
	RateLimit      float64       `yaml:"rateLimit"`
	RateLimitBurst int           `yaml:"rateLimitBurst"`
	UserAgent      string        `yaml:"userAgent,omitempty"`
}

// RendersConfig tunes preview render polling.
type RendersConfig struct {
	PollInterval     time.Duration `yaml:"pollInterval"`
	MaxWait          time.Duration `yaml:"maxWait"`
	TransportRetries int           `yaml:"transportRetries"`
	Locale           string        `yaml:"locale,omitempty"`
}

// ARConfig tunes AR sessions and event delivery.
type ARConfig struct {
	FallbackTimeout time.Duration `yaml:"fallbackTimeout"`
	TickInterval    time.Duration `yaml:"tickInterval"`
	BatchSize       int           `yaml:"batchSize"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	MaxPending      int           `yaml:"maxPending"`
}

// CacheConfig selects the response cache.
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	Redis           RedisConfig   `yaml:"redis"`
}

// RedisConfig is used when Cache.Backend is redis.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// AnalyticsConfig controls local analytics.
type AnalyticsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StorePath string `yaml:"storePath,omitempty"`
}

// TelemetryConfig controls tracing export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// OpsConfig controls the health and metrics listener.
type OpsConfig struct {
	MetricsAddr string `yaml:"metricsAddr,omitempty"`
	// RequestsPerMinute limits ops requests per client IP.
	RequestsPerMinute int `yaml:"requestsPerMinute"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Environment: EnvDevelopment,
		LogLevel:    "info",
		API: APIConfig{
			URL:            "http://localhost:3000",
			Version:        "v1",
			Timeout:        30 * time.Second,
			RateLimit:      10,
			RateLimitBurst: 20,
		},
		CDNURL:   "https://cdn.storyverse.com",
		Platform: "ios",
		Renders: RendersConfig{
			PollInterval:     2 * time.Second,
			MaxWait:          120 * time.Second,
			TransportRetries: 2,
		},
		AR: ARConfig{
			FallbackTimeout: 10 * time.Second,
			TickInterval:    100 * time.Millisecond,
			BatchSize:       10,
			FlushInterval:   5 * time.Second,
			MaxPending:      500,
		},
		Cache: CacheConfig{
			Backend:         CacheMemory,
			TTL:             5 * time.Minute,
			CleanupInterval: time.Minute,
			Redis:           RedisConfig{Addr: "localhost:6379", KeyPrefix: "storyverse:"},
		},
		Analytics: AnalyticsConfig{Enabled: true},
		Telemetry: TelemetryConfig{Exporter: "grpc", SamplingRate: 1.0},
		Ops:       OpsConfig{RequestsPerMinute: 120},
	}
}

// IsProduction reports whether the production environment is configured.
func (c AppConfig) IsProduction() bool { return c.Environment == EnvProduction }

// Redacted returns a copy safe to print.
func (c AppConfig) Redacted() AppConfig {
	if c.API.AuthToken != "" {
		c.API.AuthToken = "***"
	}
	if c.Cache.Redis.Password != "" {
		c.Cache.Redis.Password = "***"
	}
	return c
}
