// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/storyverse/internal/validate"
)

// Validate checks cfg and reports every problem at once as a
// validate.ValidationError.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("environment", cfg.Environment, []string{EnvDevelopment, EnvStaging, EnvProduction})
	v.OneOf("logLevel", cfg.LogLevel, []string{"trace", "debug", "info", "warn", "error"})

	v.URL("api.url", cfg.API.URL, []string{"http", "https"})
	v.NotEmpty("api.version", cfg.API.Version)
	v.DurationRange("api.timeout", cfg.API.Timeout, 100*time.Millisecond, 5*time.Minute)
	v.FloatRange("api.rateLimit", cfg.API.RateLimit, 0.1, 1000)
	v.Positive("api.rateLimitBurst", cfg.API.RateLimitBurst)
	if cfg.IsProduction() && cfg.API.URL != "" {
		v.URL("api.url", cfg.API.URL, []string{"https"})
	}

	v.URL("cdnUrl", cfg.CDNURL, []string{"http", "https"})
	v.OneOf("platform", cfg.Platform, []string{"ios", "android"})

	v.DurationRange("renders.pollInterval", cfg.Renders.PollInterval, 100*time.Millisecond, time.Minute)
	v.DurationRange("renders.maxWait", cfg.Renders.MaxWait, time.Second, 30*time.Minute)
	if cfg.Renders.MaxWait < cfg.Renders.PollInterval {
		v.AddError("renders.maxWait", "must not be shorter than renders.pollInterval", cfg.Renders.MaxWait)
	}
	v.Range("renders.transportRetries", cfg.Renders.TransportRetries, -1, 10)

	v.DurationRange("ar.fallbackTimeout", cfg.AR.FallbackTimeout, time.Second, 5*time.Minute)
	v.DurationRange("ar.tickInterval", cfg.AR.TickInterval, 10*time.Millisecond, time.Second)
	v.Range("ar.batchSize", cfg.AR.BatchSize, 1, 100)
	v.DurationRange("ar.flushInterval", cfg.AR.FlushInterval, 100*time.Millisecond, 5*time.Minute)
	v.Range("ar.maxPending", cfg.AR.MaxPending, cfg.AR.BatchSize, 10000)

	v.OneOf("cache.backend", cfg.Cache.Backend, []string{CacheMemory, CacheRedis, CacheNone})
	if cfg.Cache.Backend != CacheNone {
		v.DurationRange("cache.ttl", cfg.Cache.TTL, time.Second, 24*time.Hour)
	}
	if cfg.Cache.Backend == CacheMemory {
		v.DurationRange("cache.cleanupInterval", cfg.Cache.CleanupInterval, time.Second, time.Hour)
	}
	if cfg.Cache.Backend == CacheRedis {
		v.HostPort("cache.redis.addr", cfg.Cache.Redis.Addr)
		v.Range("cache.redis.db", cfg.Cache.Redis.DB, 0, 15)
	}

	v.FilePath("analytics.storePath", cfg.Analytics.StorePath)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if cfg.Ops.MetricsAddr != "" {
		v.HostPort("ops.metricsAddr", cfg.Ops.MetricsAddr)
	}
	v.Range("ops.requestsPerMinute", cfg.Ops.RequestsPerMinute, 1, 100000)

	return v.Err()
}
