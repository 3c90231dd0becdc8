// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/storyverse/internal/analytics"
	"github.com/ManuGH/storyverse/internal/arevents"
	"github.com/ManuGH/storyverse/internal/backend"
	"github.com/ManuGH/storyverse/internal/cache"
	"github.com/ManuGH/storyverse/internal/config"
	"github.com/ManuGH/storyverse/internal/library"
	xglog "github.com/ManuGH/storyverse/internal/log"
	"github.com/ManuGH/storyverse/internal/ops"
	"github.com/ManuGH/storyverse/internal/renders"
	"github.com/ManuGH/storyverse/internal/telemetry"
	"github.com/ManuGH/storyverse/internal/version"
)

// app is the wired service graph shared by the commands.
type app struct {
	cfg    config.AppConfig
	logger zerolog.Logger

	client    *backend.Client
	cache     cache.Cache
	tracker   *analytics.Tracker
	store     *analytics.Store
	library   *library.Service
	previewer *renders.Previewer
	batcher   *arevents.Batcher
	holder    *config.ConfigHolder
	ops       *ops.Server

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.AppConfig, loader *config.Loader) (_ *app, err error) {
	a := &app{cfg: cfg, logger: xglog.WithComponent("cli")}
	defer func() {
		if err != nil {
			a.close(context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "storyverse",
		ServiceVersion: version.Version,
		Environment:    cfg.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.onClose(tp.Shutdown)

	health := ops.NewManager(version.Version)

	if err := a.initCache(ctx, health); err != nil {
		return nil, err
	}
	if err := a.initAnalytics(ctx, health); err != nil {
		return nil, err
	}

	a.client = backend.New(cfg.API.URL, backend.Options{
		Version:        cfg.API.Version,
		Timeout:        cfg.API.Timeout,
		RateLimit:      rate.Limit(cfg.API.RateLimit),
		RateLimitBurst: cfg.API.RateLimitBurst,
		UserAgent:      cfg.API.UserAgent,
	})
	if cfg.API.AuthToken != "" {
		a.client.SetAuthToken(cfg.API.AuthToken)
	}
	health.RegisterChecker(ops.CheckFunc{ComponentName: "backend", Critical: true, Ping: func(ctx context.Context) error {
		_, err := a.client.GetLibrary(ctx)
		return err
	}})

	a.library = library.NewService(a.client, library.Options{
		Cache:    a.cache,
		CacheTTL: cfg.Cache.TTL,
		Tracker:  a.tracker,
	})

	poller := renders.NewPoller(a.client, renders.PollerOptions{
		PollInterval:     cfg.Renders.PollInterval,
		MaxWait:          cfg.Renders.MaxWait,
		TransportRetries: cfg.Renders.TransportRetries,
	})
	a.previewer = renders.NewPreviewer(a.client, poller, renders.PreviewerOptions{
		Tracker:  a.tracker,
		Cache:    a.cache,
		CacheTTL: cfg.Cache.TTL,
	})

	a.batcher = arevents.New(a.client, arevents.Options{
		MaxBatchSize:  cfg.AR.BatchSize,
		FlushInterval: cfg.AR.FlushInterval,
		MaxPending:    cfg.AR.MaxPending,
		Recorder:      a.tracker,
	})
	a.onClose(a.batcher.Close)

	if loader.Path() != "" {
		a.holder = config.NewConfigHolder(cfg, loader)
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("config watcher disabled")
		} else {
			a.onClose(func(context.Context) error { a.holder.Stop(); return nil })
			a.followConfig(ctx)
		}
	}

	if cfg.Ops.MetricsAddr != "" {
		a.ops = ops.NewServer(ops.Options{
			Addr:              cfg.Ops.MetricsAddr,
			RequestsPerMinute: cfg.Ops.RequestsPerMinute,
			Manager:           health,
		})
	}
	return a, nil
}

func (a *app) initCache(ctx context.Context, health *ops.Manager) error {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:      a.cfg.Cache.Redis.Addr,
			Password:  a.cfg.Cache.Redis.Password,
			DB:        a.cfg.Cache.Redis.DB,
			KeyPrefix: a.cfg.Cache.Redis.KeyPrefix,
		}, xglog.WithComponent("cache"))
		if err != nil {
			return fmt.Errorf("init redis cache: %w", err)
		}
		a.cache = rc
		a.onClose(func(context.Context) error { return rc.Close() })
		health.RegisterChecker(ops.CheckFunc{ComponentName: "cache", Ping: rc.HealthCheck})
	case config.CacheNone:
		a.cache = cache.NoOpCache{}
	default:
		mc := cache.NewMemoryCache(a.cfg.Cache.CleanupInterval)
		a.cache = mc
		a.onClose(func(context.Context) error { mc.Stop(); return nil })
	}
	return nil
}

func (a *app) initAnalytics(ctx context.Context, health *ops.Manager) error {
	var sinks []analytics.Sink
	if path := a.cfg.Analytics.StorePath; path != "" {
		store, err := analytics.OpenStore(ctx, path)
		if err != nil {
			return fmt.Errorf("open analytics store: %w", err)
		}
		a.store = store
		sinks = append(sinks, store)
		a.onClose(func(context.Context) error { return store.Close() })
		health.RegisterChecker(ops.CheckFunc{ComponentName: "analytics", Ping: store.Check})
	}
	a.tracker = analytics.NewTracker(analytics.Options{
		Sinks:    sinks,
		Disabled: !a.cfg.Analytics.Enabled,
	})
	return nil
}

// followConfig applies hot-reloadable settings.
func (a *app) followConfig(ctx context.Context) {
	ch := make(chan config.AppConfig, 1)
	a.holder.RegisterListener(ch)
	stop := make(chan struct{})
	a.onClose(func(context.Context) error { close(stop); return nil })
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case next := <-ch:
				a.tracker.SetEnabled(next.Analytics.Enabled)
				if lvl, err := zerolog.ParseLevel(logLevel(next)); err == nil {
					zerolog.SetGlobalLevel(lvl)
				}
				a.logger.Info().Bool("analytics", next.Analytics.Enabled).Str("log_level", logLevel(next)).Msg("configuration reloaded")
			}
		}
	}()
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close runs the teardown hooks in reverse order.
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn().Err(err).Msg("shutdown step failed")
		}
	}
	a.closers = nil
}
