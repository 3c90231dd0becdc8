// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	xglog "github.com/ManuGH/storyverse/internal/log"
)

const (
	rateWindow      = time.Minute
	shutdownTimeout = 10 * time.Second
)

// Options configures the ops router.
type Options struct {
	Addr string
	// RequestsPerMinute caps requests per client IP. Zero disables limiting.
	RequestsPerMinute int
	Manager           *Manager
	// Metrics defaults to promhttp.Handler().
	Metrics http.Handler
	Logger  *zerolog.Logger
}

// NewRouter builds the chi router serving /healthz, /readyz and /metrics.
func NewRouter(opts Options) http.Handler {
	if opts.Manager == nil {
		opts.Manager = NewManager("")
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogContext)
	r.Use(middleware.Recoverer)
	if opts.RequestsPerMinute > 0 {
		r.Use(rateLimit(opts.RequestsPerMinute, rateWindow))
	}

	r.Get("/healthz", opts.Manager.ServeHealth)
	r.Get("/readyz", opts.Manager.ServeReady)
	r.Method(http.MethodGet, "/metrics", opts.Metrics)
	return otelhttp.NewHandler(r, "ops")
}

// requestLogContext exposes chi's request ID to the component loggers.
func requestLogContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(xglog.ContextWithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
		}),
	)
}

// Server runs the ops router until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer prepares a server on opts.Addr.
func NewServer(opts Options) *Server {
	logger := xglog.WithComponent("ops")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Server{
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(opts),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run listens and serves. It returns nil after a clean shutdown triggered by
// ctx, or the listener error.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("ops listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("ops server listening")
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Str(xglog.FieldEvent, "ops.server.failed").Msg("ops server failed")
			errCh <- fmt.Errorf("ops server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops shutdown: %w", err)
		}
		return <-errCh
	}
}
