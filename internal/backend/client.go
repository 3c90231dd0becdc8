// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package backend is the HTTP client for the StoryVerse API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/storyverse/internal/log"
	"github.com/ManuGH/storyverse/internal/telemetry"
)

const (
	defaultVersion        = "v1"
	defaultTimeout        = 30 * time.Second
	defaultRateLimit      = 10
	defaultRateLimitBurst = 20
	defaultUserAgent      = "storyverse-client"

	maxResponseBytes = 4 << 20
)

// Options configures the backend client.
type Options struct {
	// Version is the API path prefix appended to the base URL.
	Version        string
	Timeout        time.Duration
	RateLimit      rate.Limit
	RateLimitBurst int
	UserAgent      string
	// HTTPClient replaces the default otel-instrumented client (tests).
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client talks to the StoryVerse backend. It is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	userAgent string
	logger    zerolog.Logger

	mu        sync.RWMutex
	authToken string
}

// New creates a client for the API rooted at apiURL (e.g. http://localhost:3000).
func New(apiURL string, opts Options) *Client {
	opts = normalizeOptions(opts)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          32,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
		httpClient = &http.Client{Transport: otelhttp.NewTransport(transport)}
	}

	logger := xglog.WithComponent("backend")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(apiURL), "/") + "/" + opts.Version,
		http:      httpClient,
		timeout:   opts.Timeout,
		limiter:   rate.NewLimiter(opts.RateLimit, opts.RateLimitBurst),
		userAgent: opts.UserAgent,
		logger:    logger,
	}
}

func normalizeOptions(opts Options) Options {
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = defaultVersion
	}
	opts.Version = strings.Trim(opts.Version, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	return opts
}

// BaseURL returns the versioned API root.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAuthToken attaches a bearer token to subsequent requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()
}

// ClearAuthToken stops sending the bearer token.
func (c *Client) ClearAuthToken() {
	c.mu.Lock()
	c.authToken = ""
	c.mu.Unlock()
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	return c.do(ctx, http.MethodPost, endpoint, body, out)
}

// do performs one request. Failures are *APIError except for cancellation of
// ctx itself, which is returned as ctx.Err().
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	route := routeLabel(endpoint)
	op := method + " " + route

	ctx, span := telemetry.Tracer("storyverse.backend").Start(ctx, "storyverse.backend.request",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &APIError{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode %s body: %w", op, err)
		}
		payload = bytes.NewReader(buf)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+endpoint, payload)
	if err != nil {
		return fmt.Errorf("backend: build %s request: %w", op, err)
	}
	c.applyHeaders(ctx, req, body != nil)

	c.logger.Debug().Str(xglog.FieldMethod, method).Str(xglog.FieldEndpoint, route).Msg("backend request")

	start := time.Now()
	resp, err := c.http.Do(req)
	var raw []byte
	status := 0
	if err == nil {
		status = resp.StatusCode
		raw, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
	}

	apiErr := c.classify(ctx, reqCtx, op, status, raw, err)
	recordRequestMetrics(method, route, statusOf(status, apiErr), time.Since(start), apiErr)
	span.SetAttributes(telemetry.HTTPAttributes(method, route, statusOf(status, apiErr))...)
	if apiErr != nil {
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}
	span.SetStatus(codes.Ok, "")

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		// Empty bodies are valid for fire-and-forget endpoints.
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: status, Err: err}
	}
	return nil
}

// classify maps a transport result onto the error taxonomy.
func (c *Client) classify(parent, reqCtx context.Context, op string, status int, raw []byte, err error) error {
	if err != nil {
		if ctxErr := parent.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return &APIError{
				Sentinel:  ErrTimeout,
				Operation: op,
				Status:    http.StatusRequestTimeout,
				Message:   "request timed out",
				Err:       err,
			}
		}
		return &APIError{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	if status >= 200 && status < 300 {
		return nil
	}

	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	msg := eb.Message
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &APIError{
		Sentinel:  ErrRejected,
		Operation: op,
		Status:    status,
		Code:      eb.Code,
		Message:   msg,
		Data:      rawJSON(raw),
	}
}

func statusOf(status int, err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return status
}

func (c *Client) applyHeaders(ctx context.Context, req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)

	rid := xglog.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", rid)

	c.mu.RLock()
	token := c.authToken
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

var (
	idSegment = regexp.MustCompile(`^/(renders|library)/([^/?]+)`)
)

// routeLabel collapses identifiers so metrics and spans stay low-cardinality.
func routeLabel(endpoint string) string {
	route := endpoint
	if i := strings.IndexByte(route, '?'); i >= 0 {
		route = route[:i]
	}
	if m := idSegment.FindStringSubmatch(route); m != nil && m[2] != "previews" {
		route = "/" + m[1] + "/{id}" + route[len(m[0]):]
	}
	return route
}
