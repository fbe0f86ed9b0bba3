// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

/*
Package backend is the HTTP client for the Waymark route backend: auth,
OTP, route storage, route calculation and reverse geocoding.

Resilience:
  - Every attempt runs through a sony/gobreaker circuit breaker; 4xx
    responses do not count as breaker failures.
  - The first request after an idle period gets the cold start timeout
    (the hosted backend sleeps when idle).
  - Calls marked retryable (sign-in, refresh) retry transient failures
    with linear backoff: delay, 2*delay, 3*delay...
  - A 401 on a bearer-authenticated foreground call invokes the
    registered unauthorized handler once and returns ErrUnauthorized.
*/
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
)

// maxErrorBodySize caps how much of an error response is read.
const maxErrorBodySize = 64 * 1024

// idleColdStart is how long without contact before the backend is
// assumed asleep again.
const idleColdStart = 10 * time.Minute

// TokenSource supplies the current bearer token ("" when signed out).
type TokenSource interface {
	Token() string
}

// UnauthorizedHandler is invoked when a foreground authenticated call
// gets a 401.
type UnauthorizedHandler func(ctx context.Context)

// Client talks to the route backend.
type Client struct {
	baseURL          string
	http             *http.Client
	timeout          time.Duration
	coldStartTimeout time.Duration
	retryAttempts    int
	retryDelay       time.Duration
	cb               *gobreaker.CircuitBreaker[*http.Response]
	breakerName      string

	lastContact atomic.Int64 // unix nanos of the last response

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized UnauthorizedHandler
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Per-request
// timeouts are still applied through the context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a Client from cfg.
func New(cfg config.BackendConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(cfg.URL, "/"),
		http:             &http.Client{},
		timeout:          cfg.Timeout,
		coldStartTimeout: cfg.ColdStartTimeout,
		retryAttempts:    cfg.RetryAttempts,
		retryDelay:       cfg.RetryDelay,
		breakerName:      "route-backend",
	}
	if c.retryAttempts < 1 {
		c.retryAttempts = 1
	}
	if c.coldStartTimeout < c.timeout {
		c.coldStartTimeout = c.timeout
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cb = newBreaker(c.breakerName, cfg.BreakerFailures, cfg.BreakerTimeout)
	return c
}

// SetTokenSource registers where bearer tokens come from.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// SetUnauthorizedHandler registers the global 401 policy.
func (c *Client) SetUnauthorizedHandler(h UnauthorizedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = h
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

func (c *Client) unauthorizedHandler() UnauthorizedHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onUnauthorized
}

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string {
	return stateToString(c.cb.State())
}

// call describes one logical backend request.
type call struct {
	endpoint string // metrics label, e.g. "auth.signin"
	method   string
	path     string
	query    url.Values
	body     any

	// auth attaches the bearer token.
	auth bool

	// background calls never trigger the unauthorized handler.
	background bool

	// retry enables linear backoff on transient failures.
	retry bool
}

// do executes cl and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) do(ctx context.Context, cl call, out any) error {
	start := time.Now()
	err := c.doWithRetry(ctx, cl, out)
	metrics.RecordBackendRequest(cl.endpoint, outcomeOf(err), time.Since(start))

	if cl.auth && !cl.background && errors.Is(err, ErrUnauthorized) {
		if h := c.unauthorizedHandler(); h != nil {
			h(ctx)
		}
	}
	return err
}

func (c *Client) doWithRetry(ctx context.Context, cl call, out any) error {
	attempts := 1
	if cl.retry {
		attempts = c.retryAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = c.attempt(ctx, cl, out)
		if err == nil || !IsTransient(err) || attempt == attempts {
			return err
		}

		delay := c.retryDelay * time.Duration(attempt)
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("endpoint", cl.endpoint).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("delay", delay).
			Msg("Backend request failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (c *Client) attempt(ctx context.Context, cl call, out any) error {
	timeout := c.timeout
	if last := c.lastContact.Load(); last == 0 || time.Since(time.Unix(0, last)) > idleColdStart {
		timeout = c.coldStartTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(attemptCtx, cl)
	if err != nil {
		return err
	}

	resp, err := c.execute(req)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &networkError{endpoint: cl.endpoint, err: err}
	}
	defer resp.Body.Close()
	c.lastContact.Store(time.Now().UnixNano())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Endpoint: cl.endpoint,
			Status:   resp.StatusCode,
			Message:  extractMessage(readBodyForError(resp.Body)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s response: %w", cl.endpoint, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader = http.NoBody
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", cl.endpoint, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.auth {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	return req, nil
}

// readBodyForError reads at most maxErrorBodySize bytes of r.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return nil
	}
	return body
}

// extractMessage pulls a human-readable message out of an error body:
// {"message": "..."} or {"error": "..."}, else the trimmed text itself.
func extractMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 || strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}

func outcomeOf(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	case errors.As(err, &apiErr) && apiErr.Status >= 500:
		return "server_error"
	case errors.As(err, &apiErr):
		return "client_error"
	default:
		return "network_error"
	}
}
