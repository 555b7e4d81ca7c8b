// Package client is the HTTP wrapper every backend call goes through.
//
// It resolves paths against the configured base URL, attaches the Session-Id
// header when a session exists, and inspects every response before handing it
// to the caller. Responses that show the session is gone (HTTP 401, session
// error codes, session error messages) clear the stored session and publish an
// UnauthenticatedEvent; every other failure is normalized to an *APIError.
// Requests are never retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itsneelabh/cartshare/core"
	"github.com/itsneelabh/cartshare/telemetry"
)

const (
	// HeaderSessionID carries the opaque session identifier
	HeaderSessionID = "Session-Id"
	// HeaderRequestID correlates client and backend logs
	HeaderRequestID = "X-Request-Id"

	// DefaultTimeout is the fixed overall request timeout
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 10 << 20
)

// SessionSource supplies the session header and is cleared on forced logout.
// session.Manager satisfies it.
type SessionSource interface {
	SessionID() string
	Clear(ctx context.Context) error
}

// Metrics receives one observation per request and per forced logout.
type Metrics interface {
	ObserveRequest(method, path string, status int, duration time.Duration)
	ForcedLogout(reason string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, string, int, time.Duration) {}
func (noopMetrics) ForcedLogout(string)                               {}

// Client talks JSON to the backend REST API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	sessions  SessionSource
	logger    core.Logger
	metrics   Metrics
	events    *eventBus
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Its Timeout is kept as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTransport sets the round tripper below the tracing layer, e.g. a
// circuit breaker transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		timeout := c.http.Timeout
		c.http = telemetry.NewTracedHTTPClient(rt)
		c.http.Timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		c.logger = core.ComponentLogger(logger, "client")
	}
}

// WithMetrics sets the request metrics sink
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New creates a client for the API described by cfg.
func New(cfg core.APIConfig, sessions SessionSource, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := telemetry.NewTracedHTTPClient(nil)
	hc.Timeout = timeout

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      hc,
		sessions:  sessions,
		logger:    &core.NoOpLogger{},
		metrics:   noopMetrics{},
		events:    newEventBus(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OnUnauthenticated subscribes h to forced-logout events. The returned
// function unsubscribes; calling it more than once is harmless.
func (c *Client) OnUnauthenticated(h UnauthenticatedHandler) func() {
	return c.events.subscribe(h)
}

// Get issues a GET request and decodes the response into out
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request with a JSON body
func (c *Client) Post(ctx context.Context, path string, query url.Values, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, query, body, out)
}

// Put issues a PUT request with a JSON body
func (c *Client) Put(ctx context.Context, path string, query url.Values, body, out interface{}) error {
	return c.Do(ctx, http.MethodPut, path, query, body, out)
}

// Patch issues a PATCH request with a JSON body
func (c *Client) Patch(ctx context.Context, path string, query url.Values, body, out interface{}) error {
	return c.Do(ctx, http.MethodPatch, path, query, body, out)
}

// Delete issues a DELETE request
func (c *Client) Delete(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.Do(ctx, http.MethodDelete, path, query, nil, out)
}

// Do performs one request. A nil body sends no payload; a nil out discards the
// response. When out is a *string, plain text and JSON string bodies are both
// accepted. Every error returned is an *APIError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	requestID := core.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = core.WithRequestID(ctx, requestID)
	}

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return &APIError{ErrorCode: 500, Message: DefaultErrorMessage, Err: err}
	}
	req.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, path, 0, time.Since(start))
		apiErr := transportError(err)
		c.logger.WarnWithContext(ctx, "Request failed before a response arrived", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		return apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.ObserveRequest(method, path, resp.StatusCode, time.Since(start))
	if err != nil {
		return &APIError{Status: resp.StatusCode, ErrorCode: resp.StatusCode, Message: DefaultErrorMessage, Err: err}
	}

	c.logger.DebugWithContext(ctx, "Request completed", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	env, _ := parseEnvelope(data)
	if reason := sessionFailureReason(resp.StatusCode, env); reason != "" {
		apiErr := normalize(resp.StatusCode, env)
		apiErr.SessionInvalid = true
		c.forceLogout(ctx, UnauthenticatedEvent{
			Reason:    reason,
			Status:    resp.StatusCode,
			ErrorCode: apiErr.ErrorCode,
			Message:   apiErr.Message,
			Method:    method,
			Path:      path,
			At:        time.Now(),
		})
		return apiErr
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := normalize(resp.StatusCode, env)
		c.logger.InfoWithContext(ctx, "Backend returned an error", map[string]interface{}{
			"method":     method,
			"path":       path,
			"status":     resp.StatusCode,
			"error_code": apiErr.ErrorCode,
		})
		return apiErr
	}

	if err := decodeBody(data, out); err != nil {
		return &APIError{
			Status:    resp.StatusCode,
			ErrorCode: 500,
			Message:   "Unexpected response from server",
			Err:       err,
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.sessions != nil {
		if id := c.sessions.SessionID(); id != "" {
			req.Header.Set(HeaderSessionID, id)
		}
	}
	return req, nil
}

// forceLogout clears durable storage first, then tells subscribers.
func (c *Client) forceLogout(ctx context.Context, ev UnauthenticatedEvent) {
	c.logger.WarnWithContext(ctx, "Session rejected by backend, logging out", map[string]interface{}{
		"reason":     ev.Reason,
		"status":     ev.Status,
		"error_code": ev.ErrorCode,
		"path":       ev.Path,
	})

	if c.sessions != nil {
		// Use a fresh context: the request context may already be done.
		clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := c.sessions.Clear(clearCtx); err != nil {
			c.logger.ErrorWithContext(ctx, "Failed to clear stored session", map[string]interface{}{
				"error": err.Error(),
			})
		}
		cancel()
	}

	c.metrics.ForcedLogout(ev.Reason)
	c.events.publish(ev)
}

// transportError normalizes failures that produced no response.
func transportError(err error) *APIError {
	apiErr := &APIError{ErrorCode: 500, Message: "Network error", Err: err}
	switch {
	case errors.Is(err, core.ErrCircuitBreakerOpen):
		apiErr.ErrorCode = http.StatusServiceUnavailable
		apiErr.Message = "Service temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		apiErr.Message = "Request timed out"
		apiErr.Err = fmt.Errorf("%w: %w", core.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		apiErr.Message = "Request canceled"
		apiErr.Err = fmt.Errorf("%w: %w", core.ErrContextCanceled, err)
	default:
		apiErr.Err = fmt.Errorf("%w: %w", core.ErrConnectionFailed, err)
	}
	return apiErr
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// decodeBody unmarshals a successful response into out.
func decodeBody(data []byte, out interface{}) error {
	if out == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(data)

	if s, ok := out.(*string); ok {
		if len(trimmed) > 0 && trimmed[0] == '"' {
			return json.Unmarshal(trimmed, s)
		}
		*s = string(trimmed)
		return nil
	}

	if len(trimmed) == 0 {
		return nil
	}
	return json.Unmarshal(trimmed, out)
}
