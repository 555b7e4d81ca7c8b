package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/cartshare/core"
	"github.com/itsneelabh/cartshare/resilience"
)

// fakeSessions records the order of Clear calls relative to events.
type fakeSessions struct {
	mu      sync.Mutex
	id      string
	cleared int
	log     *[]string
}

func (f *fakeSessions) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeSessions) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = ""
	f.cleared++
	if f.log != nil {
		*f.log = append(*f.log, "clear")
	}
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	requests []int
	logouts  []string
}

func (m *recordingMetrics) ObserveRequest(method, path string, status int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, status)
}

func (m *recordingMetrics) ForcedLogout(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts = append(m.logouts, reason)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, sessions SessionSource, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(core.APIConfig{BaseURL: srv.URL + "/", Timeout: 5 * time.Second}, sessions, opts...)
}

func TestSessionFailureReason(t *testing.T) {
	code := func(n int) *Code { c := Code(n); return &c }

	tests := []struct {
		name   string
		status int
		env    envelope
		want   string
	}{
		{"401 without body", 401, envelope{}, ReasonUnauthorized},
		{"session invalid code", 400, envelope{ErrorCode: code(5003)}, ReasonSessionErrorCode},
		{"session expired code", 403, envelope{ErrorCode: code(5004)}, ReasonSessionErrorCode},
		{"session not found code on 200", 200, envelope{ErrorCode: code(5005)}, ReasonSessionErrorCode},
		{"phrase in message", 400, envelope{Message: "Your Session Expired, please log in"}, ReasonSessionMessage},
		{"session not found phrase", 404, envelope{Message: "session not found"}, ReasonSessionMessage},
		{"500 mentioning invalid", 500, envelope{Message: "Invalid token"}, ReasonServerSessionError},
		{"500 unrelated", 500, envelope{Message: "database down"}, ""},
		{"400 mentioning invalid", 400, envelope{Message: "invalid quantity"}, ""},
		{"plain 404", 404, envelope{ErrorCode: code(404), Message: "Basket not found"}, ""},
		{"already logged in", 200, envelope{ErrorCode: code(5002)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sessionFailureReason(tt.status, tt.env))
		})
	}
}

func TestCode_UnmarshalJSON(t *testing.T) {
	env, ok := parseEnvelope([]byte(`{"errorCode":"5003","message":"x"}`))
	require.True(t, ok)
	require.NotNil(t, env.ErrorCode)
	assert.Equal(t, Code(5003), *env.ErrorCode)

	env, ok = parseEnvelope([]byte(`{"errorCode":1000}`))
	require.True(t, ok)
	assert.Equal(t, Code(1000), *env.ErrorCode)

	_, ok = parseEnvelope([]byte(`[{"id":1}]`))
	assert.False(t, ok)
	_, ok = parseEnvelope([]byte(`"joined"`))
	assert.False(t, ok)
}

func TestDo_Headers(t *testing.T) {
	var got http.Header
	var gotPath, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, &fakeSessions{id: "sess-1"})

	ctx := core.WithRequestID(context.Background(), "req-42")
	var out map[string]bool
	err := c.Post(ctx, "/api/basket/add", url.Values{"cartId": {"7"}}, []map[string]int{{"productId": 1, "quantity": 2}}, &out)
	require.NoError(t, err)

	assert.True(t, out["ok"])
	assert.Equal(t, "/api/basket/add", gotPath)
	assert.Equal(t, "cartId=7", gotQuery)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "sess-1", got.Get(HeaderSessionID))
	assert.Equal(t, "req-42", got.Get(HeaderRequestID))
}

func TestDo_NoSessionHeaderWhenAnonymous(t *testing.T) {
	var present bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header[HeaderSessionID]
		w.WriteHeader(http.StatusNoContent)
	}, &fakeSessions{})

	require.NoError(t, c.Get(context.Background(), "api/product/categories", nil, nil))
	assert.False(t, present)
}

func TestDo_ForcedLogout(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantReason string
		wantCode   int
	}{
		{"401", 401, `{"message":"Unauthorized"}`, ReasonUnauthorized, 401},
		{"session code", 400, `{"errorCode":5004,"message":"Expired"}`, ReasonSessionErrorCode, 5004},
		{"session code on success status", 200, `{"errorCode":5003,"message":"Session invalid"}`, ReasonSessionErrorCode, 5003},
		{"message phrase", 403, `{"message":"Session not found"}`, ReasonSessionMessage, 403},
		{"500 hint", 500, `{"message":"Session lookup failed"}`, ReasonServerSessionError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var order []string
			sessions := &fakeSessions{id: "sess-1", log: &order}
			metrics := &recordingMetrics{}
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, sessions, WithMetrics(metrics))

			var events []UnauthenticatedEvent
			c.OnUnauthenticated(func(ev UnauthenticatedEvent) {
				assert.Empty(t, sessions.SessionID(), "storage must be cleared before subscribers run")
				order = append(order, "event")
				events = append(events, ev)
			})

			err := c.Get(context.Background(), "/api/user/me", nil, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSessionInvalid)

			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
			assert.True(t, apiErr.SessionInvalid)

			assert.Equal(t, []string{"clear", "event"}, order)
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantReason, events[0].Reason)
			assert.Equal(t, http.MethodGet, events[0].Method)
			assert.Equal(t, "/api/user/me", events[0].Path)
			assert.Equal(t, []string{tt.wantReason}, metrics.logouts)
		})
	}
}

func TestDo_ErrorNormalization(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    int
		wantMessage string
	}{
		{"backend envelope", 404, `{"errorCode":4004,"message":"Basket not found","timestamp":"t","path":"/x"}`, 4004, "Basket not found"},
		{"status fallback", 400, `{"message":"bad"}`, 400, "bad"},
		{"empty body", 502, ``, 502, DefaultErrorMessage},
		{"non json body", 503, `<html>oops</html>`, 503, DefaultErrorMessage},
		{"500 unrelated message", 500, `{"message":"database unavailable"}`, 500, "database unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{id: "sess-1"}
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, sessions)

			fired := false
			c.OnUnauthenticated(func(UnauthenticatedEvent) { fired = true })

			err := c.Get(context.Background(), "/api/basket/current", nil, nil)
			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.False(t, errors.Is(err, ErrSessionInvalid))
			assert.False(t, fired)
			assert.Zero(t, sessions.cleared)
		})
	}
}

func TestDo_NoRetry(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	err := c.Post(context.Background(), "/api/history/checkout", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_StringResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain text", "Joined basket 12", "Joined basket 12"},
		{"json string", `"Checkout complete"`, "Checkout complete"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			var out string
			require.NoError(t, c.Post(context.Background(), "/api/basket/join", url.Values{"code": {"ABC"}}, nil, &out))
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestDo_UndecodableSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}, nil)

	var out map[string]interface{}
	err := c.Get(context.Background(), "/api/basket/current", nil, &out)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 500, apiErr.ErrorCode)
	assert.Equal(t, 200, apiErr.Status)
}

func TestDo_TransportErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		base := srv.URL
		srv.Close()

		c := New(core.APIConfig{BaseURL: base}, nil)
		err := c.Get(context.Background(), "/api/user/me", nil, nil)
		apiErr, ok := AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, 500, apiErr.ErrorCode)
		assert.Equal(t, "Network error", apiErr.Message)
		assert.ErrorIs(t, err, core.ErrConnectionFailed)
		assert.True(t, core.IsRetryable(err))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })

		c := New(core.APIConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
		err := c.Get(context.Background(), "/slow", nil, nil)
		apiErr, ok := AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, "Request timed out", apiErr.Message)
		assert.ErrorIs(t, err, core.ErrTimeout)
	})

	t.Run("canceled", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := c.Get(ctx, "/api/user/me", nil, nil)
		assert.ErrorIs(t, err, core.ErrContextCanceled)
	})
}

func TestDo_CircuitBreakerOpen(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	cfg := resilience.DefaultConfig()
	cfg.FailureThreshold = 2
	cb, err := resilience.NewCircuitBreaker(cfg)
	require.NoError(t, err)

	c := New(core.APIConfig{BaseURL: srv.URL}, nil,
		WithTransport(resilience.NewTransport(http.DefaultTransport, cb)))

	for i := 0; i < 2; i++ {
		apiErr, ok := AsAPIError(c.Get(context.Background(), "/api/basket/current", nil, nil))
		require.True(t, ok)
		assert.Equal(t, 502, apiErr.ErrorCode)
	}

	err = c.Get(context.Background(), "/api/basket/current", nil, nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.ErrorCode)
	assert.Equal(t, "Service temporarily unavailable", apiErr.Message)
	assert.ErrorIs(t, err, core.ErrCircuitBreakerOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestOnUnauthenticated_Unsubscribe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, &fakeSessions{id: "s"})

	var calls []string
	unsubA := c.OnUnauthenticated(func(UnauthenticatedEvent) { calls = append(calls, "a") })
	c.OnUnauthenticated(func(UnauthenticatedEvent) { calls = append(calls, "b") })

	_ = c.Get(context.Background(), "/x", nil, nil)
	unsubA()
	unsubA()
	_ = c.Get(context.Background(), "/x", nil, nil)

	assert.Equal(t, []string{"a", "b", "b"}, calls)
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "Basket not found", MessageOf(&APIError{Message: "Basket not found"}, "fallback"))
	assert.Equal(t, "fallback", MessageOf(errors.New("plain"), "fallback"))
	assert.Equal(t, "fallback", MessageOf(nil, "fallback"))
}
