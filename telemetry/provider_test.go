package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/cartshare/core"
)

func newTestProvider(t *testing.T, opts ...ProviderOption) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	opts = append([]ProviderOption{WithSpanExporter(exp)}, opts...)
	p, err := NewProvider(context.Background(), core.TelemetryConfig{ServiceName: "cartshare-test", SamplingRate: 1}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, exp
}

func TestProvider_StartSpan(t *testing.T) {
	p, exp := newTestProvider(t)

	ctx, span := p.StartSpan(context.Background(), "auth.login")
	span.SetAttribute("email_domain", "example.com")
	span.SetAttribute("attempt", 1)
	span.SetAttribute("success", false)
	span.SetAttribute("latency", 1.5)
	span.SetAttribute("other", []string{"x"})
	span.RecordError(errors.New("bad credentials"))
	span.End()

	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
	require.NoError(t, p.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "auth.login", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("email_domain", "example.com"))
	assert.Contains(t, spans[0].Attributes, attribute.Int("attempt", 1))
	assert.Contains(t, spans[0].Attributes, attribute.Bool("success", false))
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}

func TestProvider_RecordMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	p, _ := newTestProvider(t, WithMeterProvider(mp))

	p.RecordMetric("cartshare.commands", 1, map[string]string{"command": "login"})
	p.RecordMetric("cartshare.commands", 2, map[string]string{"command": "login"})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	m := rm.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, "cartshare.commands", m.Name)
	sum, ok := m.Data.(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, 3.0, sum.DataPoints[0].Value)
}

func TestNewProvider_Exporters(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		buf := &bytes.Buffer{}
		p, err := NewProvider(context.Background(), core.TelemetryConfig{Exporter: "stdout"}, WithWriter(buf))
		require.NoError(t, err)

		_, span := p.StartSpan(context.Background(), "cart.apply_suggestion")
		span.End()
		require.NoError(t, p.Shutdown(context.Background()))
		assert.Contains(t, buf.String(), "cart.apply_suggestion")
	})

	t.Run("otlp without endpoint", func(t *testing.T) {
		_, err := NewProvider(context.Background(), core.TelemetryConfig{Exporter: "otlp"})
		assert.ErrorIs(t, err, core.ErrMissingConfiguration)
	})

	t.Run("otlphttp ships spans and counters", func(t *testing.T) {
		var (
			mu    sync.Mutex
			paths []string
		)
		collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			paths = append(paths, r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer collector.Close()

		p, err := NewProvider(context.Background(), core.TelemetryConfig{
			Exporter: "otlphttp",
			Endpoint: strings.TrimPrefix(collector.URL, "http://"),
			Insecure: true,
		})
		require.NoError(t, err)
		require.NotNil(t, p.meterProvider)

		_, span := p.StartSpan(context.Background(), "cart.checkout")
		span.End()
		p.RecordMetric("cartshare.cart.operations", 1, map[string]string{"operation": "checkout"})
		require.NoError(t, p.Shutdown(context.Background()))

		mu.Lock()
		defer mu.Unlock()
		assert.Contains(t, paths, "/v1/traces")
		assert.Contains(t, paths, "/v1/metrics")
	})

	t.Run("otlphttp without endpoint", func(t *testing.T) {
		_, err := NewProvider(context.Background(), core.TelemetryConfig{Exporter: "otlphttp"})
		assert.ErrorIs(t, err, core.ErrMissingConfiguration)
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := NewProvider(context.Background(), core.TelemetryConfig{Exporter: "zipkin"})
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})
}

func TestTracedClientPropagatesContext(t *testing.T) {
	p, exp := newTestProvider(t)

	var traceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx, parent := otel.Tracer("test").Start(context.Background(), "parent")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/basket/current", nil)
	require.NoError(t, err)

	resp, err := NewTracedHTTPClient(nil).Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	parent.End()

	assert.NotEmpty(t, traceparent)
	require.NoError(t, p.ForceFlush(context.Background()))

	var names []string
	for _, s := range exp.GetSpans() {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "HTTP GET /api/basket/current")
}

func TestServerMiddleware_SkipPaths(t *testing.T) {
	_, exp := newTestProvider(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	traced := ServerMiddleware("fake-backend", ServerOptions{
		SkipPaths: []string{"/health"},
	})(handler)

	for _, path := range []string{"/health", "/api/user/me", "/api/basket/item/42"} {
		rec := httptest.NewRecorder()
		traced.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	require.NoError(t, otelFlush())
	var names []string
	for _, s := range exp.GetSpans() {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "HTTP GET /api/user/me")
	assert.Contains(t, names, "HTTP GET /api/basket/item/:id")
	assert.NotContains(t, names, "HTTP GET /health")
}

// otelFlush flushes the global provider installed by newTestProvider
func otelFlush() error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(context.Background())
	}
	return nil
}
