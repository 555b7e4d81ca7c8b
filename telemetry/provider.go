// Package telemetry wires OpenTelemetry tracing for the cartshare client.
//
// NewProvider installs a global tracer provider so the HTTP client's otelhttp
// transport produces spans, and returns a core.Telemetry implementation that
// the auth and cart packages use for their own operation spans and counters.
//
// Telemetry is optional: when it is disabled every package falls back to
// core.NoOpTelemetry and the global no-op tracer.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/cartshare/core"
)

// InstrumentationName names the tracer and meter
const InstrumentationName = "github.com/itsneelabh/cartshare"

// Provider implements core.Telemetry with OpenTelemetry
type Provider struct {
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider // set when counters are exported by us
	logger        core.Logger

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
}

type providerOptions struct {
	exporter      sdktrace.SpanExporter
	meterProvider metric.MeterProvider
	writer        io.Writer
	logger        core.Logger
	version       string
}

// ProviderOption customizes NewProvider
type ProviderOption func(*providerOptions)

// WithSpanExporter bypasses exporter selection, mostly for tests.
func WithSpanExporter(exp sdktrace.SpanExporter) ProviderOption {
	return func(o *providerOptions) { o.exporter = exp }
}

// WithMeterProvider sets where RecordMetric counters go. Without it the
// otlphttp exporter ships counters to the collector and the other exporters
// use the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) ProviderOption {
	return func(o *providerOptions) { o.meterProvider = mp }
}

// WithWriter sets the destination of the stdout exporter (stderr by default).
func WithWriter(w io.Writer) ProviderOption {
	return func(o *providerOptions) { o.writer = w }
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) ProviderOption {
	return func(o *providerOptions) { o.logger = logger }
}

// WithServiceVersion sets the service.version resource attribute
func WithServiceVersion(version string) ProviderOption {
	return func(o *providerOptions) { o.version = version }
}

// NewProvider creates the tracer provider described by cfg and installs it,
// together with the TraceContext and Baggage propagators, as the global one.
func NewProvider(ctx context.Context, cfg core.TelemetryConfig, opts ...ProviderOption) (*Provider, error) {
	o := &providerOptions{writer: os.Stderr, logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(o)
	}
	logger := core.ComponentLogger(o.logger, "telemetry")

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "cartshare"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", serviceName)}
	if o.version != "" {
		attrs = append(attrs, attribute.String("service.version", o.version))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter := o.exporter
	if exporter == nil {
		exporter, err = newExporter(ctx, cfg, o.writer)
		if err != nil {
			logger.Error("Failed to create span exporter", map[string]interface{}{
				"exporter": cfg.Exporter,
				"endpoint": cfg.Endpoint,
				"error":    err.Error(),
			})
			return nil, err
		}
	}

	rate := cfg.SamplingRate
	if rate <= 0 || rate > 1 {
		rate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	mp := o.meterProvider
	var owned *sdkmetric.MeterProvider
	if mp == nil && cfg.Exporter == "otlphttp" {
		owned, err = newOTLPMeterProvider(ctx, cfg, res)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, err
		}
		mp = owned
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	logger.Info("Telemetry enabled", map[string]interface{}{
		"service":       serviceName,
		"exporter":      cfg.Exporter,
		"endpoint":      cfg.Endpoint,
		"sampling_rate": rate,
	})

	return &Provider{
		tracer:        tp.Tracer(InstrumentationName),
		meter:         mp.Meter(InstrumentationName),
		traceProvider: tp,
		meterProvider: owned,
		logger:        logger,
		counters:      make(map[string]metric.Float64Counter),
	}, nil
}

func newExporter(ctx context.Context, cfg core.TelemetryConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	case "otlp", "":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("otlp exporter needs an endpoint: %w", core.ErrMissingConfiguration)
		}
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		return exp, nil
	case "otlphttp":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("otlphttp exporter needs an endpoint: %w", core.ErrMissingConfiguration)
		}
		httpOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlphttp exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown exporter %q: %w", cfg.Exporter, core.ErrInvalidConfiguration)
	}
}

// newOTLPMeterProvider pushes RecordMetric counters to the same collector
// as the spans.
func newOTLPMeterProvider(ctx context.Context, cfg core.TelemetryConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	), nil
}

// StartSpan starts a new telemetry span
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric adds value to the counter called name. Counters are created
// on first use and cached.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	counter, err := p.counter(name)
	if err != nil {
		p.logger.Debug("Failed to create counter", map[string]interface{}{
			"metric": name,
			"error":  err.Error(),
		})
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

func (p *Provider) counter(name string) (metric.Float64Counter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c, nil
	}
	c, err := p.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	p.counters[name] = c
	return c, nil
}

// ForceFlush exports any buffered spans
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.traceProvider.ForceFlush(ctx)
}

// Shutdown flushes and stops the tracer provider, and the meter provider
// when NewProvider created one.
func (p *Provider) Shutdown(ctx context.Context) error {
	err := p.traceProvider.Shutdown(ctx)
	if p.meterProvider != nil {
		err = errors.Join(err, p.meterProvider.Shutdown(ctx))
	}
	return err
}

// otelSpan wraps an OpenTelemetry span to implement core.Span
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}
