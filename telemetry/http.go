package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/itsneelabh/cartshare/metrics"
)

// ServerOptions controls which backend requests get a server span.
type ServerOptions struct {
	// Paths that never get a span, e.g. "/health".
	SkipPaths []string
}

// ServerMiddleware wraps a backend handler so every request joins the trace
// started by the client that sent it.
func ServerMiddleware(service string, o ServerOptions) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(o.SkipPaths))
	for _, p := range o.SkipPaths {
		skip[p] = struct{}{}
	}
	opts := []otelhttp.Option{otelhttp.WithSpanNameFormatter(routeSpanName)}
	if len(skip) > 0 {
		opts = append(opts, otelhttp.WithFilter(func(r *http.Request) bool {
			_, skipped := skip[r.URL.Path]
			return !skipped
		}))
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service, opts...)
	}
}

// NewTracedHTTPClient returns a client that injects W3C trace headers and
// records one span per API call. A nil rt uses http.DefaultTransport.
func NewTracedHTTPClient(rt http.RoundTripper) *http.Client {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(rt, otelhttp.WithSpanNameFormatter(routeSpanName)),
	}
}

// routeSpanName names a span after the route, with ids collapsed so
// "/api/basket/42/items" and "/api/basket/7/items" share one name.
func routeSpanName(_ string, r *http.Request) string {
	return "HTTP " + r.Method + " " + metrics.NormalizeRoute(r.URL.Path)
}
