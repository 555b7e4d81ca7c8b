// Package metrics exports client-side counters to Prometheus.
//
// A Collector satisfies the metrics hooks of the HTTP client, the query
// cache and the circuit breaker, so one value can be handed to all three.
// Each Collector owns its registry; nothing is registered globally.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultNamespace = "cartshare"

	// MaxRoutes caps distinct route labels; later routes report as "other".
	MaxRoutes = 64
)

// Collector records API, cache and circuit breaker activity.
type Collector struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	forcedLogouts *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	breakerEvents *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec

	mu     sync.Mutex
	routes map[string]struct{}
}

// New creates a collector. An empty namespace uses DefaultNamespace.
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		routes:   make(map[string]struct{}),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Backend requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Backend request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		forcedLogouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forced_logouts_total",
				Help:      "Sessions dropped because the server rejected them",
			},
			[]string{"reason"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Query cache lookups",
			},
			[]string{"resource", "result"},
		),
		invalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Query cache entries marked stale",
			},
			[]string{"resource"},
		),
		breakerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_events_total",
				Help:      "Circuit breaker outcomes",
			},
			[]string{"breaker", "result"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "0 closed, 1 half-open, 2 open",
			},
			[]string{"breaker"},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRequest implements client.Metrics. Status 0 is a transport failure.
func (c *Collector) ObserveRequest(method, path string, status int, duration time.Duration) {
	route := c.route(path)
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.requests.WithLabelValues(method, route, label).Inc()
	c.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ForcedLogout implements client.Metrics.
func (c *Collector) ForcedLogout(reason string) {
	c.forcedLogouts.WithLabelValues(reason).Inc()
}

// CacheHit implements cache.Observer.
func (c *Collector) CacheHit(resource string) {
	c.cacheLookups.WithLabelValues(resource, "hit").Inc()
}

// CacheMiss implements cache.Observer.
func (c *Collector) CacheMiss(resource string) {
	c.cacheLookups.WithLabelValues(resource, "miss").Inc()
}

// CacheInvalidated implements cache.Observer.
func (c *Collector) CacheInvalidated(resource string, n int) {
	c.invalidations.WithLabelValues(resource).Add(float64(n))
}

// RecordSuccess implements resilience.MetricsCollector.
func (c *Collector) RecordSuccess(name string) {
	c.breakerEvents.WithLabelValues(name, "success").Inc()
}

// RecordFailure implements resilience.MetricsCollector.
func (c *Collector) RecordFailure(name string, errorType string) {
	c.breakerEvents.WithLabelValues(name, "failure").Inc()
}

// RecordRejection implements resilience.MetricsCollector.
func (c *Collector) RecordRejection(name string) {
	c.breakerEvents.WithLabelValues(name, "rejected").Inc()
}

// RecordStateChange implements resilience.MetricsCollector.
func (c *Collector) RecordStateChange(name string, from, to string) {
	var v float64
	switch to {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	c.breakerState.WithLabelValues(name).Set(v)
}

func (c *Collector) route(path string) string {
	route := NormalizeRoute(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.routes[route]; ok {
		return route
	}
	if len(c.routes) >= MaxRoutes {
		return "other"
	}
	c.routes[route] = struct{}{}
	return route
}

var (
	numericSegment = regexp.MustCompile(`^\d+$`)
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// NormalizeRoute replaces id segments with ":id" and drops any query so
// basket and product ids do not become label values.
func NormalizeRoute(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if numericSegment.MatchString(s) || uuidSegment.MatchString(s) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}
