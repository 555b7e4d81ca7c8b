package metrics

import "github.com/prometheus/client_golang/prometheus"

// Test-only accessors for the external metrics_test package.

func (c *Collector) RequestsVec() *prometheus.CounterVec      { return c.requests }
func (c *Collector) DurationVec() *prometheus.HistogramVec    { return c.duration }
func (c *Collector) ForcedLogoutsVec() *prometheus.CounterVec { return c.forcedLogouts }
func (c *Collector) CacheLookupsVec() *prometheus.CounterVec  { return c.cacheLookups }
func (c *Collector) InvalidationsVec() *prometheus.CounterVec { return c.invalidations }
func (c *Collector) BreakerEventsVec() *prometheus.CounterVec { return c.breakerEvents }
func (c *Collector) BreakerStateVec() *prometheus.GaugeVec    { return c.breakerState }
