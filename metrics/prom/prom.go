// Package prom exports cache metrics to Prometheus.
//
// Besides the engine counters (hits, misses, evictions by reason) and the
// resident size gauges, the adapter publishes the configured limits, so
// dashboards can show fill ratio, and counts lifecycle events raised through
// the imagecache facade separately from limit-driven evictions.
package prom

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/IvanBrykalov/boundcache/cache"
	"github.com/IvanBrykalov/boundcache/imagecache"
)

// Adapter implements cache.Metrics and imagecache.LifecycleMetrics.
// Safe for concurrent use.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions *prometheus.CounterVec

	entries    prometheus.Gauge
	cost       prometheus.Gauge
	costLimit  prometheus.Gauge
	countLimit prometheus.Gauge

	events  *prometheus.CounterVec
	removed *prometheus.CounterVec
}

// New registers the adapter's collectors with reg (nil => the default
// registerer) under ns/sub. Registering twice on one registry panics.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels}
	}
	gauge := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels}
	}

	return &Adapter{
		hits:      f.NewCounter(counter("hits_total", "Lookups that returned a live entry.")),
		misses:    f.NewCounter(counter("misses_total", "Lookups that found nothing or an expired entry.")),
		evictions: f.NewCounterVec(counter("evictions_total", "Evicted entries by reason (count, cost, ttl, trim)."), []string{"reason"}),

		entries:    f.NewGauge(gauge("entries", "Resident entries.")),
		cost:       f.NewGauge(gauge("cost", "Summed cost of resident entries.")),
		costLimit:  f.NewGauge(gauge("cost_limit", "Configured total cost limit; +Inf when unbounded.")),
		countLimit: f.NewGauge(gauge("count_limit", "Configured entry count limit; +Inf when unbounded.")),

		events:  f.NewCounterVec(counter("lifecycle_events_total", "Lifecycle events handled by the cache."), []string{"event"}),
		removed: f.NewCounterVec(counter("lifecycle_removed_entries_total", "Entries dropped in response to lifecycle events."), []string{"event"}),
	}
}

func (a *Adapter) Hit()  { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

func (a *Adapter) Evict(r cache.EvictReason) {
	a.evictions.WithLabelValues(r.String()).Inc()
}

func (a *Adapter) Size(entries int, cost int64) {
	a.entries.Set(float64(entries))
	a.cost.Set(float64(cost))
}

// Limits publishes the configured limits. The engine's "unbounded" defaults
// are exported as +Inf.
func (a *Adapter) Limits(costLimit int64, countLimit int) {
	a.costLimit.Set(bounded(costLimit == math.MaxInt64, float64(costLimit)))
	a.countLimit.Set(bounded(countLimit == math.MaxInt, float64(countLimit)))
}

// Lifecycle counts one lifecycle event and the entries it dropped.
func (a *Adapter) Lifecycle(event string, removed int) {
	a.events.WithLabelValues(event).Inc()
	a.removed.WithLabelValues(event).Add(float64(removed))
}

func bounded(unbounded bool, v float64) float64 {
	if unbounded {
		return math.Inf(1)
	}
	return v
}

var (
	_ cache.Metrics               = (*Adapter)(nil)
	_ imagecache.LifecycleMetrics = (*Adapter)(nil)
)
