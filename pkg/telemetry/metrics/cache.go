package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"kestrel-hq/kestrel/pkg/config"
)

// CacheMetrics tracks response cache performance.
//
// Metrics:
//   - kestrel_gateway_cache_hits_total: hits by freshness (fresh|stale)
//   - kestrel_gateway_cache_misses_total: misses
//   - kestrel_gateway_cache_evictions_total: evictions
//   - kestrel_gateway_cache_entries: current entry count
type CacheMetrics struct {
	hitsTotal      *prometheus.CounterVec
	missesTotal    prometheus.Counter
	evictionsTotal prometheus.Counter
}

// NewCacheMetrics creates and registers cache metrics with the provided
// registry. The entries gauge is registered later via SetEntriesFunc once
// the store exists.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of response cache hits",
			},
			[]string{"freshness"},
		),

		missesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of response cache misses",
			},
		),

		evictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_evictions_total",
				Help:      "Total number of response cache evictions",
			},
		),
	}

	registry.MustRegister(cm.hitsTotal, cm.missesTotal, cm.evictionsTotal)
	return cm
}

// SetEntriesFunc registers the live entry-count gauge backed by fn.
func (cm *CacheMetrics) SetEntriesFunc(registry *prometheus.Registry, cfg config.MetricsConfig, fn func() float64) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_entries",
			Help:      "Current number of entries in the response cache",
		},
		fn,
	))
}

// RecordHit records a cache hit, stale or fresh.
func (cm *CacheMetrics) RecordHit(stale bool) {
	if stale {
		cm.hitsTotal.WithLabelValues("stale").Inc()
	} else {
		cm.hitsTotal.WithLabelValues("fresh").Inc()
	}
}

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss() {
	cm.missesTotal.Inc()
}

// RecordEvictions records n evicted entries.
func (cm *CacheMetrics) RecordEvictions(n int) {
	cm.evictionsTotal.Add(float64(n))
}
