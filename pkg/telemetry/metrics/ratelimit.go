package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"kestrel-hq/kestrel/pkg/config"
)

// RateLimitMetrics tracks limiter decisions.
//
// Metrics:
//   - kestrel_gateway_ratelimit_denied_total: denials by route class
//   - kestrel_gateway_ratelimit_buckets: live bucket count
type RateLimitMetrics struct {
	deniedTotal *prometheus.CounterVec
}

// NewRateLimitMetrics creates and registers rate-limit metrics with the
// provided registry.
func NewRateLimitMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RateLimitMetrics {
	rl := &RateLimitMetrics{
		deniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ratelimit_denied_total",
				Help:      "Total requests denied by the rate limiter, by route class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(rl.deniedTotal)
	return rl
}

// RecordDenied records one denial for a route class.
func (rl *RateLimitMetrics) RecordDenied(class string) {
	rl.deniedTotal.WithLabelValues(class).Inc()
}

// RegisterBucketGauge registers a gauge backed by the live bucket count.
func (rl *RateLimitMetrics) RegisterBucketGauge(registry *prometheus.Registry, cfg config.MetricsConfig, fn func() float64) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ratelimit_buckets",
			Help:      "Current number of live rate-limit buckets",
		},
		fn,
	))
}
