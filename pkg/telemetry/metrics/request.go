package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kestrel-hq/kestrel/pkg/config"
)

// RequestMetrics tracks proxied request processing.
//
// Metrics:
//   - kestrel_gateway_requests_total: request count by class, pool, status
//   - kestrel_gateway_request_duration_seconds: latency histogram
//   - kestrel_gateway_request_retries_total: retry attempts beyond the first
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided
// registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of proxied requests",
			},
			[]string{"class", "pool", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of proxied requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"class", "pool"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_retries_total",
				Help:      "Total upstream retry attempts beyond the first",
			},
			[]string{"class", "pool"},
		),
	}

	registry.MustRegister(rm.requestsTotal, rm.requestDuration, rm.retriesTotal)
	return rm
}

// Record records a completed request.
func (rm *RequestMetrics) Record(class, pool, status string, duration time.Duration, attempts int) {
	rm.requestsTotal.WithLabelValues(class, pool, status).Inc()
	rm.requestDuration.WithLabelValues(class, pool).Observe(duration.Seconds())
	if attempts > 1 {
		rm.retriesTotal.WithLabelValues(class, pool).Add(float64(attempts - 1))
	}
}
