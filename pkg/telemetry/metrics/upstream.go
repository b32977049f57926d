package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"kestrel-hq/kestrel/pkg/config"
)

// UpstreamMetrics tracks upstream pool health and dispatch outcomes.
//
// Metrics:
//   - kestrel_gateway_upstream_state_changes_total: prober transitions
//   - kestrel_gateway_upstream_attempts_total: dispatch attempts by outcome
//   - kestrel_gateway_upstream_healthy_targets: healthy target gauge
type UpstreamMetrics struct {
	stateChanges  *prometheus.CounterVec
	attemptsTotal *prometheus.CounterVec
	healthyGauge  *prometheus.GaugeVec
}

// NewUpstreamMetrics creates and registers upstream metrics with the
// provided registry.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		stateChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_state_changes_total",
				Help:      "Total health state transitions by pool and resulting state",
			},
			[]string{"pool", "to"},
		),

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_attempts_total",
				Help:      "Total upstream dispatch attempts by pool and outcome",
			},
			[]string{"pool", "outcome"},
		),

		healthyGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_healthy_targets",
				Help:      "Number of non-dead targets per pool",
			},
			[]string{"pool"},
		),
	}

	registry.MustRegister(um.stateChanges, um.attemptsTotal, um.healthyGauge)
	return um
}

// RecordStateChange records a prober transition.
func (um *UpstreamMetrics) RecordStateChange(pool, to string) {
	um.stateChanges.WithLabelValues(pool, to).Inc()
}

// RecordAttempt records one dispatch attempt. Outcome is "ok",
// "upstream_5xx", "timeout", or "connection_error".
func (um *UpstreamMetrics) RecordAttempt(pool, outcome string) {
	um.attemptsTotal.WithLabelValues(pool, outcome).Inc()
}

// SetHealthyTargets updates the healthy-target gauge for a pool.
func (um *UpstreamMetrics) SetHealthyTargets(pool string, n int) {
	um.healthyGauge.WithLabelValues(pool).Set(float64(n))
}
