package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kestrel-hq/kestrel/pkg/config"
)

// Collector is the main orchestrator for all Prometheus metrics in the
// gateway. It manages metric registration and provides a unified interface
// for recording across components.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	// Request metrics
	Requests *RequestMetrics

	// Cache metrics
	Cache *CacheMetrics

	// Upstream metrics
	Upstream *UpstreamMetrics

	// Rate-limit metrics
	RateLimit *RateLimitMetrics
}

// NewCollector creates a metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a private registry with the
// standard Go and process collectors is created.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "kestrel"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gateway"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// Optimized for proxied request latencies (1ms - 60s).
		cfg.RequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	}

	return &Collector{
		config:    cfg,
		registry:  registry,
		Requests:  NewRequestMetrics(&cfg, registry),
		Cache:     NewCacheMetrics(&cfg, registry),
		Upstream:  NewUpstreamMetrics(&cfg, registry),
		RateLimit: NewRateLimitMetrics(&cfg, registry),
	}
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
