package config

import (
	"time"
)

// Config is the root configuration for the Kestrel gateway.
// All sections are value types so that a loaded Config can be treated as an
// immutable snapshot: it is never mutated after Validate returns.
type Config struct {
	// Server configures the public listeners (HTTPS proxy, HTTP redirect).
	Server ServerConfig `yaml:"server"`

	// Admin configures the private admin/metrics listener.
	Admin AdminConfig `yaml:"admin"`

	// Routes is the ordered route table. Rules are evaluated top to bottom,
	// first match wins, so more specific prefixes must be listed first.
	Routes []RouteConfig `yaml:"routes"`

	// Pools maps pool names to their upstream target sets.
	Pools map[string]PoolConfig `yaml:"pools"`

	// DefaultPool receives traffic that matches no route rule. Defaults to
	// the lexicographically first pool name.
	DefaultPool string `yaml:"default_pool"`

	// Classes maps route-class names (general, api, auth, admin, upload) to
	// their rate-limit and deadline parameters.
	Classes map[string]ClassConfig `yaml:"classes"`

	// Cache configures the shared response cache.
	Cache CacheConfig `yaml:"cache"`

	// HealthCheck configures the background upstream prober.
	HealthCheck HealthCheckConfig `yaml:"health_check"`

	// Proxy configures upstream dispatch behavior (retries, body limits).
	Proxy ProxyConfig `yaml:"proxy"`

	// AccessLog configures request record storage.
	AccessLog AccessLogConfig `yaml:"access_log"`

	// Maintenance configures scheduled background jobs.
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the public-facing listeners.
type ServerConfig struct {
	// ListenAddress is the address for proxied traffic (default ":443").
	ListenAddress string `yaml:"listen_address"`

	// HTTPAddress is the plain-HTTP listener address (default ":80").
	// It serves the HTTPS redirect, /health, and the ACME challenge path.
	HTTPAddress string `yaml:"http_address"`

	// TLS configures certificates for the main listener. When disabled the
	// main listener serves plain HTTP (useful for tests and local runs).
	TLS TLSConfig `yaml:"tls"`

	// ACMEWebroot is the directory served under /.well-known/acme-challenge/
	// on the plain-HTTP listener. Empty disables challenge serving.
	ACMEWebroot string `yaml:"acme_webroot"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLSConfig configures TLS for the main listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AdminConfig configures the admin listener serving /metrics, /health,
// /status, and /config.
type AdminConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// RouteConfig is a single route rule. The rule set is immutable after load.
type RouteConfig struct {
	// Pattern is a path prefix (e.g. "/api/auth/") or an exact path when
	// it does not end with "/".
	Pattern string `yaml:"pattern"`

	// Class is the route class name; must exist in Config.Classes.
	Class string `yaml:"class"`

	// Pool is the upstream pool name; must exist in Config.Pools.
	Pool string `yaml:"pool"`

	// Cacheable marks GET responses on this route as cache participants.
	Cacheable bool `yaml:"cacheable"`

	// CacheTTL overrides the cache default TTL for this route (0 = default).
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ClassConfig holds the per-class rate-limit and deadline parameters.
type ClassConfig struct {
	// RatePerSecond is the token refill rate. Zero disables limiting for
	// the class.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the bucket capacity.
	Burst int64 `yaml:"burst"`

	// Deadline is the overall per-request deadline for the class.
	Deadline time.Duration `yaml:"deadline"`

	// AttemptTimeout bounds a single upstream attempt. It must be strictly
	// less than Deadline.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// PoolConfig is a named set of upstream targets.
type PoolConfig struct {
	Targets []TargetConfig `yaml:"targets"`
}

// TargetConfig describes one upstream worker address.
type TargetConfig struct {
	// Address is host:port of the upstream HTTP/1.1 worker.
	Address string `yaml:"address"`

	// Weight scales the connection budget used by least-connections
	// selection. Defaults to 1.
	Weight int `yaml:"weight"`

	// MaxConnections caps concurrent proxied requests to this target.
	// Zero means unlimited.
	MaxConnections int `yaml:"max_connections"`
}

// CacheConfig configures the shared response cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// DefaultTTL is the freshness lifetime for entries without a per-route
	// override.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// StaleWhileRevalidate extends an entry past its TTL: a hit in the
	// window is served immediately while one background refresh runs.
	StaleWhileRevalidate time.Duration `yaml:"stale_while_revalidate"`

	// MaxEntries bounds stored entries; oldest entries are evicted first.
	// Zero means unbounded (TTL eviction only).
	MaxEntries int `yaml:"max_entries"`

	// Shards is the number of lock shards for the entry map.
	Shards int `yaml:"shards"`

	// VaryHeaders lists request headers folded into the cache key.
	VaryHeaders []string `yaml:"vary_headers"`

	// MaxObjectBytes bounds the size of a single cached payload. Larger
	// responses bypass the cache.
	MaxObjectBytes int64 `yaml:"max_object_bytes"`
}

// HealthCheckConfig configures the background upstream prober.
type HealthCheckConfig struct {
	// Interval between probe rounds.
	Interval time.Duration `yaml:"interval"`

	// Timeout for a single probe request.
	Timeout time.Duration `yaml:"timeout"`

	// Path is the upstream path probed (default "/health").
	Path string `yaml:"path"`

	// FailThreshold is the consecutive-failure count that marks a target
	// Dead (it passes through Suspected on the way).
	FailThreshold int `yaml:"fail_threshold"`
}

// ProxyConfig configures upstream dispatch.
type ProxyConfig struct {
	// MaxAttempts is the per-request attempt budget (first try + retries).
	MaxAttempts int `yaml:"max_attempts"`

	// MaxBodyBytes caps inbound request bodies; larger requests get 413.
	// Zero means unlimited.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxIdleConnsPerHost sizes the keep-alive pool per upstream target.
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// RateLimitShards is the shard count for the keyed bucket map.
	RateLimitShards int `yaml:"rate_limit_shards"`

	// BucketIdleTTL is how long an untouched rate bucket survives before
	// the reaper evicts it.
	BucketIdleTTL time.Duration `yaml:"bucket_idle_ttl"`
}

// AccessLogConfig configures request record storage.
type AccessLogConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// Path is the SQLite database path (sqlite backend only).
	Path string `yaml:"path"`

	// Buffer is the async write buffer depth; records are dropped (and
	// counted) when full rather than blocking the request path.
	Buffer int `yaml:"buffer"`

	// Retention is how long records are kept before pruning.
	Retention time.Duration `yaml:"retention"`
}

// MaintenanceConfig configures scheduled background jobs (cron expressions,
// including the @every form).
type MaintenanceConfig struct {
	// BucketReapSchedule runs the idle rate-bucket reaper.
	BucketReapSchedule string `yaml:"bucket_reap_schedule"`

	// CacheSweepSchedule runs expired-entry eviction.
	CacheSweepSchedule string `yaml:"cache_sweep_schedule"`

	// AccessLogPruneSchedule runs access-log retention pruning.
	AccessLogPruneSchedule string `yaml:"access_log_prune_schedule"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets overrides the histogram buckets for proxied
	// request latency.
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Route-class names referenced throughout the gateway.
const (
	ClassGeneral = "general"
	ClassAPI     = "api"
	ClassAuth    = "auth"
	ClassAdmin   = "admin"
	ClassUpload  = "upload"
)

// Class returns the class parameters for name, falling back to the general
// class when the name is unknown.
func (c *Config) Class(name string) ClassConfig {
	if cc, ok := c.Classes[name]; ok {
		return cc
	}
	return c.Classes[ClassGeneral]
}
