package config

import (
	"sort"
	"time"
)

// Default values applied to unset fields. Rate-limit class defaults mirror
// the production tuning the gateway fronts: general 10 r/s burst 20, API
// 30 r/s burst 50, auth 1 r/s burst 5, admin 5 r/s burst 10, upload 2 r/s
// burst 3.
const (
	DefaultListenAddress   = ":443"
	DefaultHTTPAddress     = ":80"
	DefaultAdminAddress    = "127.0.0.1:9900"
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20
	DefaultShutdownTimeout = 30 * time.Second

	DefaultCacheTTL        = 60 * time.Second
	DefaultCacheStale      = 5 * time.Minute
	DefaultCacheShards     = 32
	DefaultCacheMaxObject  = 4 << 20
	DefaultMaxAttempts     = 3
	DefaultMaxBodyBytes    = 32 << 20
	DefaultIdleConnsPerHost = 16
	DefaultRateLimitShards = 32
	DefaultBucketIdleTTL   = 10 * time.Minute

	DefaultProbeInterval  = 10 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	DefaultProbePath      = "/health"
	DefaultFailThreshold  = 3

	DefaultAccessLogBuffer = 1024
	DefaultAccessLogKeep   = 7 * 24 * time.Hour
)

// DefaultClasses returns the built-in route-class parameter set.
func DefaultClasses() map[string]ClassConfig {
	return map[string]ClassConfig{
		ClassGeneral: {RatePerSecond: 10, Burst: 20, Deadline: 60 * time.Second, AttemptTimeout: 20 * time.Second},
		ClassAPI:     {RatePerSecond: 30, Burst: 50, Deadline: 60 * time.Second, AttemptTimeout: 20 * time.Second},
		ClassAuth:    {RatePerSecond: 1, Burst: 5, Deadline: 30 * time.Second, AttemptTimeout: 10 * time.Second},
		ClassAdmin:   {RatePerSecond: 5, Burst: 10, Deadline: 60 * time.Second, AttemptTimeout: 20 * time.Second},
		ClassUpload:  {RatePerSecond: 2, Burst: 3, Deadline: 300 * time.Second, AttemptTimeout: 120 * time.Second},
	}
}

// ApplyDefaults fills unset fields with defaults. It is called by LoadConfig
// before validation; callers constructing a Config by hand (tests) can call
// it directly.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.HTTPAddress == "" {
		cfg.Server.HTTPAddress = DefaultHTTPAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Admin.ListenAddress == "" {
		cfg.Admin.ListenAddress = DefaultAdminAddress
	}

	// Merge built-in classes under user-provided ones so every known class
	// has parameters even when the file names only a subset.
	defaults := DefaultClasses()
	if cfg.Classes == nil {
		cfg.Classes = defaults
	} else {
		for name, cc := range defaults {
			if _, ok := cfg.Classes[name]; !ok {
				cfg.Classes[name] = cc
			}
		}
	}

	if cfg.DefaultPool == "" && len(cfg.Pools) > 0 {
		names := make([]string, 0, len(cfg.Pools))
		for name := range cfg.Pools {
			names = append(names, name)
		}
		sort.Strings(names)
		cfg.DefaultPool = names[0]
	}

	for name, pool := range cfg.Pools {
		for i := range pool.Targets {
			if pool.Targets[i].Weight == 0 {
				pool.Targets[i].Weight = 1
			}
		}
		cfg.Pools[name] = pool
	}

	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = DefaultCacheTTL
	}
	if cfg.Cache.StaleWhileRevalidate == 0 {
		cfg.Cache.StaleWhileRevalidate = DefaultCacheStale
	}
	if cfg.Cache.Shards == 0 {
		cfg.Cache.Shards = DefaultCacheShards
	}
	if cfg.Cache.MaxObjectBytes == 0 {
		cfg.Cache.MaxObjectBytes = DefaultCacheMaxObject
	}

	if cfg.HealthCheck.Interval == 0 {
		cfg.HealthCheck.Interval = DefaultProbeInterval
	}
	if cfg.HealthCheck.Timeout == 0 {
		cfg.HealthCheck.Timeout = DefaultProbeTimeout
	}
	if cfg.HealthCheck.Path == "" {
		cfg.HealthCheck.Path = DefaultProbePath
	}
	if cfg.HealthCheck.FailThreshold == 0 {
		cfg.HealthCheck.FailThreshold = DefaultFailThreshold
	}

	if cfg.Proxy.MaxAttempts == 0 {
		cfg.Proxy.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Proxy.MaxBodyBytes == 0 {
		cfg.Proxy.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Proxy.MaxIdleConnsPerHost == 0 {
		cfg.Proxy.MaxIdleConnsPerHost = DefaultIdleConnsPerHost
	}
	if cfg.Proxy.RateLimitShards == 0 {
		cfg.Proxy.RateLimitShards = DefaultRateLimitShards
	}
	if cfg.Proxy.BucketIdleTTL == 0 {
		cfg.Proxy.BucketIdleTTL = DefaultBucketIdleTTL
	}

	if cfg.AccessLog.Backend == "" {
		cfg.AccessLog.Backend = "sqlite"
	}
	if cfg.AccessLog.Buffer == 0 {
		cfg.AccessLog.Buffer = DefaultAccessLogBuffer
	}
	if cfg.AccessLog.Retention == 0 {
		cfg.AccessLog.Retention = DefaultAccessLogKeep
	}

	if cfg.Maintenance.BucketReapSchedule == "" {
		cfg.Maintenance.BucketReapSchedule = "@every 1m"
	}
	if cfg.Maintenance.CacheSweepSchedule == "" {
		cfg.Maintenance.CacheSweepSchedule = "@every 30s"
	}
	if cfg.Maintenance.AccessLogPruneSchedule == "" {
		cfg.Maintenance.AccessLogPruneSchedule = "@daily"
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "kestrel"
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = "gateway"
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = "kestrel-gateway"
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = 1.0
	}
}
