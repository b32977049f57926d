package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks a fully-defaulted configuration for internal consistency.
// A Config that fails validation must never be installed as the serving
// snapshot; at startup a validation failure is fatal.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	if len(cfg.Pools) == 0 {
		return fmt.Errorf("at least one upstream pool must be configured")
	}
	for name, pool := range cfg.Pools {
		if err := validatePool(name, pool); err != nil {
			return err
		}
	}

	if cfg.DefaultPool == "" {
		return fmt.Errorf("default_pool is required")
	}
	if _, ok := cfg.Pools[cfg.DefaultPool]; !ok {
		return fmt.Errorf("default_pool: unknown pool %q", cfg.DefaultPool)
	}

	if len(cfg.Routes) == 0 {
		return fmt.Errorf("at least one route must be configured")
	}
	for i, route := range cfg.Routes {
		if err := validateRoute(i, route, cfg); err != nil {
			return err
		}
	}

	for name, cc := range cfg.Classes {
		if err := validateClass(name, cc); err != nil {
			return err
		}
	}

	if cfg.Cache.Enabled && cfg.Cache.Shards < 1 {
		return fmt.Errorf("cache: shards must be >= 1, got %d", cfg.Cache.Shards)
	}
	if cfg.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache: max_entries must not be negative")
	}

	if cfg.HealthCheck.Interval <= 0 {
		return fmt.Errorf("health_check: interval must be positive")
	}
	if cfg.HealthCheck.Timeout >= cfg.HealthCheck.Interval {
		return fmt.Errorf("health_check: timeout %s must be less than interval %s",
			cfg.HealthCheck.Timeout, cfg.HealthCheck.Interval)
	}
	if cfg.HealthCheck.FailThreshold < 1 {
		return fmt.Errorf("health_check: fail_threshold must be >= 1")
	}

	if cfg.Proxy.MaxAttempts < 1 {
		return fmt.Errorf("proxy: max_attempts must be >= 1, got %d", cfg.Proxy.MaxAttempts)
	}
	if cfg.Proxy.RateLimitShards < 1 {
		return fmt.Errorf("proxy: rate_limit_shards must be >= 1")
	}

	if cfg.AccessLog.Enabled {
		switch cfg.AccessLog.Backend {
		case "sqlite":
			if cfg.AccessLog.Path == "" {
				return fmt.Errorf("access_log: path is required for the sqlite backend")
			}
		case "memory":
		default:
			return fmt.Errorf("access_log: unsupported backend %q", cfg.AccessLog.Backend)
		}
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging: unknown level %q", cfg.Telemetry.Logging.Level)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging: unknown format %q", cfg.Telemetry.Logging.Format)
	}
	if cfg.Telemetry.Tracing.Enabled && cfg.Telemetry.Tracing.Endpoint == "" {
		return fmt.Errorf("telemetry.tracing: endpoint is required when tracing is enabled")
	}
	if r := cfg.Telemetry.Tracing.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.tracing: sample_ratio must be in [0, 1], got %v", r)
	}

	return nil
}

func validateServer(s *ServerConfig) error {
	if s.ListenAddress == "" {
		return fmt.Errorf("server: listen_address is required")
	}
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("server.tls: cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls: key_file is required when TLS is enabled")
		}
	}
	return nil
}

func validatePool(name string, pool PoolConfig) error {
	if len(pool.Targets) == 0 {
		return fmt.Errorf("pool %q: at least one target is required", name)
	}
	for i, t := range pool.Targets {
		if t.Address == "" {
			return fmt.Errorf("pool %q: target %d: address is required", name, i)
		}
		if _, _, err := net.SplitHostPort(t.Address); err != nil {
			return fmt.Errorf("pool %q: target %d: invalid address %q: %w", name, i, t.Address, err)
		}
		if t.Weight < 1 {
			return fmt.Errorf("pool %q: target %d: weight must be >= 1, got %d", name, i, t.Weight)
		}
		if t.MaxConnections < 0 {
			return fmt.Errorf("pool %q: target %d: max_connections must not be negative", name, i)
		}
	}
	return nil
}

func validateRoute(i int, route RouteConfig, cfg *Config) error {
	if route.Pattern == "" {
		return fmt.Errorf("route %d: pattern is required", i)
	}
	if !strings.HasPrefix(route.Pattern, "/") {
		return fmt.Errorf("route %d: pattern %q must start with /", i, route.Pattern)
	}
	if route.Pool == "" {
		return fmt.Errorf("route %d (%s): pool is required", i, route.Pattern)
	}
	if _, ok := cfg.Pools[route.Pool]; !ok {
		return fmt.Errorf("route %d (%s): unknown pool %q", i, route.Pattern, route.Pool)
	}
	if route.Class != "" {
		if _, ok := cfg.Classes[route.Class]; !ok {
			return fmt.Errorf("route %d (%s): unknown class %q", i, route.Pattern, route.Class)
		}
	}
	if route.CacheTTL < 0 {
		return fmt.Errorf("route %d (%s): cache_ttl must not be negative", i, route.Pattern)
	}
	return nil
}

func validateClass(name string, cc ClassConfig) error {
	if cc.RatePerSecond < 0 {
		return fmt.Errorf("class %q: rate_per_second must not be negative", name)
	}
	if cc.RatePerSecond > 0 && cc.Burst < 1 {
		return fmt.Errorf("class %q: burst must be >= 1 when a rate is set", name)
	}
	if cc.Deadline <= 0 {
		return fmt.Errorf("class %q: deadline must be positive", name)
	}
	if cc.AttemptTimeout <= 0 {
		return fmt.Errorf("class %q: attempt_timeout must be positive", name)
	}
	if cc.AttemptTimeout >= cc.Deadline {
		return fmt.Errorf("class %q: attempt_timeout %s must be strictly less than deadline %s",
			name, cc.AttemptTimeout, cc.Deadline)
	}
	return nil
}
