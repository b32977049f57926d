package upstream

import (
	"testing"
	"time"

	"kestrel-hq/kestrel/pkg/config"
)

func registryConfig() *config.Config {
	return &config.Config{
		Pools: map[string]config.PoolConfig{
			"workers": {Targets: []config.TargetConfig{
				{Address: "127.0.0.1:9001", Weight: 1},
				{Address: "127.0.0.1:9002", Weight: 2, MaxConnections: 8},
			}},
			"upload-workers": {Targets: []config.TargetConfig{
				{Address: "127.0.0.1:9003", Weight: 1},
			}},
		},
		HealthCheck: config.HealthCheckConfig{
			Interval:      10 * time.Second,
			Timeout:       5 * time.Second,
			Path:          "/health",
			FailThreshold: 3,
		},
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(registryConfig())

	pool, err := registry.Lookup("workers")
	if err != nil {
		t.Fatalf("Lookup(workers) failed: %v", err)
	}
	if len(pool.Targets) != 2 {
		t.Errorf("workers pool has %d targets, want 2", len(pool.Targets))
	}
	if pool.Targets[1].Weight != 2 || pool.Targets[1].MaxConnections != 8 {
		t.Error("target settings were not carried from configuration")
	}

	if _, err := registry.Lookup("missing"); err == nil {
		t.Error("Lookup of unknown pool should fail")
	}
}

func TestRegistryRebuildSwapsSnapshot(t *testing.T) {
	cfg := registryConfig()
	registry := NewRegistry(cfg)

	oldPool, _ := registry.Lookup("workers")
	oldTarget := oldPool.Targets[0]
	oldTarget.Acquire() // in-flight request riding the old snapshot

	// Reload with a target removed.
	cfg.Pools["workers"] = config.PoolConfig{
		Targets: []config.TargetConfig{{Address: "127.0.0.1:9005", Weight: 1}},
	}
	registry.Rebuild(cfg)

	newPool, err := registry.Lookup("workers")
	if err != nil {
		t.Fatal(err)
	}
	if len(newPool.Targets) != 1 || newPool.Targets[0].Address != "127.0.0.1:9005" {
		t.Error("Rebuild did not install the new pool membership")
	}

	// The old target still drains independently of the new snapshot.
	if oldTarget.Active() != 1 {
		t.Error("in-flight count on the old snapshot's target was disturbed")
	}
	oldTarget.Release()
}

func TestRegistryPoolsOrdered(t *testing.T) {
	registry := NewRegistry(registryConfig())

	pools := registry.Pools()
	if len(pools) != 2 {
		t.Fatalf("Pools() returned %d pools, want 2", len(pools))
	}
	if pools[0].Name != "upload-workers" || pools[1].Name != "workers" {
		t.Errorf("Pools() not in name order: %s, %s", pools[0].Name, pools[1].Name)
	}
}
