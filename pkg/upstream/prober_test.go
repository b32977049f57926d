package upstream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"kestrel-hq/kestrel/pkg/config"
)

func proberConfig(interval time.Duration) config.HealthCheckConfig {
	return config.HealthCheckConfig{
		Interval:      interval,
		Timeout:       interval / 2,
		Path:          "/health",
		FailThreshold: 3,
	}
}

func registryFor(t *testing.T, addresses ...string) *Registry {
	t.Helper()
	targets := make([]config.TargetConfig, 0, len(addresses))
	for _, addr := range addresses {
		targets = append(targets, config.TargetConfig{Address: addr, Weight: 1})
	}
	cfg := &config.Config{
		Pools:       map[string]config.PoolConfig{"workers": {Targets: targets}},
		HealthCheck: proberConfig(50 * time.Millisecond),
	}
	return NewRegistry(cfg)
}

func hostPort(t *testing.T, url string) string {
	t.Helper()
	return strings.TrimPrefix(url, "http://")
}

func TestProberMarksFailingTargetDead(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(false)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer backend.Close()

	registry := registryFor(t, hostPort(t, backend.URL))
	prober := NewProber(registry, proberConfig(20*time.Millisecond))
	prober.Start()
	defer prober.Stop()

	pool, _ := registry.Lookup("workers")
	target := pool.Targets[0]

	// Three consecutive failed probes must mark the target Dead.
	deadline := time.Now().Add(2 * time.Second)
	for target.State() != Dead {
		if time.Now().After(deadline) {
			t.Fatalf("target never went Dead, state = %s", target.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// One successful probe reinstates it.
	healthy.Store(true)
	deadline = time.Now().Add(2 * time.Second)
	for target.State() != Healthy {
		if time.Now().After(deadline) {
			t.Fatalf("target never recovered, state = %s", target.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProberUnreachableTarget(t *testing.T) {
	// A port nothing listens on: connection refused on every probe.
	registry := registryFor(t, "127.0.0.1:1")
	prober := NewProber(registry, proberConfig(20*time.Millisecond))
	prober.Start()
	defer prober.Stop()

	pool, _ := registry.Lookup("workers")
	target := pool.Targets[0]

	deadline := time.Now().Add(2 * time.Second)
	for target.State() != Dead {
		if time.Now().After(deadline) {
			t.Fatalf("unreachable target never went Dead, state = %s", target.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProberTransitionObserver(t *testing.T) {
	registry := registryFor(t, "127.0.0.1:1")
	prober := NewProber(registry, proberConfig(20*time.Millisecond))

	var transitions atomic.Int64
	prober.OnTransition(func(pool, address string, from, to State) {
		transitions.Add(1)
	})
	prober.Start()
	defer prober.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for transitions.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("transition observer never fired")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
