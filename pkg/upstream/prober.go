package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kestrel-hq/kestrel/pkg/config"
)

// Prober issues periodic lightweight health checks against every target in
// every pool. It runs on its own timer, independent of request traffic, and
// publishes results through the targets' atomic state so the balancer never
// waits on it.
type Prober struct {
	registry *Registry
	client   *http.Client
	interval time.Duration
	path     string

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	// onTransition, when set, observes state changes for metrics.
	onTransition func(pool, address string, from, to State)
}

// NewProber creates a prober from health-check configuration.
func NewProber(registry *Registry, cfg config.HealthCheckConfig) *Prober {
	return &Prober{
		registry: registry,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// Probes must observe real connection health, not ride an
			// existing pooled connection.
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		interval: cfg.Interval,
		path:     cfg.Path,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// OnTransition registers a state-change observer. Must be called before
// Start.
func (p *Prober) OnTransition(fn func(pool, address string, from, to State)) {
	p.onTransition = fn
}

// Start launches the probe loop in a background goroutine.
func (p *Prober) Start() {
	go p.loop()
}

// Stop terminates the probe loop and waits for it to exit.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

func (p *Prober) loop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Probe once at startup so a dead backend is noticed before the first
	// full interval elapses.
	p.probeAll()

	for {
		select {
		case <-ticker.C:
			p.probeAll()
		case <-p.stopCh:
			return
		}
	}
}

// probeAll probes every target of every pool in the current registry
// snapshot. Targets are probed concurrently; the round is bounded by the
// per-probe client timeout.
func (p *Prober) probeAll() {
	var wg sync.WaitGroup
	for _, pool := range p.registry.Pools() {
		for _, target := range pool.Targets {
			wg.Add(1)
			go func(pool *Pool, target *Target) {
				defer wg.Done()
				p.probe(pool, target)
			}(pool, target)
		}
	}
	wg.Wait()
}

func (p *Prober) probe(pool *Pool, target *Target) {
	before := target.State()

	if err := p.check(target); err != nil {
		target.RecordProbeFailure()
		if after := target.State(); after != before {
			slog.Warn("upstream target state changed",
				"pool", pool.Name,
				"target", target.Address,
				"from", before.String(),
				"to", after.String(),
				"error", err,
			)
			if p.onTransition != nil {
				p.onTransition(pool.Name, target.Address, before, after)
			}
		}
		return
	}

	target.RecordProbeSuccess()
	if after := target.State(); after != before {
		slog.Info("upstream target recovered",
			"pool", pool.Name,
			"target", target.Address,
			"from", before.String(),
		)
		if p.onTransition != nil {
			p.onTransition(pool.Name, target.Address, before, after)
		}
	}
}

// check issues one probe request. Any transport error or 5xx status counts
// as a failure; 2xx-4xx means the worker is up and serving.
func (p *Prober) check(target *Target) error {
	url := "http://" + target.Address + p.path
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe returned %d", resp.StatusCode)
	}
	return nil
}
