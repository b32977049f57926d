package upstream

import (
	"fmt"
	"sort"
	"sync/atomic"

	"kestrel-hq/kestrel/pkg/config"
)

// Registry owns the pool set. The set is held behind an atomic pointer and
// rebuilt whole on configuration reload: readers on the request path load
// the current snapshot without locking, and targets from the old snapshot
// drain naturally as their in-flight requests complete.
type Registry struct {
	pools atomic.Pointer[map[string]*Pool]
}

// NewRegistry builds a registry from the pool configuration.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{}
	r.Rebuild(cfg)
	return r
}

// Rebuild replaces the pool set from a new configuration snapshot. Health
// state starts fresh (all targets Healthy); the prober converges it within
// a few intervals.
func (r *Registry) Rebuild(cfg *config.Config) {
	pools := make(map[string]*Pool, len(cfg.Pools))
	for name, pc := range cfg.Pools {
		pool := &Pool{Name: name, Targets: make([]*Target, 0, len(pc.Targets))}
		for _, tc := range pc.Targets {
			pool.Targets = append(pool.Targets, NewTarget(
				tc.Address, tc.Weight, tc.MaxConnections, cfg.HealthCheck.FailThreshold,
			))
		}
		pools[name] = pool
	}
	r.pools.Store(&pools)
}

// Lookup returns the named pool from the current snapshot.
func (r *Registry) Lookup(name string) (*Pool, error) {
	pools := *r.pools.Load()
	pool, ok := pools[name]
	if !ok {
		return nil, fmt.Errorf("unknown upstream pool %q", name)
	}
	return pool, nil
}

// Pools returns the current snapshot's pools in name order, for /status
// reporting and the prober's walk.
func (r *Registry) Pools() []*Pool {
	pools := *r.pools.Load()
	names := make([]string, 0, len(pools))
	for name := range pools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Pool, 0, len(pools))
	for _, name := range names {
		out = append(out, pools[name])
	}
	return out
}
