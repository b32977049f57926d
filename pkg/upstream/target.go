package upstream

import (
	"sync/atomic"
)

// State is a target's health state.
type State int32

const (
	// Healthy targets are eligible for selection.
	Healthy State = iota

	// Suspected targets have failed recent probes but not enough to be
	// excluded; they remain eligible so a transient blip does not shed
	// their load.
	Suspected

	// Dead targets are excluded from selection and only receive recovery
	// probes.
	Dead
)

// String returns the state name for logs and /status.
func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Suspected:
		return "suspected"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Target is one upstream worker address. Connection counters are mutated
// by the balancer around the in-flight window of a proxied call; health
// state is mutated only by the prober. All fields shared across goroutines
// are atomics, read without locking on the request path.
type Target struct {
	// Address is the host:port the gateway dials (plain HTTP/1.1).
	Address string

	// Weight scales the effective load for least-connections selection.
	Weight int

	// MaxConnections caps concurrent proxied requests (0 = unlimited).
	MaxConnections int

	state    atomic.Int32
	active   atomic.Int64
	failures atomic.Int32

	// failThreshold is the consecutive-failure count at which the target
	// goes Dead.
	failThreshold int32
}

// NewTarget creates a Healthy target.
func NewTarget(address string, weight, maxConnections, failThreshold int) *Target {
	if weight < 1 {
		weight = 1
	}
	if failThreshold < 1 {
		failThreshold = 1
	}
	return &Target{
		Address:        address,
		Weight:         weight,
		MaxConnections: maxConnections,
		failThreshold:  int32(failThreshold),
	}
}

// State returns the current health state.
func (t *Target) State() State {
	return State(t.state.Load())
}

// Active returns the current in-flight request count.
func (t *Target) Active() int64 {
	return t.active.Load()
}

// Acquire reserves a connection slot, returning false when the target is at
// its MaxConnections cap. Callers that receive true must call Release when
// the proxied call finishes.
func (t *Target) Acquire() bool {
	n := t.active.Add(1)
	if t.MaxConnections > 0 && n > int64(t.MaxConnections) {
		t.active.Add(-1)
		return false
	}
	return true
}

// Release frees a connection slot reserved by Acquire.
func (t *Target) Release() {
	t.active.Add(-1)
}

// RecordProbeSuccess marks a successful health check. One success fully
// reinstates the target regardless of prior failures.
func (t *Target) RecordProbeSuccess() {
	t.failures.Store(0)
	t.state.Store(int32(Healthy))
}

// RecordProbeFailure marks a failed health check and advances the state:
// failures below the threshold leave the target Suspected, reaching the
// threshold makes it Dead.
func (t *Target) RecordProbeFailure() {
	n := t.failures.Add(1)
	if n >= t.failThreshold {
		t.state.Store(int32(Dead))
	} else {
		t.state.Store(int32(Suspected))
	}
}

// score is the load ratio used by least-connections selection.
func (t *Target) score() float64 {
	return float64(t.active.Load()) / float64(t.Weight)
}
