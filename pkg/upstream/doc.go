// Package upstream tracks backend worker pools and selects targets for
// proxied requests.
//
// A Target carries its health state, an in-flight connection counter, and
// a consecutive-failure count, all published through atomics so the
// balancer reads them without locking (a stale read for one probe tick is
// acceptable). A Pool is a named ordered set of targets; the Registry holds
// all pools behind an atomic pointer swapped whole on configuration reload.
//
// Selection is weighted least-connections: among Healthy targets the one
// with the lowest active/weight ratio wins, so a weight-2 target absorbs
// roughly twice the concurrent load of a weight-1 target before being
// deprioritized. Dead targets are excluded from selection but stay in the
// pool for recovery probing.
//
// The background Prober walks every target on a fixed interval issuing
// lightweight health checks: consecutive failures walk a target through
// Healthy, Suspected, Dead; a single success reinstates it.
package upstream
