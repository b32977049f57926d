// Package metrics exposes the gateway's Prometheus metrics.
//
// A Collector owns a private registry and per-concern metric groups
// (requests, cache, upstream, rate limiting). Components record through
// typed methods rather than touching metric vectors directly, which keeps
// label cardinality under the collector's control.
package metrics
