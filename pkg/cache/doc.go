// Package cache implements the shared response cache for cacheable routes.
//
// Entries are keyed by a normalized request fingerprint (method, path,
// sorted query, selected Vary headers) and carry two lifetimes: a
// freshness TTL and a longer stale window. A hit past the TTL but inside
// the stale window is served immediately while at most one background
// refresh runs (stale-while-revalidate); a hit past the stale window is a
// miss and the entry is evicted.
//
// Concurrent misses for the same key are collapsed into a single upstream
// fetch via singleflight: late arrivals block on the first call's result
// instead of issuing duplicate upstream requests. A cancelled waiter does
// not cancel the shared fetch; it completes for the remaining waiters.
//
// The entry map is sharded with a lock per shard to bound contention.
// Eviction is TTL-based via a scheduled sweep, with an optional max-entries
// bound enforced oldest-first at insert time.
package cache
