// Package ratelimit implements per-client, per-route-class request limiting
// using the token bucket algorithm.
//
// Each (client, class) pair owns an independent bucket created lazily on
// first request. Bucket math is O(1) and never blocks: a request either
// consumes a token immediately or is denied with a retry-after hint. The
// keyed registry shards its bucket map to bound lock contention, and an
// external reaper evicts buckets idle beyond a TTL to bound memory.
package ratelimit
