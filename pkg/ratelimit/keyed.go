package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"

	"kestrel-hq/kestrel/pkg/config"
)

// Decision is the outcome of a limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is how long the client should wait before retrying.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Keyed is a registry of token buckets keyed by (client, route class).
// Buckets are created lazily on first request and evicted by ReapIdle once
// untouched for longer than the idle TTL.
//
// The key space is sharded so that concurrent requests from different
// clients contend on different locks; bucket math itself is guarded by the
// bucket's own mutex.
type Keyed struct {
	shards []*bucketShard
}

type bucketShard struct {
	mu      sync.RWMutex
	buckets map[string]*bucketEntry
}

type bucketEntry struct {
	bucket *TokenBucket

	// lastAccess is guarded by the shard lock (updated under RLock is a
	// benign race tolerated for reap accuracy; we update under full lock
	// only on create). Stored as unix nanos.
	mu         sync.Mutex
	lastAccess time.Time
}

// NewKeyed creates a keyed limiter with the given shard count.
func NewKeyed(shards int) *Keyed {
	if shards < 1 {
		shards = 1
	}
	k := &Keyed{shards: make([]*bucketShard, shards)}
	for i := range k.shards {
		k.shards[i] = &bucketShard{buckets: make(map[string]*bucketEntry)}
	}
	return k
}

// Allow checks the bucket for key under the class parameters cc, consuming
// one token when available. A class with a zero rate is unlimited.
//
// The check never blocks waiting for tokens: denial is immediate, and the
// returned Decision carries the retry-after hint surfaced to the client as
// a Retry-After header on the 429 response.
func (k *Keyed) Allow(key string, cc config.ClassConfig) Decision {
	if cc.RatePerSecond <= 0 {
		return Decision{Allowed: true}
	}

	entry := k.entry(key, cc)

	entry.mu.Lock()
	entry.lastAccess = time.Now()
	entry.mu.Unlock()

	ok, retryAfter := entry.bucket.Take()
	return Decision{Allowed: ok, RetryAfter: retryAfter}
}

// entry returns the bucket entry for key, creating it if absent.
func (k *Keyed) entry(key string, cc config.ClassConfig) *bucketEntry {
	shard := k.shard(key)

	shard.mu.RLock()
	entry, ok := shard.buckets[key]
	shard.mu.RUnlock()
	if ok {
		return entry
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if entry, ok = shard.buckets[key]; ok {
		return entry
	}
	entry = &bucketEntry{
		bucket:     NewTokenBucket(cc.Burst, cc.RatePerSecond),
		lastAccess: time.Now(),
	}
	shard.buckets[key] = entry
	return entry
}

func (k *Keyed) shard(key string) *bucketShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return k.shards[h.Sum32()%uint32(len(k.shards))]
}

// ReapIdle evicts buckets untouched for longer than idleTTL and returns the
// number evicted. It is run on a schedule by the maintenance scheduler to
// bound memory for one-shot clients.
func (k *Keyed) ReapIdle(idleTTL time.Duration) int {
	cutoff := time.Now().Add(-idleTTL)
	reaped := 0

	for _, shard := range k.shards {
		shard.mu.Lock()
		for key, entry := range shard.buckets {
			entry.mu.Lock()
			idle := entry.lastAccess.Before(cutoff)
			entry.mu.Unlock()
			if idle {
				delete(shard.buckets, key)
				reaped++
			}
		}
		shard.mu.Unlock()
	}

	return reaped
}

// Clear drops all buckets. Called after a configuration swap so buckets are
// rebuilt with the new class parameters on next use.
func (k *Keyed) Clear() {
	for _, shard := range k.shards {
		shard.mu.Lock()
		shard.buckets = make(map[string]*bucketEntry)
		shard.mu.Unlock()
	}
}

// Len returns the number of live buckets across all shards.
func (k *Keyed) Len() int {
	n := 0
	for _, shard := range k.shards {
		shard.mu.RLock()
		n += len(shard.buckets)
		shard.mu.RUnlock()
	}
	return n
}
