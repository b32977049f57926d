package cache

import (
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Status values surfaced to clients in the X-Cache-Status header.
const (
	StatusHit    = "HIT"
	StatusMiss   = "MISS"
	StatusStale  = "STALE"
	StatusBypass = "BYPASS"
)

// Entry is a stored response. Entries are immutable once stored; a refresh
// replaces the entry rather than mutating it.
type Entry struct {
	// StatusCode is the upstream response status.
	StatusCode int

	// Header is the stored response header set.
	Header http.Header

	// Payload is the response body.
	Payload []byte

	// CreatedAt is when the entry was stored.
	CreatedAt time.Time

	// FreshUntil is the freshness deadline (TTL boundary).
	FreshUntil time.Time

	// StaleUntil is the serve-stale deadline. Past it the entry is gone.
	StaleUntil time.Time
}

// Lookup is the result of a cache Get.
type Lookup struct {
	Entry *Entry

	// Stale is true when the entry is past its TTL but inside the stale
	// window; the caller serves it and triggers a background refresh.
	Stale bool
}

// Store is the sharded response cache.
type Store struct {
	shards     []*shard
	staleExtra time.Duration
	maxEntries int // per store; enforced per shard as maxEntries/len(shards)

	// flight collapses concurrent fetches per key.
	flight singleflight.Group

	hits      func(stale bool)
	misses    func()
	evictions func(n int)
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Options configures a Store.
type Options struct {
	// Shards is the lock-shard count (minimum 1).
	Shards int

	// StaleWindow is how long past its TTL an entry may be served stale.
	StaleWindow time.Duration

	// MaxEntries bounds stored entries across all shards; zero disables
	// the bound. When a shard is full the oldest entry in that shard is
	// evicted to make room.
	MaxEntries int
}

// New creates a response cache store.
func New(opts Options) *Store {
	if opts.Shards < 1 {
		opts.Shards = 1
	}
	s := &Store{
		shards:     make([]*shard, opts.Shards),
		staleExtra: opts.StaleWindow,
		maxEntries: opts.MaxEntries,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*Entry)}
	}
	return s
}

// SetObservers installs metric hooks. Nil hooks are allowed.
func (s *Store) SetObservers(hit func(stale bool), miss func(), evict func(n int)) {
	s.hits, s.misses, s.evictions = hit, miss, evict
}

// Get looks up key. A fresh entry returns (Lookup{Stale: false}, true); an
// entry inside its stale window returns (Lookup{Stale: true}, true); an
// absent or fully expired entry returns (Lookup{}, false) and expired
// entries are evicted on the spot.
func (s *Store) Get(key string) (Lookup, bool) {
	sh := s.shard(key)
	now := time.Now()

	sh.mu.RLock()
	entry, ok := sh.entries[key]
	sh.mu.RUnlock()

	if !ok {
		if s.misses != nil {
			s.misses()
		}
		return Lookup{}, false
	}

	if now.After(entry.StaleUntil) {
		sh.mu.Lock()
		// Re-check under the write lock; a refresh may have replaced it.
		if cur, ok := sh.entries[key]; ok && now.After(cur.StaleUntil) {
			delete(sh.entries, key)
		}
		sh.mu.Unlock()
		if s.misses != nil {
			s.misses()
		}
		return Lookup{}, false
	}

	stale := now.After(entry.FreshUntil)
	if s.hits != nil {
		s.hits(stale)
	}
	return Lookup{Entry: entry, Stale: stale}, true
}

// Put stores a response under key with the given freshness TTL. The stale
// window configured at construction extends the entry's total lifetime.
// The header map is copied so callers may reuse theirs.
func (s *Store) Put(key string, statusCode int, header http.Header, payload []byte, ttl time.Duration) {
	now := time.Now()
	entry := &Entry{
		StatusCode: statusCode,
		Header:     cloneHeader(header),
		Payload:    payload,
		CreatedAt:  now,
		FreshUntil: now.Add(ttl),
		StaleUntil: now.Add(ttl + s.staleExtra),
	}

	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s.maxEntries > 0 {
		budget := s.maxEntries / len(s.shards)
		if budget < 1 {
			budget = 1
		}
		if _, exists := sh.entries[key]; !exists && len(sh.entries) >= budget {
			sh.evictOldestLocked()
			if s.evictions != nil {
				s.evictions(1)
			}
		}
	}

	sh.entries[key] = entry
}

// Delete removes key if present.
func (s *Store) Delete(key string) {
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
}

// Fetch collapses concurrent fetches for key into one call to fn. Every
// caller receives the same result. fn runs exactly once per in-flight
// window regardless of how many requests arrive while it runs.
//
// fn must not depend on any single caller's context: the pipeline hands it
// a detached context so one client disconnecting does not abort the fetch
// the remaining waiters share.
func (s *Store) Fetch(key string, fn func() (*Entry, error)) (*Entry, error) {
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// TryBeginRefresh starts a background refresh for key unless one is
// already in flight, in which case the call joins it and returns. Stale
// serving uses this so a burst of stale hits triggers exactly one upstream
// refresh.
func (s *Store) TryBeginRefresh(key string, fn func() (*Entry, error)) {
	// DoChan returns immediately; the shared flight ensures at most one
	// refresh per key. The result channel is drained in a goroutine to
	// avoid leaking it; the refreshed entry lands in the store via fn.
	ch := s.flight.DoChan(key, func() (any, error) {
		return fn()
	})
	go func() { <-ch }()
}

// Sweep evicts all fully expired entries and returns the count. Run on a
// schedule by the maintenance scheduler.
func (s *Store) Sweep() int {
	now := time.Now()
	evicted := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if now.After(entry.StaleUntil) {
				delete(sh.entries, key)
				evicted++
			}
		}
		sh.mu.Unlock()
	}

	if evicted > 0 && s.evictions != nil {
		s.evictions(evicted)
	}
	return evicted
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Purge drops all entries. Called on configuration swap, where route TTLs
// and vary rules may have changed under stored entries.
func (s *Store) Purge() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]*Entry)
		sh.mu.Unlock()
	}
}

func (s *Store) shard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// evictOldestLocked removes the entry with the oldest CreatedAt. Caller
// holds the shard write lock.
func (sh *shard) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time

	for key, entry := range sh.entries {
		if oldestKey == "" || entry.CreatedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(sh.entries, oldestKey)
	}
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}
