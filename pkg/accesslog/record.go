package accesslog

import (
	"context"
	"time"
)

// Record is one completed request.
type Record struct {
	// ID is the request ID assigned at ingress.
	ID string

	// Time is when the request started.
	Time time.Time

	Method   string
	Path     string
	ClientIP string

	// Class is the route class the request was classified into.
	Class string

	// Pool is the upstream pool that served the request. Empty for
	// requests answered locally (rate limited, cache hit).
	Pool string

	// Target is the upstream target address. Empty when no attempt ran.
	Target string

	// Status is the client-facing HTTP status.
	Status int

	// CacheStatus is HIT, MISS, STALE, or BYPASS. Empty when the cache is
	// disabled.
	CacheStatus string

	// Attempts is the number of upstream attempts made.
	Attempts int

	// Duration is the total request wall time.
	Duration time.Duration

	// BytesOut is the response body size written to the client.
	BytesOut int64
}

// Backend persists records.
type Backend interface {
	// Insert stores one record.
	Insert(ctx context.Context, rec Record) error

	// Prune deletes records older than the cutoff and returns the count
	// removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}
