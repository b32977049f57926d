package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements the token bucket rate limiting algorithm.
//
// The bucket allows bursts up to the capacity while maintaining an average
// rate over time. Tokens accrue at a constant refill rate; each request
// consumes one token. If no whole token is available the request is
// rejected together with the time until one will be.
//
// Tokens are tracked as a float64 so that refill accrues smoothly between
// requests and the retry-after calculation is exact:
//
//	retryAfter = (1 - tokens) / refillRate
//
// This implementation uses monotonic time (time.Time arithmetic) to avoid
// clock skew issues.
//
// # Thread Safety
//
// TokenBucket is thread-safe using sync.Mutex for all operations.
type TokenBucket struct {
	capacity   float64   // Maximum tokens in bucket (burst size)
	tokens     float64   // Current available tokens
	refillRate float64   // Tokens added per second
	lastRefill time.Time // Last time tokens were refilled
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter.
//
// Parameters:
//   - capacity: Maximum number of tokens in the bucket (burst size)
//   - refillRate: Number of tokens added per second (average rate)
func NewTokenBucket(capacity int64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity), // Start with full bucket
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Take attempts to consume one token from the bucket.
//
// Returns (true, 0) if a token was available and consumed. Returns
// (false, retryAfter) otherwise, where retryAfter is how long until one
// token accrues.
func (tb *TokenBucket) Take() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(time.Now())

	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}

	secondsNeeded := (1 - tb.tokens) / tb.refillRate
	return false, time.Duration(secondsNeeded * float64(time.Second))
}

// takeAt is Take with an explicit clock, used by tests to exercise refill
// behavior deterministically.
func (tb *TokenBucket) takeAt(now time.Time) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(now)

	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}

	secondsNeeded := (1 - tb.tokens) / tb.refillRate
	return false, time.Duration(secondsNeeded * float64(time.Second))
}

// Remaining returns the number of whole tokens currently available.
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(time.Now())
	return int64(tb.tokens)
}

// Capacity returns the maximum bucket capacity.
func (tb *TokenBucket) Capacity() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return int64(tb.capacity)
}

// Reset resets the bucket to full capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refillLocked adds tokens accrued since the last refill, capped at
// capacity. Caller must hold the lock. The token count is invariant in
// [0, capacity].
func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed.Seconds() * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
