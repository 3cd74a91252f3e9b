package auth

import (
	"sync"
	"time"

	"github.com/yourusername/korasign/internal/perr"
)

// bucket is a single client identity's token bucket: tokens refill at
// ratePerSecond, capped at burst, consumed one per request.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// RateLimiter is a token-bucket limiter keyed by client identity (the
// JSON-RPC handler passes the whole x-api-key header value, or the remote IP
// when no key is sent), adapted from the teacher's sliding-window
// RateLimiter into a true token bucket — burst capacity plus a steady
// refill rate — per spec §5's explicit "token-bucket" requirement.
type RateLimiter struct {
	mu            sync.Mutex
	buckets       map[string]*bucket
	ratePerSecond float64
	burst         float64
}

func NewRateLimiter(ratePerSecond int, burst int) *RateLimiter {
	if burst <= 0 {
		burst = ratePerSecond
	}
	return &RateLimiter{
		buckets:       make(map[string]*bucket),
		ratePerSecond: float64(ratePerSecond),
		burst:         float64(burst),
	}
}

// Allow reports whether identity may proceed now, consuming one token if
// so. Returns RateLimited when the bucket is empty.
func (r *RateLimiter) Allow(identity string) error {
	b := r.bucketFor(identity)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = minFloat(r.burst, b.tokens+elapsed*r.ratePerSecond)
	b.lastRefill = now

	if b.tokens < 1 {
		return perr.New(perr.RateLimited, perr.Retryable, "rate limit exceeded for "+identity, nil)
	}
	b.tokens--
	return nil
}

func (r *RateLimiter) bucketFor(identity string) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[identity]
	if !ok {
		b = &bucket{tokens: r.burst, lastRefill: time.Now()}
		r.buckets[identity] = b
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
