package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
}

// TokenBucket paces API calls with a token bucket. One instance is shared by
// every worker talking to the platform.
type TokenBucket struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewTokenBucket allows requestsPerMinute calls per minute with the given burst
func NewTokenBucket(requestsPerMinute, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(perMinute(requestsPerMinute), burst),
	}
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.limiter.Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.limiter.Wait(ctx)
}

// UpdateLimits changes the pace at runtime
func (tb *TokenBucket) UpdateLimits(requestsPerMinute, burst int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter.SetLimit(perMinute(requestsPerMinute))
	if burst > 0 {
		tb.limiter.SetBurst(burst)
	}
}

// Unlimited never blocks. Tests and offline commands use it.
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
