package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token-bucket admission gate: Allow is a non-blocking
// check, used by both the Complete path and the stream-open path; Wait
// blocks (respecting ctx) until a token is available.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a limiter admitting permitsPerSecond tokens per
// second with the given burst capacity.
func NewRateLimiter(permitsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(permitsPerSecond), burst)}
}

// Allow reports whether a token is available right now, consuming it if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
