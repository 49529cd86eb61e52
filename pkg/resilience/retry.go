package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRateLimited is the sentinel a delegate returns for a rate-limit
// response; Do treats it as non-retryable and propagates it immediately.
var ErrRateLimited = errors.New("AI_RATE_LIMITED")

// RetryConfig bounds the exponential backoff schedule.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig is a conservative three-attempt backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// Do runs fn under bounded exponential backoff. fn must return
// ErrRateLimited (wrapped or not) to signal a non-retryable failure; any
// other error is retried up to cfg.MaxAttempts.
func Do(ctx context.Context, cfg RetryConfig, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval
	policy.Multiplier = cfg.Multiplier
	policy.MaxElapsedTime = 0 // bounded by attempt count, not elapsed time

	attempts := 0
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	wrapped := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRateLimited) {
			return backoff.Permanent(err)
		}
		if attempts >= maxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(policy, ctx)
	return backoff.Retry(wrapped, bo)
}
