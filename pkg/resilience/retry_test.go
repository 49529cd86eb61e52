package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("permanent failure")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_RateLimitedNeverRetries(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return ErrRateLimited
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, attempts, "rate-limited errors must not be retried")
}
