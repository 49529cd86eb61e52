package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDelegate struct {
	calls     int64
	failTimes int
	response  Response
	err       error
}

func (f *fakeDelegate) Complete(ctx context.Context, req Request) (Response, error) {
	n := atomic.AddInt64(&f.calls, 1)
	if int(n) <= f.failTimes {
		return Response{}, errors.New("5xx from provider")
	}
	if f.err != nil {
		return Response{}, f.err
	}
	return f.response, nil
}

func (f *fakeDelegate) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDelegate) Healthy(ctx context.Context) bool { return true }

func TestResilientAiClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	delegate := &fakeDelegate{failTimes: 1000}
	cfg := DefaultResilientAiClientConfig()
	cfg.Retry = resilience.RetryConfig{MaxAttempts: 1}
	cfg.CircuitBreaker.VolumeThreshold = 5
	cfg.CircuitBreaker.ErrorThreshold = 0.5

	client := NewResilientAiClient(delegate, cfg)

	for i := 0; i < 5; i++ {
		resp, err := client.Complete(context.Background(), Request{})
		require.NoError(t, err)
		assert.True(t, IsFallback(resp))
	}

	callsBefore := atomic.LoadInt64(&delegate.calls)
	resp, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, IsFallback(resp))
	assert.Equal(t, callsBefore, atomic.LoadInt64(&delegate.calls), "circuit open: delegate must not be invoked again")
}

func TestResilientAiClient_SuccessPassesThrough(t *testing.T) {
	delegate := &fakeDelegate{response: Response{ID: "real", Choices: []Choice{{Message: Message{Content: "hi"}}}}}
	client := NewResilientAiClient(delegate, DefaultResilientAiClientConfig())

	resp, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.False(t, IsFallback(resp))
	assert.Equal(t, "hi", resp.Content())
}

func TestResilientAiClient_RateLimitedPropagatesNotRetried(t *testing.T) {
	delegate := &fakeDelegate{err: resilience.ErrRateLimited}
	cfg := DefaultResilientAiClientConfig()
	cfg.Retry = resilience.RetryConfig{MaxAttempts: 5}
	client := NewResilientAiClient(delegate, cfg)

	_, err := client.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrRateLimited)
	assert.Equal(t, int64(1), atomic.LoadInt64(&delegate.calls))
}

func TestResilientAiClient_BulkheadFull_ReturnsFallback(t *testing.T) {
	delegate := &fakeDelegate{response: Response{ID: "real"}}
	cfg := DefaultResilientAiClientConfig()
	cfg.MaxConcurrent = 1
	client := NewResilientAiClient(delegate, cfg)

	release, ok := client.bulkhead.TryAcquire()
	require.True(t, ok)
	defer release()

	resp, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, IsFallback(resp))
}
