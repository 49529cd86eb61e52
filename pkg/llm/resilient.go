package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/resilience"
)

// FallbackContent is the static payload returned when a resilience policy
// refuses to invoke the delegate.
const FallbackContent = `{"fallback":true,"reason":"service unavailable"}`

// FallbackResponse is the synthetic response surfaced when Complete cannot
// reach the delegate. Callers distinguish it from a real answer via
// IsFallback.
func FallbackResponse(reason string) Response {
	return Response{
		ID:    "fallback",
		Model: "none",
		Choices: []Choice{{
			Message:      Message{Role: "assistant", Content: FallbackContent},
			FinishReason: "fallback:" + reason,
		}},
	}
}

// IsFallback reports whether resp was synthesized by a resilience policy
// rather than returned by the real delegate.
func IsFallback(resp Response) bool {
	return resp.ID == "fallback"
}

// ResilientAiClientConfig tunes the policies composed around a delegate.
type ResilientAiClientConfig struct {
	MaxConcurrent  int
	PermitsPerSec  float64
	Burst          int
	CircuitBreaker resilience.CircuitBreakerConfig
	Retry          resilience.RetryConfig
}

// DefaultResilientAiClientConfig returns sane production defaults.
func DefaultResilientAiClientConfig() ResilientAiClientConfig {
	return ResilientAiClientConfig{
		MaxConcurrent:  8,
		PermitsPerSec:  5,
		Burst:          10,
		CircuitBreaker: resilience.DefaultCircuitBreakerConfig("llm"),
		Retry:          resilience.DefaultRetryConfig(),
	}
}

// ResilientAiClient wraps a raw AiClient with Bulkhead → RateLimiter →
// CircuitBreaker → Retry → delegate, outermost first.
type ResilientAiClient struct {
	delegate AiClient
	bulkhead *resilience.Bulkhead
	limiter  *resilience.RateLimiter
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
}

// NewResilientAiClient composes the given delegate with fresh policy
// instances built from cfg.
func NewResilientAiClient(delegate AiClient, cfg ResilientAiClientConfig) *ResilientAiClient {
	return &ResilientAiClient{
		delegate: delegate,
		bulkhead: resilience.NewBulkhead(cfg.MaxConcurrent),
		limiter:  resilience.NewRateLimiter(cfg.PermitsPerSec, cfg.Burst),
		breaker:  resilience.NewCircuitBreaker(cfg.CircuitBreaker),
		retry:    cfg.Retry,
	}
}

// Complete runs req through Bulkhead → RateLimiter → CircuitBreaker → Retry
// → delegate. Any policy refusal, and any delegate failure left after the
// retries, returns the synthetic FallbackResponse rather than an error.
// The one exception is resilience.ErrRateLimited from the delegate: it is
// not retried and is returned as an error.
func (c *ResilientAiClient) Complete(ctx context.Context, req Request) (Response, error) {
	release, ok := c.bulkhead.TryAcquire()
	if !ok {
		slog.Warn("llm bulkhead full, returning fallback", "model", req.Model)
		return FallbackResponse("bulkhead_full"), nil
	}
	defer release()

	if !c.limiter.Allow() {
		slog.Warn("llm rate limit exceeded, returning fallback", "model", req.Model)
		return FallbackResponse("rate_limited"), nil
	}

	if !c.breaker.Allow() {
		slog.Warn("llm circuit open, returning fallback", "model", req.Model)
		return FallbackResponse("circuit_open"), nil
	}

	var resp Response
	err := resilience.Do(ctx, c.retry, func() error {
		var callErr error
		resp, callErr = c.delegate.Complete(ctx, req)
		return callErr
	})

	if err != nil {
		if errors.Is(err, resilience.ErrRateLimited) {
			c.breaker.RecordFailure()
			return Response{}, err
		}
		c.breaker.RecordFailure()
		slog.Warn("llm call failed after retries, returning fallback", "model", req.Model, "error", err)
		return FallbackResponse("delegate_error"), nil
	}

	c.breaker.RecordSuccess()
	return resp, nil
}

// Stream applies Bulkhead + RateLimiter + CircuitBreaker only, at stream
// open. A failure after the first chunk is surfaced as a terminal chunk
// with FinishReason == "ERROR" rather than closing the channel silently.
func (c *ResilientAiClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	release, ok := c.bulkhead.TryAcquire()
	if !ok {
		return nil, resilience.ErrBulkheadFull
	}

	if !c.limiter.Allow() {
		release()
		return nil, errors.New("rate limit exceeded")
	}

	if !c.breaker.Allow() {
		release()
		return nil, errors.New("circuit open")
	}

	upstream, err := c.delegate.Stream(ctx, req)
	if err != nil {
		release()
		c.breaker.RecordFailure()
		return nil, err
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer release()

		sawChunk := false
		recorded := false
		for chunk := range upstream {
			sawChunk = true
			if chunk.Err != nil {
				if !recorded {
					c.breaker.RecordFailure()
					recorded = true
				}
				chunk.FinishReason = finishReasonError
				out <- chunk
				return
			}
			out <- chunk
		}
		if sawChunk && !recorded {
			c.breaker.RecordSuccess()
		}
	}()

	return out, nil
}

// Healthy reports the delegate's health without involving any policy —
// health checks are cheap and must not be blocked by the circuit breaker.
func (c *ResilientAiClient) Healthy(ctx context.Context) bool {
	return c.delegate.Healthy(ctx)
}
