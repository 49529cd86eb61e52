// Package httpstep issues one HTTP request per Step, evaluates its
// assertions, and extracts chained values. It never returns a Go error for
// request failures — every failure mode is represented as a field on the
// returned StepResult.
package httpstep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/assertion"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/execctx"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// DefaultMaxResponseBodyBytes is the response-size ceiling: bodies larger
// than this fail the step rather than being buffered in full.
const DefaultMaxResponseBodyBytes = 16 * 1024 * 1024

// Executor dispatches Steps over HTTP.
type Executor struct {
	httpClient           *http.Client
	maxResponseBodyBytes int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the underlying *http.Client (for tests).
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.httpClient = c }
}

// WithMaxResponseBodyBytes overrides the response-size ceiling.
func WithMaxResponseBodyBytes(n int64) Option {
	return func(e *Executor) { e.maxResponseBodyBytes = n }
}

// New creates an Executor. Per-step timeouts are applied by Execute, not by
// the shared http.Client's own Timeout field, so the client itself carries
// no default timeout.
func New(opts ...Option) *Executor {
	e := &Executor{
		httpClient:           &http.Client{},
		maxResponseBodyBytes: DefaultMaxResponseBodyBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute dispatches one Step against baseURL, resolving placeholders from
// ctx first, then evaluates assertions and computes extractions. Total wall
// time (including the single dispatch — this component does not retry) is
// bounded by step.TimeoutMs.
func (e *Executor) Execute(parent context.Context, runID models.RunID, step models.Step, baseURL string, ctx *execctx.ExecutionContext) models.StepResult {
	start := time.Now()

	url := baseURL + ctx.Resolve(step.Endpoint)

	var bodyReader io.Reader
	if step.Body != nil {
		resolved := ctx.Resolve(*step.Body)
		bodyReader = bytes.NewBufferString(resolved)
	}

	timeout := time.Duration(step.TimeoutMs) * time.Millisecond
	reqCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, string(step.Method), url, bodyReader)
	if err != nil {
		return errorResult(runID, step, time.Since(start), fmt.Sprintf("failed to build request: %v", err))
	}
	for _, h := range step.Headers {
		req.Header.Set(h.Name, ctx.Resolve(h.Value))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return timeoutResult(runID, step, start, step.TimeoutMs)
		}
		return errorResult(runID, step, time.Since(start), classifyTransportError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, e.maxResponseBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return timeoutResult(runID, step, start, step.TimeoutMs)
		}
		return errorResult(runID, step, time.Since(start), fmt.Sprintf("failed to read response body: %v", err))
	}
	if int64(len(body)) > e.maxResponseBodyBytes {
		return errorResult(runID, step, time.Since(start), "response body exceeds limit")
	}

	actualHeaders := flattenHeaders(resp.Header)
	assertions := assertion.Evaluate(step.Expected, assertion.Response{
		Status:  resp.StatusCode,
		Headers: requestHeadersSnapshot(req),
		Body:    body,
	})

	extracted := extractValues(step.Extractions, body)

	status := resp.StatusCode
	bodyStr := string(body)
	return models.NewStepResult(
		runID, step.Index, step.Name,
		&status, actualHeaders, &bodyStr,
		assertions, extracted, nil,
		time.Since(start).Milliseconds(), start,
	)
}

// requestHeadersSnapshot returns the (already-resolved) headers actually
// sent, for header assertions — ExpectedResult.Headers checks what was
// dispatched, not the target's response headers.
func requestHeadersSnapshot(req *http.Request) map[string]string {
	out := make(map[string]string, len(req.Header))
	for k, v := range req.Header {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func extractValues(extractions map[string]string, body []byte) map[string]string {
	if len(extractions) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}
	out := make(map[string]string, len(extractions))
	for name, path := range extractions {
		if v, ok := assertion.ExtractString(doc, path); ok {
			out[name] = v
		}
	}
	return out
}

func timeoutResult(runID models.RunID, step models.Step, start time.Time, timeoutMs int) models.StepResult {
	msg := fmt.Sprintf("Request timed out after %dms", timeoutMs)
	return models.NewStepResult(
		runID, step.Index, step.Name,
		nil, nil, nil, nil, nil, &msg,
		time.Since(start).Milliseconds(), start,
	)
}

func errorResult(runID models.RunID, step models.Step, elapsed time.Duration, msg string) models.StepResult {
	return models.NewStepResult(
		runID, step.Index, step.Name,
		nil, nil, nil, nil, nil, &msg,
		elapsed.Milliseconds(), time.Now().Add(-elapsed),
	)
}

// classifyTransportError renders a transport-level failure (DNS, connect,
// TLS) as a short error-class message.
func classifyTransportError(err error) string {
	var urlErr interface {
		Unwrap() error
	}
	if errors.As(err, &urlErr) {
		if inner := urlErr.Unwrap(); inner != nil {
			return inner.Error()
		}
	}
	return err.Error()
}
