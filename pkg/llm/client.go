// Package llm implements the raw AiClient wire format and the
// ResilientAiClient that wraps it with bulkhead, rate limiter, circuit
// breaker, retry, and fallback policies.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/resilience"
)

// Message is one chat-style turn in a Request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat names the response encoding a caller is asking for.
type ResponseFormat string

const (
	ResponseFormatText ResponseFormat = "text"
	ResponseFormatJSON ResponseFormat = "json"
)

// Request is the wire shape sent to the provider.
type Request struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Stream         bool           `json:"stream"`
	ResponseFormat ResponseFormat `json:"response_format,omitempty"`
}

// Choice is one completion candidate.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the wire shape returned by the provider.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Content returns the first choice's message content, or "" if absent.
func (r Response) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// StreamChunk is one frame of a streamed completion.
type StreamChunk struct {
	Content      string
	FinishReason string
	Err          error
}

const finishReasonError = "ERROR"

// AiClient is the raw (unprotected) LLM delegate.
type AiClient interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
	Healthy(ctx context.Context) bool
}

// HTTPClient is an AiClient implementation speaking the JSON completion
// wire format over a single HTTP endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	model      string
}

// NewHTTPClient builds an HTTPClient posting completions to baseURL +
// "/v1/chat/completions". apiKey, when non-empty, is sent as a bearer token
// on every request.
func NewHTTPClient(baseURL, apiKey, model string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, httpClient: httpClient, model: model}
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (Response, error) {
	req.Stream = false
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("dispatch request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, resilience.ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return Response{}, fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("provider rejected request: status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	req.Stream = true
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch request: %w", err)
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			var chunkResp Response
			if err := json.Unmarshal([]byte(payload), &chunkResp); err != nil {
				out <- StreamChunk{Err: fmt.Errorf("decode stream chunk: %w", err), FinishReason: finishReasonError}
				return
			}
			chunk := StreamChunk{Content: chunkResp.Content()}
			if len(chunkResp.Choices) > 0 {
				chunk.FinishReason = chunkResp.Choices[0].FinishReason
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- StreamChunk{Err: err, FinishReason: finishReasonError}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func (c *HTTPClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
