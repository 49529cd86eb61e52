package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/ports"
)

// DefaultSendTimeout bounds a single HTTP delivery attempt.
const DefaultSendTimeout = 10 * time.Second

// SendResult captures one delivery attempt's observable outcome.
type SendResult struct {
	StatusCode int
	Body       string
	Err        error
}

// Succeeded reports whether the attempt counts as a successful delivery:
// any 2xx response with no transport error.
func (r SendResult) Succeeded() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPSender delivers SLACK and GENERIC webhooks over plain HTTP POST,
// signing the body with the config's secret when present.
type HTTPSender struct {
	Client *http.Client
}

// NewHTTPSender builds an HTTPSender with DefaultSendTimeout.
func NewHTTPSender() *HTTPSender {
	return &HTTPSender{Client: &http.Client{Timeout: DefaultSendTimeout}}
}

// Send posts payload to cfg.URL, attaching cfg.Headers and, if cfg.Secret
// is set, an X-Signature header carrying the hex HMAC-SHA256 of the body.
func (s *HTTPSender) Send(ctx context.Context, cfg models.WebhookConfig, payload string) SendResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewBufferString(payload))
	if err != nil {
		return SendResult{Err: fmt.Errorf("build webhook request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.Secret != nil && *cfg.Secret != "" {
		req.Header.Set("X-Signature", Sign(*cfg.Secret, payload))
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return SendResult{Err: fmt.Errorf("deliver webhook: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(models.MaxResponseBodyBytes)+1))
	if err != nil {
		return SendResult{StatusCode: resp.StatusCode, Err: fmt.Errorf("read webhook response: %w", err)}
	}
	return SendResult{StatusCode: resp.StatusCode, Body: models.TruncateResponseBody(string(body))}
}

// MailSender delivers EMAIL webhooks via the external mail gateway port.
// cfg.URL doubles as the recipient address, since WebhookConfig carries no
// separate "to" field for this webhook type.
type MailSender struct {
	Gateway ports.MailGateway
}

// Send hands payload to the mail gateway, using the subscribed event type
// as the subject line.
func (s *MailSender) Send(ctx context.Context, cfg models.WebhookConfig, evtType models.WebhookEventType, payload string) SendResult {
	if s.Gateway == nil {
		return SendResult{Err: fmt.Errorf("no mail gateway configured")}
	}
	subject := fmt.Sprintf("QA orchestrator event: %s", evtType)
	if err := s.Gateway.Send(ctx, cfg.URL, subject, payload); err != nil {
		return SendResult{Err: fmt.Errorf("send mail: %w", err)}
	}
	return SendResult{StatusCode: http.StatusOK}
}
