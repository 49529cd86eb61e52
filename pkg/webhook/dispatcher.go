package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/eventbus"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/ports"
)

// baseBackoff and maxBackoffExponent define the retry schedule:
// nextRetryAt = now + 30s * 2^min(attempts,5).
const (
	baseBackoff        = 30 * time.Second
	maxBackoffExponent = 5
)

// DefaultSchedulerInterval is how often the retry scheduler scans for
// RETRYING deliveries whose nextRetryAt has elapsed.
const DefaultSchedulerInterval = 15 * time.Second

// NextRetryAt computes the scheduled retry time for the attempt-th
// (1-indexed) retry. The interval doubles per attempt, capped at
// 2^maxBackoffExponent, so successive retries are spaced further apart
// until the cap is reached and equally apart after it.
func NextRetryAt(from time.Time, attempt int) time.Time {
	exp := attempt
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	backoff := baseBackoff
	for i := 0; i < exp; i++ {
		backoff *= 2
	}
	return from.Add(backoff)
}

// Clock is injectable for deterministic tests, mirroring ports.Clock.
type Clock interface {
	Now() time.Time
}

// Dispatcher subscribes to the process-wide event bus, fans matching
// events out to every active, subscribed WebhookConfig, and drives each
// resulting WebhookDelivery through send-then-retry, bounded by
// models.MaxDeliveryAttempts.
type Dispatcher struct {
	webhooks   ports.WebhookRepository
	deliveries ports.WebhookDeliveryRepository
	clock      Clock

	httpSender *HTTPSender
	mailSender *MailSender

	sub *eventbus.Subscription
}

// Config wires a Dispatcher's collaborators.
type Config struct {
	Webhooks    ports.WebhookRepository
	Deliveries  ports.WebhookDeliveryRepository
	MailGateway ports.MailGateway
	Clock       Clock
}

// New builds a Dispatcher. Call Start to begin consuming bus events.
func New(cfg Config) *Dispatcher {
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Dispatcher{
		webhooks:   cfg.Webhooks,
		deliveries: cfg.Deliveries,
		clock:      clock,
		httpSender: NewHTTPSender(),
		mailSender: &MailSender{Gateway: cfg.MailGateway},
	}
}

// Start subscribes to bus and spawns the consume loop and the periodic
// retry scheduler, both stopped by ctx cancellation or a call to Stop.
func (d *Dispatcher) Start(ctx context.Context, bus *eventbus.Bus) {
	d.sub = bus.Subscribe()
	go d.consumeLoop(ctx)
	go d.schedulerLoop(ctx)
}

// Stop unsubscribes from the bus; safe to call once.
func (d *Dispatcher) Stop() {
	if d.sub != nil {
		d.sub.Unsubscribe()
	}
}

func (d *Dispatcher) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-d.sub.Events:
			if !ok {
				return
			}
			d.handleEvent(ctx, evt)
		}
	}
}

// handleEvent fans a single bus event out to every matching active
// webhook, enqueuing a PENDING delivery and attempting it immediately
// (the scheduler only drives the subsequent retries).
func (d *Dispatcher) handleEvent(ctx context.Context, evt models.Event) {
	for _, evtType := range EventTypesFor(evt) {
		configs, err := d.webhooks.ListActiveByEvent(ctx, evtType)
		if err != nil {
			slog.Error("webhook: failed to list subscribers", "event_type", evtType, "error", err)
			continue
		}
		data := PayloadDataFor(evt)
		for _, cfg := range configs {
			payload, err := BuildPayload(cfg.Type, evtType, data)
			if err != nil {
				slog.Error("webhook: failed to build payload", "webhook_id", cfg.ID, "error", err)
				continue
			}
			delivery := &models.WebhookDelivery{
				ID:        string(models.NewWebhookID()),
				WebhookID: cfg.ID,
				EventType: evtType,
				Payload:   payload,
				Status:    models.DeliveryPending,
				CreatedAt: d.clock.Now(),
			}
			if err := d.deliveries.Create(ctx, delivery); err != nil {
				slog.Error("webhook: failed to persist delivery", "webhook_id", cfg.ID, "error", err)
				continue
			}
			d.attempt(ctx, cfg, delivery)
		}
	}
}

// attempt sends one delivery attempt and advances its status: SUCCESS on
// a 2xx response, RETRYING while attempts remain, FAILED once the attempt
// cap is reached.
func (d *Dispatcher) attempt(ctx context.Context, cfg models.WebhookConfig, delivery *models.WebhookDelivery) {
	now := d.clock.Now()
	delivery.AttemptCount++
	delivery.LastAttemptAt = &now

	result := d.send(ctx, cfg, delivery)

	if result.StatusCode != 0 {
		status := result.StatusCode
		delivery.ResponseStatus = &status
		body := result.Body
		delivery.ResponseBody = &body
	}

	if result.Succeeded() {
		delivery.Status = models.DeliverySuccess
		delivery.CompletedAt = &now
		delivery.ErrorMessage = nil
	} else {
		if result.Err != nil {
			msg := result.Err.Error()
			delivery.ErrorMessage = &msg
		}
		if delivery.AttemptCount < models.MaxDeliveryAttempts {
			delivery.Status = models.DeliveryRetrying
			next := NextRetryAt(now, delivery.AttemptCount)
			delivery.NextRetryAt = &next
		} else {
			delivery.Status = models.DeliveryFailed
			delivery.CompletedAt = &now
		}
	}

	if err := d.deliveries.Update(ctx, delivery); err != nil {
		slog.Error("webhook: failed to persist delivery attempt", "delivery_id", delivery.ID, "error", err)
	}
}

func (d *Dispatcher) send(ctx context.Context, cfg models.WebhookConfig, delivery *models.WebhookDelivery) SendResult {
	switch cfg.Type {
	case models.WebhookEmail:
		return d.mailSender.Send(ctx, cfg, delivery.EventType, delivery.Payload)
	case models.WebhookSlack, models.WebhookGeneric:
		return d.httpSender.Send(ctx, cfg, delivery.Payload)
	default:
		return SendResult{Err: fmt.Errorf("unknown webhook type %q", cfg.Type)}
	}
}

// schedulerLoop periodically scans RETRYING deliveries whose nextRetryAt
// has elapsed and retries them.
func (d *Dispatcher) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(DefaultSchedulerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.retryDue(ctx)
		}
	}
}

func (d *Dispatcher) retryDue(ctx context.Context) {
	due, err := d.deliveries.ListDueForRetry(ctx, d.clock.Now())
	if err != nil {
		slog.Error("webhook: failed to list due deliveries", "error", err)
		return
	}
	for _, delivery := range due {
		cfg, err := d.webhooks.Get(ctx, delivery.WebhookID)
		if err != nil {
			slog.Error("webhook: failed to load webhook for retry", "webhook_id", delivery.WebhookID, "error", err)
			continue
		}
		d.attempt(ctx, *cfg, &delivery)
	}
}
