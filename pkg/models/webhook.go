package models

import "time"

// WebhookEventType enumerates the event types a webhook may subscribe to.
type WebhookEventType string

const (
	EventRunCompleted            WebhookEventType = "RUN_COMPLETED"
	EventRunFailed               WebhookEventType = "RUN_FAILED"
	EventCoverageThresholdBreach WebhookEventType = "COVERAGE_THRESHOLD_BREACH"
)

// WebhookType selects the outbound payload shape and transport.
type WebhookType string

const (
	WebhookSlack   WebhookType = "SLACK"
	WebhookGeneric WebhookType = "GENERIC"
	WebhookEmail   WebhookType = "EMAIL"
)

// IsValid reports whether t is a known webhook type.
func (t WebhookType) IsValid() bool {
	return t == WebhookSlack || t == WebhookGeneric || t == WebhookEmail
}

// WebhookConfig describes one subscriber.
type WebhookConfig struct {
	ID      WebhookID
	Name    string
	URL     string
	Type    WebhookType
	Events  map[WebhookEventType]bool
	Headers map[string]string
	Secret  *string // HMAC secret, if signing is enabled
	Active  bool
}

// Subscribes reports whether the config subscribes to the given event type.
func (w WebhookConfig) Subscribes(evt WebhookEventType) bool {
	return w.Active && w.Events[evt]
}

// DeliveryStatus tracks a single delivery attempt's lifecycle.
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "PENDING"
	DeliverySuccess  DeliveryStatus = "SUCCESS"
	DeliveryFailed   DeliveryStatus = "FAILED"
	DeliveryRetrying DeliveryStatus = "RETRYING"
)

// MaxDeliveryAttempts bounds every delivery to at most 3 attempts.
const MaxDeliveryAttempts = 3

// MaxResponseBodyBytes truncates stored response bodies.
const MaxResponseBodyBytes = 1000

// WebhookDelivery is one at-least-once delivery attempt record.
type WebhookDelivery struct {
	ID             string
	WebhookID      WebhookID
	EventType      WebhookEventType
	Payload        string
	Status         DeliveryStatus
	AttemptCount   int
	LastAttemptAt  *time.Time
	NextRetryAt    *time.Time
	ResponseStatus *int
	ResponseBody   *string
	ErrorMessage   *string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// TruncateResponseBody clamps body to MaxResponseBodyBytes.
func TruncateResponseBody(body string) string {
	if len(body) <= MaxResponseBodyBytes {
		return body
	}
	return body[:MaxResponseBodyBytes]
}
