package webhook

import (
	"encoding/json"
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// genericEnvelope is the passthrough body posted to GENERIC webhooks.
type genericEnvelope struct {
	EventType models.WebhookEventType `json:"eventType"`
	Payload   json.RawMessage         `json:"payload"`
}

// BuildPayload renders evt as the wire body for a single webhook type:
// Slack gets a Block Kit envelope, Generic gets a passthrough JSON
// envelope, Email gets a plain-text summary handed to the mail gateway
// port.
func BuildPayload(wtype models.WebhookType, evtType models.WebhookEventType, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}

	switch wtype {
	case models.WebhookSlack:
		return buildSlackPayload(evtType, raw)
	case models.WebhookGeneric:
		env := genericEnvelope{EventType: evtType, Payload: raw}
		out, err := json.Marshal(env)
		if err != nil {
			return "", fmt.Errorf("marshal generic envelope: %w", err)
		}
		return string(out), nil
	case models.WebhookEmail:
		return buildEmailBody(evtType, raw), nil
	default:
		return "", fmt.Errorf("unknown webhook type %q", wtype)
	}
}

func buildSlackPayload(evtType models.WebhookEventType, raw json.RawMessage) (string, error) {
	text := fmt.Sprintf("QA orchestrator event: %s", evtType)
	msg := goslack.WebhookMessage{
		Text: text,
		Blocks: &goslack.Blocks{
			BlockSet: []goslack.Block{
				goslack.NewSectionBlock(
					goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*%s*", evtType), false, false),
					nil, nil,
				),
				goslack.NewSectionBlock(
					goslack.NewTextBlockObject(goslack.PlainTextType, string(raw), false, false),
					nil, nil,
				),
			},
		},
	}
	out, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal slack webhook message: %w", err)
	}
	return string(out), nil
}

func buildEmailBody(evtType models.WebhookEventType, raw json.RawMessage) string {
	return fmt.Sprintf("Event: %s\n\n%s", evtType, string(raw))
}

// EventTypesFor maps an internal bus event to the WebhookEventType(s) it
// satisfies. A PackageStatusChanged event has no webhook-facing
// counterpart (webhooks subscribe only to run-completion and coverage
// events) and yields no matches.
func EventTypesFor(evt models.Event) []models.WebhookEventType {
	switch evt.Kind {
	case models.EventKindRunCompleted:
		types := []models.WebhookEventType{models.EventRunCompleted}
		if evt.RunCompleted != nil && evt.RunCompleted.Status != models.RunStatusPassed {
			types = append(types, models.EventRunFailed)
		}
		return types
	case models.EventKindCoverageThresholdBreach:
		return []models.WebhookEventType{models.EventCoverageThresholdBreach}
	default:
		return nil
	}
}

// PayloadDataFor extracts the JSON-able payload data carried by evt.
func PayloadDataFor(evt models.Event) any {
	switch evt.Kind {
	case models.EventKindRunCompleted:
		return evt.RunCompleted
	case models.EventKindCoverageThresholdBreach:
		return evt.CoverageThresholdBreach
	case models.EventKindPackageStatusChanged:
		return evt.PackageStatusChanged
	default:
		return nil
	}
}
