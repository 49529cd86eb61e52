package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// WebhookRepository implements ports.WebhookRepository against Postgres.
type WebhookRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookRepository builds a WebhookRepository over an open pool.
func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

func (r *WebhookRepository) ListActiveByEvent(ctx context.Context, evt models.WebhookEventType) ([]models.WebhookConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, url, type, events, headers, secret, active
		FROM webhooks WHERE active = TRUE AND events @> $1::jsonb`, eventArrayJSON(evt))
	if err != nil {
		return nil, fmt.Errorf("query active webhooks: %w", err)
	}
	defer rows.Close()

	var out []models.WebhookConfig
	for rows.Next() {
		cfg, err := scanWebhookConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook config: %w", err)
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

func (r *WebhookRepository) Get(ctx context.Context, id models.WebhookID) (*models.WebhookConfig, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, url, type, events, headers, secret, active
		FROM webhooks WHERE id = $1`, string(id))
	cfg, err := scanWebhookConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query webhook: %w", err)
	}
	return cfg, nil
}

func eventArrayJSON(evt models.WebhookEventType) []byte {
	b, _ := json.Marshal([]models.WebhookEventType{evt})
	return b
}

func scanWebhookConfig(row rowScanner) (*models.WebhookConfig, error) {
	var (
		cfg                     models.WebhookConfig
		id, wtype               string
		eventsJSON, headersJSON []byte
	)
	if err := row.Scan(&id, &cfg.Name, &cfg.URL, &wtype, &eventsJSON, &headersJSON, &cfg.Secret, &cfg.Active); err != nil {
		return nil, err
	}
	cfg.ID = models.WebhookID(id)
	cfg.Type = models.WebhookType(wtype)

	var events []models.WebhookEventType
	if err := json.Unmarshal(eventsJSON, &events); err != nil {
		return nil, fmt.Errorf("unmarshal webhook events: %w", err)
	}
	cfg.Events = make(map[models.WebhookEventType]bool, len(events))
	for _, e := range events {
		cfg.Events[e] = true
	}
	if err := json.Unmarshal(headersJSON, &cfg.Headers); err != nil {
		return nil, fmt.Errorf("unmarshal webhook headers: %w", err)
	}
	return &cfg, nil
}

// WebhookDeliveryRepository implements ports.WebhookDeliveryRepository.
type WebhookDeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookDeliveryRepository builds a WebhookDeliveryRepository over an
// open pool.
func NewWebhookDeliveryRepository(pool *pgxpool.Pool) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{pool: pool}
}

func (r *WebhookDeliveryRepository) Create(ctx context.Context, d *models.WebhookDelivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_deliveries (id, webhook_id, event_type, payload, status, attempt_count,
			last_attempt_at, next_retry_at, response_status, response_body, error_message,
			created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		d.ID, string(d.WebhookID), string(d.EventType), d.Payload, string(d.Status), d.AttemptCount,
		d.LastAttemptAt, d.NextRetryAt, d.ResponseStatus, d.ResponseBody, d.ErrorMessage,
		d.CreatedAt, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

func (r *WebhookDeliveryRepository) Update(ctx context.Context, d *models.WebhookDelivery) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries SET status=$2, attempt_count=$3, last_attempt_at=$4,
			next_retry_at=$5, response_status=$6, response_body=$7, error_message=$8, completed_at=$9
		WHERE id=$1`,
		d.ID, string(d.Status), d.AttemptCount, d.LastAttemptAt, d.NextRetryAt, d.ResponseStatus,
		d.ResponseBody, d.ErrorMessage, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *WebhookDeliveryRepository) ListDueForRetry(ctx context.Context, now time.Time) ([]models.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, webhook_id, event_type, payload, status, attempt_count, last_attempt_at,
			next_retry_at, response_status, response_body, error_message, created_at, completed_at
		FROM webhook_deliveries WHERE status = $1 AND next_retry_at <= $2`,
		string(models.DeliveryRetrying), now)
	if err != nil {
		return nil, fmt.Errorf("query due deliveries: %w", err)
	}
	defer rows.Close()

	var out []models.WebhookDelivery
	for rows.Next() {
		var (
			d                          models.WebhookDelivery
			webhookID, evtType, status string
		)
		if err := rows.Scan(&d.ID, &webhookID, &evtType, &d.Payload, &status, &d.AttemptCount,
			&d.LastAttemptAt, &d.NextRetryAt, &d.ResponseStatus, &d.ResponseBody, &d.ErrorMessage,
			&d.CreatedAt, &d.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		d.WebhookID = models.WebhookID(webhookID)
		d.EventType = models.WebhookEventType(evtType)
		d.Status = models.DeliveryStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}
