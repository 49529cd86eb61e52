package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/eventbus"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

type fakeWebhookRepo struct {
	configs []models.WebhookConfig
}

func (f *fakeWebhookRepo) ListActiveByEvent(ctx context.Context, evt models.WebhookEventType) ([]models.WebhookConfig, error) {
	var out []models.WebhookConfig
	for _, c := range f.configs {
		if c.Subscribes(evt) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeWebhookRepo) Get(ctx context.Context, id models.WebhookID) (*models.WebhookConfig, error) {
	for _, c := range f.configs {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[string]*models.WebhookDelivery
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{deliveries: make(map[string]*models.WebhookDelivery)}
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.deliveries[d.ID] = &cp
	return nil
}

func (f *fakeDeliveryRepo) Update(ctx context.Context, d *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.deliveries[d.ID] = &cp
	return nil
}

func (f *fakeDeliveryRepo) ListDueForRetry(ctx context.Context, now time.Time) ([]models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WebhookDelivery
	for _, d := range f.deliveries {
		if d.Status == models.DeliveryRetrying && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDeliveryRepo) one(t *testing.T) *models.WebhookDelivery {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.deliveries, 1)
	for _, d := range f.deliveries {
		return d
	}
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestDispatcher_GenericWebhook_SuccessOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	secret := "s3cr3t"
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{{
		ID:     models.NewWebhookID(),
		Name:   "generic",
		URL:    srv.URL,
		Type:   models.WebhookGeneric,
		Events: map[models.WebhookEventType]bool{models.EventRunCompleted: true},
		Secret: &secret,
		Active: true,
	}}}
	deliveries := newFakeDeliveryRepo()
	d := New(Config{Webhooks: repo, Deliveries: deliveries, Clock: fixedClock{time.Now()}})

	bus := eventbus.New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx, bus)
	defer d.Stop()

	bus.Publish(models.Event{
		Kind: models.EventKindRunCompleted,
		RunCompleted: &models.RunCompletedPayload{
			RunID:  models.NewRunID(),
			Status: models.RunStatusPassed,
		},
	})

	require.Eventually(t, func() bool {
		deliveries.mu.Lock()
		defer deliveries.mu.Unlock()
		for _, dl := range deliveries.deliveries {
			if dl.Status == models.DeliverySuccess {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	delivery := deliveries.one(t)
	assert.Equal(t, 1, delivery.AttemptCount)
	require.NotNil(t, delivery.ResponseStatus)
	assert.Equal(t, http.StatusOK, *delivery.ResponseStatus)
}

func TestDispatcher_RetrySchedule_ThreeFailuresEndsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := models.WebhookConfig{
		ID:     models.NewWebhookID(),
		Name:   "flaky",
		URL:    srv.URL,
		Type:   models.WebhookGeneric,
		Events: map[models.WebhookEventType]bool{models.EventRunCompleted: true},
		Active: true,
	}
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	deliveries := newFakeDeliveryRepo()
	now := time.Now()
	d := New(Config{Webhooks: repo, Deliveries: deliveries, Clock: fixedClock{now}})

	bus := eventbus.New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx, bus)
	defer d.Stop()

	bus.Publish(models.Event{
		Kind:         models.EventKindRunCompleted,
		RunCompleted: &models.RunCompletedPayload{RunID: models.NewRunID(), Status: models.RunStatusPassed},
	})

	require.Eventually(t, func() bool {
		deliveries.mu.Lock()
		defer deliveries.mu.Unlock()
		for _, dl := range deliveries.deliveries {
			if dl.Status == models.DeliveryRetrying {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	first := deliveries.one(t)
	require.Equal(t, 1, first.AttemptCount)
	require.NotNil(t, first.NextRetryAt)
	assert.True(t, first.NextRetryAt.Sub(*first.LastAttemptAt) >= 60*time.Second)

	// Drive the remaining attempts directly (bypassing the scheduler's
	// real-time ticker) by calling retryDue with the clock moved past the
	// delivery's NextRetryAt. Each attempt schedules the next retry from
	// the clock at that attempt, so the clock moves forward before each scan.
	d.clock = fixedClock{now.Add(10 * time.Minute)}
	d.retryDue(ctx)
	second := deliveries.one(t)
	require.Equal(t, 2, second.AttemptCount)
	assert.Equal(t, models.DeliveryRetrying, second.Status)
	assert.True(t, second.NextRetryAt.Sub(*second.LastAttemptAt) >= 120*time.Second)

	d.clock = fixedClock{now.Add(20 * time.Minute)}
	d.retryDue(ctx)
	third := deliveries.one(t)
	require.Equal(t, 3, third.AttemptCount)
	assert.Equal(t, models.DeliveryFailed, third.Status)
	assert.NotNil(t, third.CompletedAt)

	// Bounded at 3 attempts: further scans see nothing RETRYING.
	due, err := deliveries.ListDueForRetry(ctx, d.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestNextRetryAt_MonotonicBackoff(t *testing.T) {
	base := time.Now()
	r1 := NextRetryAt(base, 1)
	r2 := NextRetryAt(base, 2)
	assert.True(t, r1.Sub(base) >= 60*time.Second)
	assert.True(t, r2.Sub(base) >= 120*time.Second)
	assert.True(t, r2.After(r1))
}

func TestEventTypesFor_FailedRunAlsoMatchesRunFailed(t *testing.T) {
	evt := models.Event{
		Kind:         models.EventKindRunCompleted,
		RunCompleted: &models.RunCompletedPayload{Status: models.RunStatusFailed},
	}
	types := EventTypesFor(evt)
	assert.Contains(t, types, models.EventRunCompleted)
	assert.Contains(t, types, models.EventRunFailed)
}

func TestBuildPayload_SlackIncludesText(t *testing.T) {
	payload, err := BuildPayload(models.WebhookSlack, models.EventRunCompleted, map[string]string{"x": "y"})
	require.NoError(t, err)
	assert.Contains(t, payload, "RUN_COMPLETED")
}

func TestSignVerify_RoundTrip(t *testing.T) {
	sig := Sign("secret", "body")
	assert.True(t, Verify("secret", "body", sig))
	assert.False(t, Verify("wrong", "body", sig))
}
