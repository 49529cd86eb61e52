// Package ports declares the interfaces the orchestration core consumes
// from external collaborators: persistence, spec fetching, clock and id
// generation. Concrete implementations live outside the core (or, for
// persistence and OpenAPI-operation extraction, in the thin adapters under
// pkg/storage and pkg/specadapter).
package ports

import (
	"context"
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// PackageRepository persists Package aggregates.
type PackageRepository interface {
	Create(ctx context.Context, pkg *models.Package) error
	Get(ctx context.Context, id models.PackageID) (*models.Package, error)
	Update(ctx context.Context, pkg *models.Package) error
	FindBySpecHash(ctx context.Context, specHash string) (*models.Package, error)
	DeleteByPackageID(ctx context.Context, id models.PackageID) error
}

// ScenarioRepository persists Scenarios belonging to a Package.
type ScenarioRepository interface {
	CreateBatch(ctx context.Context, packageID models.PackageID, scenarios []models.Scenario) error
	ListByPackageID(ctx context.Context, packageID models.PackageID) ([]models.Scenario, error)
	DeleteByPackageID(ctx context.Context, packageID models.PackageID) error
}

// RunRepository persists Runs belonging to a Package.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	Update(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, id models.RunID) (*models.Run, error)
	ListByPackageID(ctx context.Context, packageID models.PackageID) ([]models.Run, error)
	ListByStatus(ctx context.Context, status models.RunStatus) ([]models.Run, error)
	DeleteByPackageID(ctx context.Context, packageID models.PackageID) error
}

// StepResultRepository persists StepResults keyed by (runID, stepIndex).
type StepResultRepository interface {
	Append(ctx context.Context, result models.StepResult) error
	ListByRunID(ctx context.Context, runID models.RunID) ([]models.StepResult, error)
}

// WebhookRepository manages subscriber configuration.
type WebhookRepository interface {
	ListActiveByEvent(ctx context.Context, evt models.WebhookEventType) ([]models.WebhookConfig, error)
	Get(ctx context.Context, id models.WebhookID) (*models.WebhookConfig, error)
}

// WebhookDeliveryRepository persists delivery attempts and supports the
// scheduler's retry scan.
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *models.WebhookDelivery) error
	Update(ctx context.Context, delivery *models.WebhookDelivery) error
	ListDueForRetry(ctx context.Context, now time.Time) ([]models.WebhookDelivery, error)
}

// SpecFormat hints at the wire format of a fetched OpenAPI document.
type SpecFormat string

const (
	SpecFormatJSON SpecFormat = "json"
	SpecFormatYAML SpecFormat = "yaml"
)

// SpecFetcher resolves a spec URL to its raw content. Failures map to
// FAILED_SPEC_FETCH at the orchestrator level.
type SpecFetcher interface {
	Fetch(ctx context.Context, url string) (content []byte, format SpecFormat, err error)
}

// Clock is injectable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// IDGenerator is injectable for deterministic tests.
type IDGenerator interface {
	NewID() string
}

// MailGateway hands an EMAIL-type webhook delivery to an external mail
// transport. Send failures are treated the same as any other non-2xx
// delivery outcome by the WebhookDispatcher's retry policy.
type MailGateway interface {
	Send(ctx context.Context, to, subject, body string) error
}

// OperationSource exposes the set of operations (method+path) declared by
// a parsed OpenAPI document, for the coverage calculator. OpenAPI parsing
// itself stays behind this port; the method+path inventory is the only
// surface the core depends on.
type OperationSource interface {
	Operations(ctx context.Context, specContent []byte, format SpecFormat) ([]models.Operation, error)
}
