package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// ScenarioRepository implements ports.ScenarioRepository against Postgres,
// storing each scenario's step list as a JSONB blob.
type ScenarioRepository struct {
	pool *pgxpool.Pool
}

// NewScenarioRepository builds a ScenarioRepository over an open pool.
func NewScenarioRepository(pool *pgxpool.Pool) *ScenarioRepository {
	return &ScenarioRepository{pool: pool}
}

func (r *ScenarioRepository) CreateBatch(ctx context.Context, packageID models.PackageID, scenarios []models.Scenario) error {
	batch := &pgx.Batch{}
	for _, sc := range scenarios {
		stepsJSON, err := json.Marshal(sc.Steps)
		if err != nil {
			return fmt.Errorf("marshal scenario steps: %w", err)
		}
		tagsJSON, err := json.Marshal(sc.Tags)
		if err != nil {
			return fmt.Errorf("marshal scenario tags: %w", err)
		}
		batch.Queue(`
			INSERT INTO scenarios (id, package_id, suite_id, name, description, steps, tags, source, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			string(sc.ID), string(packageID), sc.SuiteID, sc.Name, sc.Description,
			stepsJSON, tagsJSON, string(sc.Source), string(sc.Status))
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range scenarios {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert scenario batch: %w", err)
		}
	}
	return nil
}

func (r *ScenarioRepository) ListByPackageID(ctx context.Context, packageID models.PackageID) ([]models.Scenario, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, package_id, suite_id, name, description, steps, tags, source, status
		FROM scenarios WHERE package_id = $1`, string(packageID))
	if err != nil {
		return nil, fmt.Errorf("query scenarios: %w", err)
	}
	defer rows.Close()

	var out []models.Scenario
	for rows.Next() {
		var (
			sc                  models.Scenario
			id, source, status  string
			pkgID               *string
			stepsJSON, tagsJSON []byte
		)
		if err := rows.Scan(&id, &pkgID, &sc.SuiteID, &sc.Name, &sc.Description, &stepsJSON, &tagsJSON, &source, &status); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		sc.ID = models.ScenarioID(id)
		if pkgID != nil {
			p := models.PackageID(*pkgID)
			sc.PackageID = &p
		}
		sc.Source = models.ScenarioSource(source)
		sc.Status = models.ScenarioStatus(status)
		if err := json.Unmarshal(stepsJSON, &sc.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal scenario steps: %w", err)
		}
		if err := json.Unmarshal(tagsJSON, &sc.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal scenario tags: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *ScenarioRepository) DeleteByPackageID(ctx context.Context, packageID models.PackageID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM scenarios WHERE package_id = $1`, string(packageID))
	if err != nil {
		return fmt.Errorf("delete scenarios: %w", err)
	}
	return nil
}
