package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// PackageRepository implements ports.PackageRepository against Postgres.
type PackageRepository struct {
	pool *pgxpool.Pool
}

// NewPackageRepository builds a PackageRepository over an open pool.
func NewPackageRepository(pool *pgxpool.Pool) *PackageRepository {
	return &PackageRepository{pool: pool}
}

func (r *PackageRepository) Create(ctx context.Context, pkg *models.Package) error {
	configJSON, err := json.Marshal(pkg.Config)
	if err != nil {
		return fmt.Errorf("marshal package config: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO packages (id, name, description, spec_url, spec_content, spec_hash,
			base_url, requirements, status, config, triggered_by, created_at, updated_at,
			started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		string(pkg.ID), pkg.Name, pkg.Description, pkg.SpecURL, pkg.SpecContent, pkg.SpecHash,
		pkg.BaseURL, pkg.Requirements, string(pkg.Status), configJSON, pkg.TriggeredBy,
		pkg.CreatedAt, pkg.UpdatedAt, pkg.StartedAt, pkg.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert package: %w", err)
	}
	return nil
}

func (r *PackageRepository) Get(ctx context.Context, id models.PackageID) (*models.Package, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, spec_url, spec_content, spec_hash, base_url,
			requirements, status, config, coverage, qa_summary, triggered_by, created_at,
			updated_at, started_at, completed_at
		FROM packages WHERE id = $1`, string(id))
	pkg, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query package: %w", err)
	}
	return pkg, nil
}

func (r *PackageRepository) Update(ctx context.Context, pkg *models.Package) error {
	configJSON, err := json.Marshal(pkg.Config)
	if err != nil {
		return fmt.Errorf("marshal package config: %w", err)
	}
	var coverageJSON, qaJSON []byte
	if pkg.Coverage != nil {
		if coverageJSON, err = json.Marshal(pkg.Coverage); err != nil {
			return fmt.Errorf("marshal coverage: %w", err)
		}
	}
	if pkg.QASummary != nil {
		if qaJSON, err = json.Marshal(pkg.QASummary); err != nil {
			return fmt.Errorf("marshal qa summary: %w", err)
		}
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE packages SET name=$2, description=$3, spec_hash=$4, status=$5, config=$6,
			coverage=$7, qa_summary=$8, updated_at=$9, started_at=$10, completed_at=$11
		WHERE id=$1`,
		string(pkg.ID), pkg.Name, pkg.Description, pkg.SpecHash, string(pkg.Status), configJSON,
		nullableJSON(coverageJSON), nullableJSON(qaJSON), pkg.UpdatedAt, pkg.StartedAt, pkg.CompletedAt)
	if err != nil {
		return fmt.Errorf("update package: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PackageRepository) FindBySpecHash(ctx context.Context, specHash string) (*models.Package, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, spec_url, spec_content, spec_hash, base_url,
			requirements, status, config, coverage, qa_summary, triggered_by, created_at,
			updated_at, started_at, completed_at
		FROM packages WHERE spec_hash = $1 ORDER BY created_at DESC LIMIT 1`, specHash)
	pkg, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query package by spec hash: %w", err)
	}
	return pkg, nil
}

func (r *PackageRepository) DeleteByPackageID(ctx context.Context, id models.PackageID) error {
	// Scenarios, runs and step_results cascade via foreign keys (ON DELETE
	// CASCADE in 0001_init.up.sql).
	_, err := r.pool.Exec(ctx, `DELETE FROM packages WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (*models.Package, error) {
	var (
		pkg                    models.Package
		id                     string
		status                 string
		configJSON             []byte
		coverageJSON, qaJSON   []byte
	)
	err := row.Scan(&id, &pkg.Name, &pkg.Description, &pkg.SpecURL, &pkg.SpecContent,
		&pkg.SpecHash, &pkg.BaseURL, &pkg.Requirements, &status, &configJSON, &coverageJSON,
		&qaJSON, &pkg.TriggeredBy, &pkg.CreatedAt, &pkg.UpdatedAt, &pkg.StartedAt, &pkg.CompletedAt)
	if err != nil {
		return nil, err
	}
	pkg.ID = models.PackageID(id)
	pkg.Status = models.PackageStatus(status)
	if err := json.Unmarshal(configJSON, &pkg.Config); err != nil {
		return nil, fmt.Errorf("unmarshal package config: %w", err)
	}
	if len(coverageJSON) > 0 {
		var cov models.CoverageReport
		if err := json.Unmarshal(coverageJSON, &cov); err != nil {
			return nil, fmt.Errorf("unmarshal coverage: %w", err)
		}
		pkg.Coverage = &cov
	}
	if len(qaJSON) > 0 {
		var qa models.QaSummary
		if err := json.Unmarshal(qaJSON, &qa); err != nil {
			return nil, fmt.Errorf("unmarshal qa summary: %w", err)
		}
		pkg.QASummary = &qa
	}
	return &pkg, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
