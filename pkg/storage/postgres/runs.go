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

// RunRepository implements ports.RunRepository against Postgres. Besides
// the runs table's own JSONB steps blob (the cheap, always-consistent
// read path for RunExecutor's own consumers), it mirrors each StepResult
// into the normalized step_results table via stepResults, so callers that
// need to query a single step across runs by (runId, stepIndex) aren't
// stuck deserializing every run's blob.
type RunRepository struct {
	pool        *pgxpool.Pool
	stepResults *StepResultRepository
}

// NewRunRepository builds a RunRepository over an open pool.
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool, stepResults: NewStepResultRepository(pool)}
}

func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	envJSON, stepsJSON, err := marshalRunBlobs(run)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO runs (id, scenario_id, package_id, triggered_by, base_url, status,
			environment, steps, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		string(run.ID), string(run.ScenarioID), run.PackageID, run.TriggeredBy, run.BaseURL,
		string(run.Status), envJSON, stepsJSON, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return r.mirrorStepResults(ctx, run)
}

func (r *RunRepository) Update(ctx context.Context, run *models.Run) error {
	envJSON, stepsJSON, err := marshalRunBlobs(run)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE runs SET status=$2, environment=$3, steps=$4, completed_at=$5 WHERE id=$1`,
		string(run.ID), string(run.Status), envJSON, stepsJSON, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return r.mirrorStepResults(ctx, run)
}

// mirrorStepResults upserts every step of run into step_results, keyed by
// (runId, stepIndex) as step_results.Append's ON CONFLICT clause expects.
func (r *RunRepository) mirrorStepResults(ctx context.Context, run *models.Run) error {
	for _, step := range run.Steps {
		if step.RunID == "" {
			step.RunID = run.ID
		}
		if err := r.stepResults.Append(ctx, step); err != nil {
			return fmt.Errorf("mirror step result: %w", err)
		}
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id models.RunID) (*models.Run, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, scenario_id, package_id, triggered_by, base_url, status, environment,
			steps, started_at, completed_at
		FROM runs WHERE id = $1`, string(id))
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) ListByPackageID(ctx context.Context, packageID models.PackageID) ([]models.Run, error) {
	return r.query(ctx, `
		SELECT id, scenario_id, package_id, triggered_by, base_url, status, environment,
			steps, started_at, completed_at
		FROM runs WHERE package_id = $1`, string(packageID))
}

func (r *RunRepository) ListByStatus(ctx context.Context, status models.RunStatus) ([]models.Run, error) {
	return r.query(ctx, `
		SELECT id, scenario_id, package_id, triggered_by, base_url, status, environment,
			steps, started_at, completed_at
		FROM runs WHERE status = $1`, string(status))
}

func (r *RunRepository) DeleteByPackageID(ctx context.Context, packageID models.PackageID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM runs WHERE package_id = $1`, string(packageID))
	if err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	return nil
}

func (r *RunRepository) query(ctx context.Context, sql string, args ...any) ([]models.Run, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func marshalRunBlobs(run *models.Run) (envJSON, stepsJSON []byte, err error) {
	envJSON, err = json.Marshal(run.Environment)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal run environment: %w", err)
	}
	stepsJSON, err = json.Marshal(run.Steps)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal run steps: %w", err)
	}
	return envJSON, stepsJSON, nil
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run                    models.Run
		id, scenarioID, status string
		packageID              *string
		envJSON, stepsJSON     []byte
	)
	if err := row.Scan(&id, &scenarioID, &packageID, &run.TriggeredBy, &run.BaseURL, &status,
		&envJSON, &stepsJSON, &run.StartedAt, &run.CompletedAt); err != nil {
		return nil, err
	}
	run.ID = models.RunID(id)
	run.ScenarioID = models.ScenarioID(scenarioID)
	if packageID != nil {
		p := models.PackageID(*packageID)
		run.PackageID = &p
	}
	run.Status = models.RunStatus(status)
	if len(envJSON) > 0 {
		if err := json.Unmarshal(envJSON, &run.Environment); err != nil {
			return nil, fmt.Errorf("unmarshal run environment: %w", err)
		}
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal run steps: %w", err)
		}
	}
	return &run, nil
}
