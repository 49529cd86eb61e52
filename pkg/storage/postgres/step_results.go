package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// StepResultRepository implements ports.StepResultRepository, keyed by
// (runID, stepIndex).
type StepResultRepository struct {
	pool *pgxpool.Pool
}

// NewStepResultRepository builds a StepResultRepository over an open pool.
func NewStepResultRepository(pool *pgxpool.Pool) *StepResultRepository {
	return &StepResultRepository{pool: pool}
}

func (r *StepResultRepository) Append(ctx context.Context, result models.StepResult) error {
	assertionsJSON, err := json.Marshal(result.Assertions)
	if err != nil {
		return fmt.Errorf("marshal assertions: %w", err)
	}
	headersJSON, err := json.Marshal(result.ActualHeaders)
	if err != nil {
		return fmt.Errorf("marshal actual headers: %w", err)
	}
	extractedJSON, err := json.Marshal(result.ExtractedValues)
	if err != nil {
		return fmt.Errorf("marshal extracted values: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO step_results (run_id, step_index, step_name, actual_status, actual_headers,
			actual_body, passed, assertions, extracted_values, error_message, duration_ms, executed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (run_id, step_index) DO UPDATE SET
			step_name=EXCLUDED.step_name, actual_status=EXCLUDED.actual_status,
			actual_headers=EXCLUDED.actual_headers, actual_body=EXCLUDED.actual_body,
			passed=EXCLUDED.passed, assertions=EXCLUDED.assertions,
			extracted_values=EXCLUDED.extracted_values, error_message=EXCLUDED.error_message,
			duration_ms=EXCLUDED.duration_ms, executed_at=EXCLUDED.executed_at`,
		string(result.RunID), result.StepIndex, result.StepName, result.ActualStatus, headersJSON,
		result.ActualBody, result.Passed, assertionsJSON, extractedJSON, result.ErrorMessage,
		result.DurationMs, result.ExecutedAt)
	if err != nil {
		return fmt.Errorf("upsert step result: %w", err)
	}
	return nil
}

func (r *StepResultRepository) ListByRunID(ctx context.Context, runID models.RunID) ([]models.StepResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT run_id, step_index, step_name, actual_status, actual_headers, actual_body,
			passed, assertions, extracted_values, error_message, duration_ms, executed_at
		FROM step_results WHERE run_id = $1 ORDER BY step_index ASC`, string(runID))
	if err != nil {
		return nil, fmt.Errorf("query step results: %w", err)
	}
	defer rows.Close()

	var out []models.StepResult
	for rows.Next() {
		var (
			sr                          models.StepResult
			runIDStr                    string
			headersJSON, assertionsJSON []byte
			extractedJSON               []byte
		)
		if err := rows.Scan(&runIDStr, &sr.StepIndex, &sr.StepName, &sr.ActualStatus, &headersJSON,
			&sr.ActualBody, &sr.Passed, &assertionsJSON, &extractedJSON, &sr.ErrorMessage,
			&sr.DurationMs, &sr.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan step result: %w", err)
		}
		sr.RunID = models.RunID(runIDStr)
		if err := json.Unmarshal(headersJSON, &sr.ActualHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal actual headers: %w", err)
		}
		if err := json.Unmarshal(assertionsJSON, &sr.Assertions); err != nil {
			return nil, fmt.Errorf("unmarshal assertions: %w", err)
		}
		if err := json.Unmarshal(extractedJSON, &sr.ExtractedValues); err != nil {
			return nil, fmt.Errorf("unmarshal extracted values: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}
