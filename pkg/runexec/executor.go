// Package runexec drives one Scenario's Steps sequentially through the
// HTTP step executor, merging extracted values into the ExecutionContext
// between steps and deriving the Run's terminal status.
package runexec

import (
	"context"
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/execctx"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

const cancelledMessage = "cancelled"
const runTimeoutMessage = "run timeout"

// StepDispatcher is the subset of httpstep.Executor that RunExecutor needs.
type StepDispatcher interface {
	Execute(ctx context.Context, runID models.RunID, step models.Step, baseURL string, ec *execctx.ExecutionContext) models.StepResult
}

// Config bounds a run's execution.
type Config struct {
	StopOnFirstFailure bool
	// TimeoutMs bounds the whole run's wall time; 0 means no run-level
	// timeout (individual step timeouts still apply).
	TimeoutMs int
}

// Executor runs scenarios step by step.
type Executor struct {
	dispatcher StepDispatcher
	clock      func() time.Time
}

// New builds an Executor dispatching steps via dispatcher.
func New(dispatcher StepDispatcher) *Executor {
	return &Executor{dispatcher: dispatcher, clock: time.Now}
}

// Execute runs scenario's steps in ascending index order against baseURL,
// seeded with env, and returns the terminal Run. It never returns a Go
// error: every failure mode is absorbed into Run.Status.
func (e *Executor) Execute(parent context.Context, runID models.RunID, scenario models.Scenario, baseURL string, env map[string]string, cfg Config) models.Run {
	startedAt := e.clock()
	run := models.Run{
		ID:          runID,
		ScenarioID:  scenario.ID,
		BaseURL:     baseURL,
		Status:      models.RunStatusRunning,
		Environment: env,
		StartedAt:   startedAt,
	}

	runCtx := parent
	var cancel context.CancelFunc
	if cfg.TimeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(parent, time.Duration(cfg.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	ec := execctx.New(env)
	steps := scenario.OrderedSteps()

	hadNonTimeoutError := false
	hadFailure := false
	cancelledByCaller := false

	for _, step := range steps {
		if parent.Err() != nil {
			cancelledByCaller = true
			run.Steps = append(run.Steps, cancelledStepResult(runID, step))
			break
		}
		if runCtx.Err() != nil {
			run.Steps = append(run.Steps, runTimeoutStepResult(runID, step))
			hadNonTimeoutError = true
			break
		}

		result := e.dispatcher.Execute(runCtx, runID, step, baseURL, ec)

		if parent.Err() != nil && result.ErrorMessage != nil {
			// The cancel signal arrived while the step was in flight and the
			// step was abandoned rather than completed.
			run.Steps = append(run.Steps, cancelledStepResult(runID, step))
			cancelledByCaller = true
			break
		}
		run.Steps = append(run.Steps, result)

		if result.ErrorMessage != nil && !result.IsTimeout() {
			hadNonTimeoutError = true
			break
		}
		if !result.Passed {
			hadFailure = true
			if cfg.StopOnFirstFailure {
				break
			}
		}

		ec.AddExtracted(result.ExtractedValues)
	}

	completedAt := e.clock()
	run.CompletedAt = &completedAt

	switch {
	case cancelledByCaller:
		run.Status = models.RunStatusCancelled
	case hadNonTimeoutError:
		run.Status = models.RunStatusError
	case hadFailure:
		run.Status = models.RunStatusFailed
	default:
		run.Status = models.RunStatusPassed
	}

	return run
}

func cancelledStepResult(runID models.RunID, step models.Step) models.StepResult {
	msg := cancelledMessage
	return models.NewStepResult(runID, step.Index, step.Name, nil, nil, nil, nil, nil, &msg, 0, time.Now())
}

func runTimeoutStepResult(runID models.RunID, step models.Step) models.StepResult {
	msg := runTimeoutMessage
	return models.NewStepResult(runID, step.Index, step.Name, nil, nil, nil, nil, nil, &msg, 0, time.Now())
}
