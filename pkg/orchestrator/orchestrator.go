// Package orchestrator implements the top-level package state machine:
// it drives a Package through spec resolution, AI scenario generation,
// parallel scenario execution, QA evaluation and coverage calculation,
// emitting an event at every transition.
//
// The per-package mutex here serializes state writes only; it is never
// held across HTTP or LLM calls, which is why every blocking collaborator
// call happens outside transition().
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/eventbus"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/ports"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/runexec"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/scenariogen"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/specadapter"
)

// defaultMaxWorkerPoolSize bounds scenario-parallel execution when
// config.parallelExecution is set, keeping LLM and target-API load
// predictable regardless of a package's scenario count.
const defaultMaxWorkerPoolSize = 8

// defaultCoverageThreshold is the percentage below which a completed
// package emits CoverageThresholdBreach. Neither PackageConfig nor
// CoverageReport carries a per-package threshold field, so a fixed
// default applies to every package.
const defaultCoverageThreshold = 80.0

// ErrInvalidStatusTransition is the sentinel any InvalidTransitionError
// wraps, for errors.Is checks.
var ErrInvalidStatusTransition = errors.New("invalid status transition")

// InvalidTransitionError reports a disallowed Package status transition.
// This is a programmer error, not a runtime condition: the persisted
// status is left unchanged.
type InvalidTransitionError struct {
	From models.PackageStatus
	To   models.PackageStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidStatusTransition }

var allowedTransitions = map[models.PackageStatus][]models.PackageStatus{
	models.StatusRequested:           {models.StatusSpecFetched, models.StatusFailedSpecFetch, models.StatusCancelled},
	models.StatusSpecFetched:         {models.StatusAISuccess, models.StatusFailedGeneration, models.StatusCancelled},
	models.StatusAISuccess:           {models.StatusExecutionInProgress, models.StatusFailedExecution, models.StatusCancelled},
	models.StatusExecutionInProgress: {models.StatusExecutionComplete, models.StatusFailedExecution, models.StatusCancelled},
	models.StatusExecutionComplete:   {models.StatusQAEvalInProgress, models.StatusComplete, models.StatusCancelled},
	models.StatusQAEvalInProgress:    {models.StatusQAEvalDone, models.StatusComplete, models.StatusCancelled},
	models.StatusQAEvalDone:          {models.StatusComplete},
}

func isAllowed(from, to models.PackageStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ScenarioGenerator is the subset of scenariogen.Generator the orchestrator
// needs.
type ScenarioGenerator interface {
	Generate(ctx context.Context, specContent, requirements string, cfg scenariogen.Config) ([]models.Scenario, error)
}

// RunRunner is the subset of runexec.Executor the orchestrator needs.
type RunRunner interface {
	Execute(parent context.Context, runID models.RunID, scenario models.Scenario, baseURL string, env map[string]string, cfg runexec.Config) models.Run
}

// QaEvaluator is the subset of qasummary.Evaluator the orchestrator needs.
type QaEvaluator interface {
	Evaluate(ctx context.Context, scenarioNames map[models.ScenarioID]string, runs []models.Run) models.QaSummary
}

// CoverageCalculator is the subset of coverage.Calculator the orchestrator
// needs.
type CoverageCalculator interface {
	Calculate(operations []models.Operation, scenarios []models.Scenario, runs []models.Run) models.CoverageReport
}

// Deps wires every external collaborator the orchestrator depends on.
type Deps struct {
	Packages    ports.PackageRepository
	Scenarios   ports.ScenarioRepository
	Runs        ports.RunRepository
	SpecFetcher ports.SpecFetcher
	Operations  ports.OperationSource
	Clock       ports.Clock

	Generator   ScenarioGenerator
	RunExecutor RunRunner
	QaEvaluator QaEvaluator
	Coverage    CoverageCalculator

	Bus *eventbus.Bus
}

// Orchestrator drives packages through the status graph, one state
// advancement at a time per package.
type Orchestrator struct {
	deps Deps

	locksMu sync.Mutex
	locks   map[models.PackageID]*sync.Mutex

	cancelMu    sync.RWMutex
	cancelFuncs map[models.PackageID]context.CancelFunc
}

// New builds an Orchestrator from its wired dependencies.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:        deps,
		locks:       make(map[models.PackageID]*sync.Mutex),
		cancelFuncs: make(map[models.PackageID]context.CancelFunc),
	}
}

func (o *Orchestrator) lockFor(id models.PackageID) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	m, ok := o.locks[id]
	if !ok {
		m = &sync.Mutex{}
		o.locks[id] = m
	}
	return m
}

// transition persists a status change and publishes the event, after
// checking the transition against the allowed-transition graph. The per-package
// mutex is held only across the validity check and the repository write,
// never across an I/O call to an external HTTP/LLM endpoint.
func (o *Orchestrator) transition(ctx context.Context, pkg *models.Package, to models.PackageStatus, now time.Time) error {
	mu := o.lockFor(pkg.ID)
	mu.Lock()
	defer mu.Unlock()

	from := pkg.Status
	if !isAllowed(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}

	pkg.Status = to
	pkg.UpdatedAt = now
	if to == models.StatusExecutionInProgress && pkg.StartedAt == nil {
		pkg.StartedAt = &now
	}
	if err := o.deps.Packages.Update(ctx, pkg); err != nil {
		pkg.Status = from
		return fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}

	o.deps.Bus.Publish(models.Event{
		Kind: models.EventKindPackageStatusChanged,
		At:   now,
		PackageStatusChanged: &models.PackageStatusChangedPayload{
			PackageID: pkg.ID,
			From:      from,
			To:        to,
		},
	})
	return nil
}

// registerCancel and unregisterCancel maintain the per-package
// cancellation registry consulted by Cancel.
func (o *Orchestrator) registerCancel(id models.PackageID, cancel context.CancelFunc) {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	o.cancelFuncs[id] = cancel
}

func (o *Orchestrator) unregisterCancel(id models.PackageID) {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	delete(o.cancelFuncs, id)
}

// Cancel triggers cancellation of a package's in-flight run, if any is
// currently being driven by this process. Returns true if a cancellation
// was delivered.
func (o *Orchestrator) Cancel(id models.PackageID) bool {
	o.cancelMu.RLock()
	defer o.cancelMu.RUnlock()
	if cancel, ok := o.cancelFuncs[id]; ok {
		cancel()
		return true
	}
	return false
}

// Run drives packageID through its entire lifecycle. It never returns a
// Go error for a terminal external failure (spec fetch 404, generation
// failure, execution failure): those are absorbed into the package's
// FAILED_* status. It returns an
// error only for infrastructure failures (repository I/O) and for
// InvalidTransitionError, which signals a programmer bug in the driver
// itself.
func (o *Orchestrator) Run(ctx context.Context, packageID models.PackageID) error {
	pkg, err := o.deps.Packages.Get(ctx, packageID)
	if err != nil {
		return fmt.Errorf("load package %s: %w", packageID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.registerCancel(packageID, cancel)
	defer func() {
		cancel()
		o.unregisterCancel(packageID)
	}()

	specContent, format, err := o.resolveSpec(runCtx, pkg)
	if err != nil {
		slog.Warn("orchestrator: spec fetch failed", "package_id", packageID, "error", err)
		return o.transition(ctx, pkg, models.StatusFailedSpecFetch, o.now())
	}
	pkg.SpecHash = specHash(specContent)
	if err := o.transition(ctx, pkg, models.StatusSpecFetched, o.now()); err != nil {
		return err
	}

	if runCtx.Err() != nil {
		return o.transition(ctx, pkg, models.StatusCancelled, o.now())
	}

	requirements := ""
	if pkg.Requirements != nil {
		requirements = *pkg.Requirements
	}
	scenarios, err := o.deps.Generator.Generate(runCtx, string(specContent), requirements, scenariogen.Config{
		MaxScenarios:        pkg.Config.MaxScenarios,
		MaxStepsPerScenario: pkg.Config.MaxStepsPerScenario,
		Model:               pkg.Config.AIModel,
	})
	if err != nil {
		slog.Warn("orchestrator: scenario generation failed", "package_id", packageID, "error", err)
		return o.transition(ctx, pkg, models.StatusFailedGeneration, o.now())
	}
	if err := o.deps.Scenarios.CreateBatch(ctx, pkg.ID, scenarios); err != nil {
		return fmt.Errorf("persist generated scenarios: %w", err)
	}
	if err := o.transition(ctx, pkg, models.StatusAISuccess, o.now()); err != nil {
		return err
	}

	if runCtx.Err() != nil {
		return o.transition(ctx, pkg, models.StatusCancelled, o.now())
	}

	if err := o.transition(ctx, pkg, models.StatusExecutionInProgress, o.now()); err != nil {
		return err
	}
	runs := o.executeScenarios(runCtx, pkg, scenarios)

	if errors.Is(runCtx.Err(), context.Canceled) {
		return o.transition(ctx, pkg, models.StatusCancelled, o.now())
	}
	if anyRunErrored(runs) {
		return o.transition(ctx, pkg, models.StatusFailedExecution, o.now())
	}
	if err := o.transition(ctx, pkg, models.StatusExecutionComplete, o.now()); err != nil {
		return err
	}

	if err := o.transition(ctx, pkg, models.StatusQAEvalInProgress, o.now()); err != nil {
		return err
	}
	summary := o.deps.QaEvaluator.Evaluate(ctx, scenarioNames(scenarios), runs)
	pkg.QASummary = &summary

	ops, opErr := o.deps.Operations.Operations(ctx, specContent, format)
	if opErr != nil {
		slog.Warn("orchestrator: operation extraction failed, coverage will be empty", "package_id", packageID, "error", opErr)
	}
	report := o.deps.Coverage.Calculate(ops, scenarios, runs)
	pkg.Coverage = &report
	if report.TotalOperations > 0 && report.CoveragePercentage < defaultCoverageThreshold {
		o.deps.Bus.Publish(models.Event{
			Kind: models.EventKindCoverageThresholdBreach,
			At:   o.now(),
			CoverageThresholdBreach: &models.CoverageThresholdBreachPayload{
				PackageID:          pkg.ID,
				CoveragePercentage: report.CoveragePercentage,
				Threshold:          defaultCoverageThreshold,
			},
		})
	}

	if err := o.deps.Packages.Update(ctx, pkg); err != nil {
		return fmt.Errorf("persist QA summary and coverage: %w", err)
	}
	if err := o.transition(ctx, pkg, models.StatusQAEvalDone, o.now()); err != nil {
		return err
	}

	completedAt := o.now()
	pkg.CompletedAt = &completedAt
	if err := o.deps.Packages.Update(ctx, pkg); err != nil {
		return fmt.Errorf("persist completion timestamp: %w", err)
	}
	return o.transition(ctx, pkg, models.StatusComplete, completedAt)
}

func (o *Orchestrator) now() time.Time {
	if o.deps.Clock != nil {
		return o.deps.Clock.Now()
	}
	return time.Now()
}

func (o *Orchestrator) resolveSpec(ctx context.Context, pkg *models.Package) ([]byte, ports.SpecFormat, error) {
	if pkg.SpecContent != nil && *pkg.SpecContent != "" {
		content := []byte(*pkg.SpecContent)
		return content, specadapter.DetectFormat(content), nil
	}
	if pkg.SpecURL == nil || *pkg.SpecURL == "" {
		return nil, "", errors.New("package has neither specUrl nor specContent")
	}
	return o.deps.SpecFetcher.Fetch(ctx, *pkg.SpecURL)
}

func specHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func scenarioNames(scenarios []models.Scenario) map[models.ScenarioID]string {
	out := make(map[models.ScenarioID]string, len(scenarios))
	for _, sc := range scenarios {
		out[sc.ID] = sc.Name
	}
	return out
}

func anyRunErrored(runs []models.Run) bool {
	for _, r := range runs {
		if r.Status == models.RunStatusError {
			return true
		}
	}
	return false
}

// executeScenarios launches one RunExecutor task per scenario, either
// sequentially or concurrently bounded by a worker pool. If
// config.stopOnFirstFailure, the first non-PASSED terminal run cancels
// the remaining in-flight tasks.
func (o *Orchestrator) executeScenarios(ctx context.Context, pkg *models.Package, scenarios []models.Scenario) []models.Run {
	cfg := runexec.Config{StopOnFirstFailure: pkg.Config.StopOnFirstFailure, TimeoutMs: pkg.Config.TimeoutMs}

	if !pkg.Config.ParallelExecution {
		runs := make([]models.Run, 0, len(scenarios))
		for _, sc := range scenarios {
			if ctx.Err() != nil {
				break
			}
			run := o.runOneScenario(ctx, pkg, sc, cfg)
			runs = append(runs, run)
			if pkg.Config.StopOnFirstFailure && run.Status != models.RunStatusPassed {
				break
			}
		}
		return runs
	}

	runs := make([]models.Run, len(scenarios))

	poolSize := defaultMaxWorkerPoolSize
	if len(scenarios) < poolSize {
		poolSize = len(scenarios)
	}
	if poolSize < 1 {
		poolSize = 1
	}

	groupCtx, cancelGroup := context.WithCancel(ctx)
	defer cancelGroup()

	sem := make(chan struct{}, poolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var stopOnce sync.Once

	for i, sc := range scenarios {
		i, sc := i, sc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			run := o.runOneScenario(groupCtx, pkg, sc, cfg)
			mu.Lock()
			runs[i] = run
			mu.Unlock()

			if pkg.Config.StopOnFirstFailure && run.Status != models.RunStatusPassed {
				stopOnce.Do(cancelGroup)
			}
		}()
	}
	wg.Wait()
	return runs
}

func (o *Orchestrator) runOneScenario(ctx context.Context, pkg *models.Package, sc models.Scenario, cfg runexec.Config) models.Run {
	runID := models.NewRunID()
	pkgID := pkg.ID

	queued := models.Run{
		ID:         runID,
		ScenarioID: sc.ID,
		PackageID:  &pkgID,
		BaseURL:    pkg.BaseURL,
		Status:     models.RunStatusQueued,
		StartedAt:  o.now(),
	}
	if err := o.deps.Runs.Create(ctx, &queued); err != nil {
		slog.Error("orchestrator: failed to persist queued run", "run_id", runID, "error", err)
	}
	queued.Status = models.RunStatusRunning
	if err := o.deps.Runs.Update(ctx, &queued); err != nil {
		slog.Error("orchestrator: failed to persist running run", "run_id", runID, "error", err)
	}

	result := o.deps.RunExecutor.Execute(ctx, runID, sc, pkg.BaseURL, nil, cfg)
	result.PackageID = &pkgID
	if err := o.deps.Runs.Update(ctx, &result); err != nil {
		slog.Error("orchestrator: failed to persist completed run", "run_id", runID, "error", err)
	}

	passed, failed := countStepOutcomes(result.Steps)
	o.deps.Bus.Publish(models.Event{
		Kind: models.EventKindRunCompleted,
		At:   o.now(),
		RunCompleted: &models.RunCompletedPayload{
			RunID:       runID,
			PackageID:   &pkgID,
			Status:      result.Status,
			PassedSteps: passed,
			FailedSteps: failed,
			DurationMs:  result.DurationMs(),
		},
	})
	return result
}

func countStepOutcomes(steps []models.StepResult) (passed, failed int) {
	for _, s := range steps {
		if s.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// defaultOrphanThreshold bounds how long a run may sit in RUNNING before
// RecoverStuckRuns treats it as abandoned (e.g. the process that launched
// it crashed mid-execution).
const defaultOrphanThreshold = 10 * time.Minute

// RecoverStuckRuns scans for runs left RUNNING past the orphan threshold
// and marks them ERROR, so that a crashed driver never leaves a Run
// (and the package that depends on it) stuck indefinitely. Intended to be
// invoked periodically by cmd/qaorchd.
func (o *Orchestrator) RecoverStuckRuns(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = defaultOrphanThreshold
	}
	running, err := o.deps.Runs.ListByStatus(ctx, models.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("list running runs: %w", err)
	}

	cutoff := o.now().Add(-threshold)
	recovered := 0
	for _, run := range running {
		if run.StartedAt.After(cutoff) {
			continue
		}
		msg := fmt.Sprintf("orphaned: no completion recorded within %s", threshold)
		run.Status = models.RunStatusError
		run.Steps = append(run.Steps, models.NewStepResult(
			run.ID, len(run.Steps), "orphan recovery",
			nil, nil, nil, nil, nil, &msg, 0, o.now(),
		))
		completedAt := o.now()
		run.CompletedAt = &completedAt
		if err := o.deps.Runs.Update(ctx, &run); err != nil {
			slog.Error("orchestrator: failed to recover orphaned run", "run_id", run.ID, "error", err)
			continue
		}
		recovered++
		slog.Warn("orchestrator: recovered orphaned run", "run_id", run.ID, "started_at", run.StartedAt)
	}
	return recovered, nil
}
