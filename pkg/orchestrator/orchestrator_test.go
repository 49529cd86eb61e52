package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/eventbus"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/ports"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/runexec"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/scenariogen"
)

// fakePackages is an in-memory ports.PackageRepository for driving the
// state machine without a database.
type fakePackages struct {
	mu   sync.Mutex
	byID map[models.PackageID]*models.Package
}

func newFakePackages(pkg *models.Package) *fakePackages {
	cp := *pkg
	return &fakePackages{byID: map[models.PackageID]*models.Package{pkg.ID: &cp}}
}

func (f *fakePackages) Create(ctx context.Context, pkg *models.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *pkg
	f.byID[pkg.ID] = &cp
	return nil
}

func (f *fakePackages) Get(ctx context.Context, id models.PackageID) (*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pkg, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *pkg
	return &cp, nil
}

func (f *fakePackages) Update(ctx context.Context, pkg *models.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[pkg.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *pkg
	f.byID[pkg.ID] = &cp
	return nil
}

func (f *fakePackages) FindBySpecHash(ctx context.Context, specHash string) (*models.Package, error) {
	return nil, models.ErrNotFound
}

func (f *fakePackages) DeleteByPackageID(ctx context.Context, id models.PackageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakePackages) current(t *testing.T, id models.PackageID) *models.Package {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	pkg, ok := f.byID[id]
	require.True(t, ok)
	cp := *pkg
	return &cp
}

type fakeScenarios struct {
	mu     sync.Mutex
	stored map[models.PackageID][]models.Scenario
}

func newFakeScenarios() *fakeScenarios {
	return &fakeScenarios{stored: make(map[models.PackageID][]models.Scenario)}
}

func (f *fakeScenarios) CreateBatch(ctx context.Context, packageID models.PackageID, scenarios []models.Scenario) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[packageID] = scenarios
	return nil
}

func (f *fakeScenarios) ListByPackageID(ctx context.Context, packageID models.PackageID) ([]models.Scenario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[packageID], nil
}

func (f *fakeScenarios) DeleteByPackageID(ctx context.Context, packageID models.PackageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stored, packageID)
	return nil
}

type fakeRuns struct {
	mu   sync.Mutex
	byID map[models.RunID]*models.Run
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{byID: make(map[models.RunID]*models.Run)}
}

func (f *fakeRuns) Create(ctx context.Context, run *models.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.byID[run.ID] = &cp
	return nil
}

func (f *fakeRuns) Update(ctx context.Context, run *models.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.byID[run.ID] = &cp
	return nil
}

func (f *fakeRuns) Get(ctx context.Context, id models.RunID) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakeRuns) ListByPackageID(ctx context.Context, packageID models.PackageID) ([]models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Run
	for _, r := range f.byID {
		if r.PackageID != nil && *r.PackageID == packageID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRuns) ListByStatus(ctx context.Context, status models.RunStatus) ([]models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Run
	for _, r := range f.byID {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRuns) DeleteByPackageID(ctx context.Context, packageID models.PackageID) error {
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stubSpecFetcher struct {
	content []byte
	format  ports.SpecFormat
	err     error
}

func (s stubSpecFetcher) Fetch(ctx context.Context, url string) ([]byte, ports.SpecFormat, error) {
	return s.content, s.format, s.err
}

type stubOperations struct {
	ops []models.Operation
	err error
}

func (s stubOperations) Operations(ctx context.Context, specContent []byte, format ports.SpecFormat) ([]models.Operation, error) {
	return s.ops, s.err
}

type stubGenerator struct {
	scenarios []models.Scenario
	err       error
}

func (s stubGenerator) Generate(ctx context.Context, specContent, requirements string, cfg scenariogen.Config) ([]models.Scenario, error) {
	return s.scenarios, s.err
}

// stubRunExecutor returns status for every scenario it is asked to run,
// regardless of content, so tests can drive the orchestrator's transition
// logic without exercising the real HTTP step executor.
type stubRunExecutor struct {
	status models.RunStatus
}

func (s stubRunExecutor) Execute(parent context.Context, runID models.RunID, scenario models.Scenario, baseURL string, env map[string]string, cfg runexec.Config) models.Run {
	completedAt := time.Now()
	return models.Run{
		ID:          runID,
		ScenarioID:  scenario.ID,
		Status:      s.status,
		StartedAt:   completedAt.Add(-time.Millisecond),
		CompletedAt: &completedAt,
		Steps: []models.StepResult{
			{RunID: runID, StepIndex: 0, StepName: scenario.Name, Passed: s.status == models.RunStatusPassed},
		},
	}
}

type stubQaEvaluator struct{ summary models.QaSummary }

func (s stubQaEvaluator) Evaluate(ctx context.Context, scenarioNames map[models.ScenarioID]string, runs []models.Run) models.QaSummary {
	return s.summary
}

type stubCoverage struct{ report models.CoverageReport }

func (s stubCoverage) Calculate(operations []models.Operation, scenarios []models.Scenario, runs []models.Run) models.CoverageReport {
	return s.report
}

func newTestScenario() models.Scenario {
	return models.Scenario{
		ID:   models.NewScenarioID(),
		Name: "list pets",
		Steps: []models.Step{{Index: 0, Name: "GET /pets", Method: models.MethodGet, Endpoint: "/pets", TimeoutMs: 5000}},
	}
}

func basePackage() *models.Package {
	specContent := `{"openapi":"3.0.3"}`
	return &models.Package{
		ID:          models.NewPackageID(),
		Name:        "pets",
		SpecContent: &specContent,
		BaseURL:     "http://example.test",
		Status:      models.StatusRequested,
		Config:      models.DefaultPackageConfig(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestRun_HappyPath_EndsComplete(t *testing.T) {
	pkg := basePackage()
	packages := newFakePackages(pkg)
	scenario := newTestScenario()

	orch := New(Deps{
		Packages:    packages,
		Scenarios:   newFakeScenarios(),
		Runs:        newFakeRuns(),
		SpecFetcher: stubSpecFetcher{},
		Operations:  stubOperations{ops: []models.Operation{{Method: "GET", Path: "/pets"}}},
		Clock:       fixedClock{time.Now()},
		Generator:   stubGenerator{scenarios: []models.Scenario{scenario}},
		RunExecutor: stubRunExecutor{status: models.RunStatusPassed},
		QaEvaluator: stubQaEvaluator{summary: models.QaSummary{Verdict: models.VerdictPass, PassedCount: 1}},
		Coverage:    stubCoverage{report: models.CoverageReport{TotalOperations: 1, CoveredOperations: 1, CoveragePercentage: 100}},
		Bus:         eventbus.New(16),
	})

	require.NoError(t, orch.Run(context.Background(), pkg.ID))

	final := packages.current(t, pkg.ID)
	assert.Equal(t, models.StatusComplete, final.Status)
	require.NotNil(t, final.Coverage)
	assert.Equal(t, 100.0, final.Coverage.CoveragePercentage)
	require.NotNil(t, final.QASummary)
	assert.NotNil(t, final.CompletedAt)
}

func TestRun_SpecFetchFailure_EndsFailedSpecFetch(t *testing.T) {
	specURL := "http://spec.invalid/openapi.yaml"
	pkg := basePackage()
	pkg.SpecContent = nil
	pkg.SpecURL = &specURL
	packages := newFakePackages(pkg)

	orch := New(Deps{
		Packages:    packages,
		Scenarios:   newFakeScenarios(),
		Runs:        newFakeRuns(),
		SpecFetcher: stubSpecFetcher{err: assertAnError{}},
		Operations:  stubOperations{},
		Clock:       fixedClock{time.Now()},
		Bus:         eventbus.New(16),
	})

	require.NoError(t, orch.Run(context.Background(), pkg.ID))
	assert.Equal(t, models.StatusFailedSpecFetch, packages.current(t, pkg.ID).Status)
}

func TestRun_GenerationFailure_EndsFailedGeneration(t *testing.T) {
	pkg := basePackage()
	packages := newFakePackages(pkg)

	orch := New(Deps{
		Packages:    packages,
		Scenarios:   newFakeScenarios(),
		Runs:        newFakeRuns(),
		SpecFetcher: stubSpecFetcher{},
		Operations:  stubOperations{},
		Clock:       fixedClock{time.Now()},
		Generator:   stubGenerator{err: assertAnError{}},
		Bus:         eventbus.New(16),
	})

	require.NoError(t, orch.Run(context.Background(), pkg.ID))
	assert.Equal(t, models.StatusFailedGeneration, packages.current(t, pkg.ID).Status)
}

func TestRun_ExecutionFailure_EndsFailedExecution(t *testing.T) {
	pkg := basePackage()
	packages := newFakePackages(pkg)
	scenario := newTestScenario()

	orch := New(Deps{
		Packages:    packages,
		Scenarios:   newFakeScenarios(),
		Runs:        newFakeRuns(),
		SpecFetcher: stubSpecFetcher{},
		Operations:  stubOperations{},
		Clock:       fixedClock{time.Now()},
		Generator:   stubGenerator{scenarios: []models.Scenario{scenario}},
		RunExecutor: stubRunExecutor{status: models.RunStatusError},
		Bus:         eventbus.New(16),
	})

	require.NoError(t, orch.Run(context.Background(), pkg.ID))
	assert.Equal(t, models.StatusFailedExecution, packages.current(t, pkg.ID).Status)
}

func TestRun_CoverageBelowThreshold_PublishesBreachEvent(t *testing.T) {
	pkg := basePackage()
	packages := newFakePackages(pkg)
	scenario := newTestScenario()
	bus := eventbus.New(16)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	orch := New(Deps{
		Packages:    packages,
		Scenarios:   newFakeScenarios(),
		Runs:        newFakeRuns(),
		SpecFetcher: stubSpecFetcher{},
		Operations:  stubOperations{},
		Clock:       fixedClock{time.Now()},
		Generator:   stubGenerator{scenarios: []models.Scenario{scenario}},
		RunExecutor: stubRunExecutor{status: models.RunStatusPassed},
		QaEvaluator: stubQaEvaluator{},
		Coverage:    stubCoverage{report: models.CoverageReport{TotalOperations: 4, CoveredOperations: 1, CoveragePercentage: 25}},
		Bus:         bus,
	})

	require.NoError(t, orch.Run(context.Background(), pkg.ID))

	var sawBreach bool
	for {
		select {
		case evt := <-sub.Events:
			if evt.Kind == models.EventKindCoverageThresholdBreach {
				sawBreach = true
				assert.Equal(t, 25.0, evt.CoverageThresholdBreach.CoveragePercentage)
			}
		default:
			assert.True(t, sawBreach, "expected a coverage threshold breach event")
			return
		}
	}
}

func TestCancel_UnknownPackage_ReturnsFalse(t *testing.T) {
	orch := New(Deps{Bus: eventbus.New(1)})
	assert.False(t, orch.Cancel(models.NewPackageID()))
}

func TestTransition_DisallowedEdgeIsRejected(t *testing.T) {
	pkg := basePackage()
	pkg.Status = models.StatusRequested
	packages := newFakePackages(pkg)
	orch := New(Deps{Packages: packages, Bus: eventbus.New(1)})

	err := orch.transition(context.Background(), pkg, models.StatusComplete, time.Now())
	require.Error(t, err)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.StatusRequested, invalid.From)
	assert.Equal(t, models.StatusComplete, invalid.To)
}

func TestRecoverStuckRuns_MarksOldRunningAsError(t *testing.T) {
	runs := newFakeRuns()
	now := time.Now()

	stale := models.Run{ID: models.NewRunID(), Status: models.RunStatusRunning, StartedAt: now.Add(-time.Hour)}
	fresh := models.Run{ID: models.NewRunID(), Status: models.RunStatusRunning, StartedAt: now.Add(-time.Second)}
	require.NoError(t, runs.Create(context.Background(), &stale))
	require.NoError(t, runs.Create(context.Background(), &fresh))

	orch := New(Deps{Runs: runs, Clock: fixedClock{now}, Bus: eventbus.New(1)})

	recovered, err := orch.RecoverStuckRuns(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := runs.Get(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, got.Status)

	got, err = runs.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
}

// assertAnError is a trivial sentinel error for tests that only need Fetch
// or Generate to fail, not to inspect the error's content.
type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }
