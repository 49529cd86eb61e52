package models

import "time"

// PackageStatus is the package lifecycle driven by the orchestrator.
type PackageStatus string

const (
	StatusRequested           PackageStatus = "REQUESTED"
	StatusSpecFetched         PackageStatus = "SPEC_FETCHED"
	StatusFailedSpecFetch     PackageStatus = "FAILED_SPEC_FETCH"
	StatusAISuccess           PackageStatus = "AI_SUCCESS"
	StatusFailedGeneration    PackageStatus = "FAILED_GENERATION"
	StatusExecutionInProgress PackageStatus = "EXECUTION_IN_PROGRESS"
	StatusFailedExecution     PackageStatus = "FAILED_EXECUTION"
	StatusExecutionComplete   PackageStatus = "EXECUTION_COMPLETE"
	StatusQAEvalInProgress    PackageStatus = "QA_EVAL_IN_PROGRESS"
	StatusQAEvalDone          PackageStatus = "QA_EVAL_DONE"
	StatusComplete            PackageStatus = "COMPLETE"
	StatusCancelled           PackageStatus = "CANCELLED"
)

// IsTerminal reports whether status forbids any further outgoing transition.
func (s PackageStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusFailedSpecFetch, StatusFailedGeneration,
		StatusFailedExecution, StatusCancelled:
		return true
	default:
		return false
	}
}

// PackageConfig enumerates orchestration options.
type PackageConfig struct {
	MaxScenarios         int    `yaml:"max_scenarios" validate:"min=1"`
	MaxStepsPerScenario  int    `yaml:"max_steps_per_scenario" validate:"min=1"`
	TimeoutMs            int    `yaml:"timeout_ms" validate:"min=1000"`
	ParallelExecution    bool   `yaml:"parallel_execution"`
	StopOnFirstFailure   bool   `yaml:"stop_on_first_failure"`
	IncludeSecurityTests bool   `yaml:"include_security_tests"`
	AIProvider           string `yaml:"ai_provider"`
	AIModel              string `yaml:"ai_model"`
}

// DefaultPackageConfig returns the built-in orchestration defaults.
func DefaultPackageConfig() PackageConfig {
	return PackageConfig{
		MaxScenarios:        10,
		MaxStepsPerScenario: 10,
		TimeoutMs:           300_000,
		ParallelExecution:   true,
		StopOnFirstFailure:  false,
	}
}

// Package is the orchestration aggregate root.
type Package struct {
	ID PackageID

	Name        string
	Description *string

	// At least one of SpecURL / SpecContent must be non-empty; when both
	// are set, the orchestrator uses SpecContent.
	SpecURL     *string
	SpecContent *string
	SpecHash    string // SHA-256 of the resolved spec content

	BaseURL      string
	Requirements *string

	Status PackageStatus
	Config PackageConfig

	Coverage  *CoverageReport
	QASummary *QaSummary

	TriggeredBy string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Validate enforces the Package-level structural invariants.
// Status-graph invariants are enforced separately by the orchestrator's
// transition table, not here (this function never mutates state).
func (p Package) Validate() error {
	if p.Name == "" {
		return NewValidationError("name", "must not be blank")
	}
	if p.BaseURL == "" {
		return NewValidationError("baseUrl", "must not be blank")
	}
	hasURL := p.SpecURL != nil && *p.SpecURL != ""
	hasContent := p.SpecContent != nil && *p.SpecContent != ""
	if !hasURL && !hasContent {
		return NewValidationError("spec", "at least one of specUrl or specContent is required")
	}
	if p.StartedAt != nil && p.StartedAt.Before(p.CreatedAt) {
		return NewValidationError("startedAt", "must not precede createdAt")
	}
	if p.CompletedAt != nil && p.StartedAt != nil && p.CompletedAt.Before(*p.StartedAt) {
		return NewValidationError("completedAt", "must not precede startedAt")
	}
	return nil
}
