package models

import "time"

// EventKind discriminates the process-wide event bus's payload types.
type EventKind string

const (
	EventKindPackageStatusChanged    EventKind = "PACKAGE_STATUS_CHANGED"
	EventKindRunCompleted            EventKind = "RUN_COMPLETED"
	EventKindCoverageThresholdBreach EventKind = "COVERAGE_THRESHOLD_BREACH"
)

// Event is the envelope published on the process-wide event bus. Exactly
// one of the typed payload fields is populated, selected by Kind.
type Event struct {
	Kind EventKind
	At   time.Time

	PackageStatusChanged    *PackageStatusChangedPayload
	RunCompleted            *RunCompletedPayload
	CoverageThresholdBreach *CoverageThresholdBreachPayload
}

// PackageStatusChangedPayload carries a single state-machine transition.
type PackageStatusChangedPayload struct {
	PackageID PackageID
	From      PackageStatus
	To        PackageStatus
}

// RunCompletedPayload summarizes a terminal Run for subscribers that don't
// need the full step-by-step detail.
type RunCompletedPayload struct {
	RunID       RunID
	PackageID   *PackageID
	Status      RunStatus
	PassedSteps int
	FailedSteps int
	DurationMs  int64
}

// CoverageThresholdBreachPayload reports that a package's computed coverage
// fell below a configured threshold.
type CoverageThresholdBreachPayload struct {
	PackageID          PackageID
	CoveragePercentage float64
	Threshold          float64
}
