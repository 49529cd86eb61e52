package models

// ScenarioSource identifies how a scenario came to exist.
type ScenarioSource string

const (
	ScenarioSourceAIGenerated ScenarioSource = "AI_GENERATED"
	ScenarioSourceManual      ScenarioSource = "MANUAL"
	ScenarioSourceImported    ScenarioSource = "IMPORTED"
)

// ScenarioStatus tracks a scenario independent of any particular Run.
type ScenarioStatus string

const (
	ScenarioStatusPending ScenarioStatus = "PENDING"
	ScenarioStatusReady   ScenarioStatus = "READY"
	ScenarioStatusRetired ScenarioStatus = "RETIRED"
)

// Scenario is a named, ordered sequence of Steps.
type Scenario struct {
	ID          ScenarioID
	PackageID   *PackageID
	SuiteID     *string
	Name        string
	Description string
	Steps       []Step
	Tags        []string
	Source      ScenarioSource
	Status      ScenarioStatus
}

// Validate enforces the scenario-level invariants: step indices form a
// strictly increasing sequence starting at 0 (canonical order), and the
// step count does not exceed maxStepsPerScenario.
func (s Scenario) Validate(maxSteps int) error {
	if s.Name == "" {
		return NewValidationError("name", "must not be blank")
	}
	if len(s.Steps) == 0 {
		return NewValidationError("steps", "must not be empty")
	}
	if maxSteps > 0 && len(s.Steps) > maxSteps {
		return NewValidationError("steps", "exceeds maxStepsPerScenario")
	}
	seen := make(map[int]bool, len(s.Steps))
	for _, step := range s.Steps {
		if seen[step.Index] {
			return NewValidationError("steps", "duplicate step index")
		}
		seen[step.Index] = true
		if err := step.Validate(); err != nil {
			return err
		}
	}
	for i := 0; i < len(s.Steps); i++ {
		if !seen[i] {
			return NewValidationError("steps", "step indices are not a contiguous 0-based sequence")
		}
	}
	return nil
}

// OrderedSteps returns a copy of Steps sorted by Index. Callers that
// construct a Scenario from an unordered source (e.g. JSON from an LLM)
// should call this before Validate/execution.
func (s Scenario) OrderedSteps() []Step {
	out := make([]Step, len(s.Steps))
	copy(out, s.Steps)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Index < out[j-1].Index; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
