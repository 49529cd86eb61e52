package scenariogen

import (
	"fmt"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// generatedScenarios is the top-level JSON envelope the LLM is instructed
// to emit; see systemPrompt in generator.go for the schema description.
type generatedScenarios struct {
	Scenarios []wireScenario `json:"scenarios"`
}

type wireScenario struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Steps       []wireStep `json:"steps"`
}

type wireStep struct {
	Index       int               `json:"index"`
	Name        string            `json:"name"`
	Method      string            `json:"method"`
	Endpoint    string            `json:"endpoint"`
	Headers     []wireHeader      `json:"headers"`
	Body        *string           `json:"body"`
	Expected    wireExpected      `json:"expected"`
	Extractions map[string]string `json:"extractions"`
	TimeoutMs   int               `json:"timeoutMs"`
}

type wireHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type wireExpected struct {
	Status       *int                           `json:"status"`
	StatusRange  *wireStatusRange               `json:"statusRange"`
	BodyContains []string                       `json:"bodyContains"`
	Fields       map[string]models.FieldMatcher `json:"fields"`
	Headers      []wireHeader                   `json:"headers"`
}

type wireStatusRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// toModel converts a wireScenario into a validated models.Scenario. Any
// structural violation (duplicate/missing indices, unknown method, endpoint
// too long, step count over max) rejects the whole scenario.
func (ws wireScenario) toModel(id models.ScenarioID, maxSteps int) (models.Scenario, error) {
	steps := make([]models.Step, 0, len(ws.Steps))
	for _, wstep := range ws.Steps {
		step, err := wstep.toModel()
		if err != nil {
			return models.Scenario{}, err
		}
		steps = append(steps, step)
	}

	scenario := models.Scenario{
		ID:          id,
		Name:        ws.Name,
		Description: ws.Description,
		Steps:       steps,
		Source:      models.ScenarioSourceAIGenerated,
		Status:      models.ScenarioStatusReady,
	}
	if err := scenario.Validate(maxSteps); err != nil {
		return models.Scenario{}, err
	}
	return scenario, nil
}

func (wstep wireStep) toModel() (models.Step, error) {
	method := models.HTTPMethod(wstep.Method)
	if !method.IsValid() {
		return models.Step{}, fmt.Errorf("unknown HTTP method: %s", wstep.Method)
	}
	if len(wstep.Endpoint) > models.MaxEndpointLen {
		return models.Step{}, fmt.Errorf("endpoint exceeds %d characters", models.MaxEndpointLen)
	}

	headers := make([]models.Header, 0, len(wstep.Headers))
	for _, h := range wstep.Headers {
		headers = append(headers, models.Header{Name: h.Name, Value: h.Value})
	}

	expectedHeaders := make([]models.Header, 0, len(wstep.Expected.Headers))
	for _, h := range wstep.Expected.Headers {
		expectedHeaders = append(expectedHeaders, models.Header{Name: h.Name, Value: h.Value})
	}

	var statusRange *models.StatusRange
	if wstep.Expected.StatusRange != nil {
		statusRange = &models.StatusRange{Min: wstep.Expected.StatusRange.Min, Max: wstep.Expected.StatusRange.Max}
	}

	timeout := wstep.TimeoutMs
	if timeout == 0 {
		timeout = models.MinStepTimeoutMs * 300 // 30s default when the LLM omits it
	}

	step := models.Step{
		Index:    wstep.Index,
		Name:     wstep.Name,
		Method:   method,
		Endpoint: wstep.Endpoint,
		Headers:  headers,
		Body:     wstep.Body,
		Expected: models.ExpectedResult{
			Status:       wstep.Expected.Status,
			StatusRange:  statusRange,
			BodyContains: wstep.Expected.BodyContains,
			Fields:       wstep.Expected.Fields,
			Headers:      expectedHeaders,
		},
		Extractions: wstep.Extractions,
		TimeoutMs:   timeout,
	}
	if err := step.Validate(); err != nil {
		return models.Step{}, err
	}
	return step, nil
}
