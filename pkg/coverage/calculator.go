// Package coverage maps executed scenario steps back onto the operations
// declared by the tested API and classifies each as COVERED, FAILING, or
// UNTESTED.
package coverage

import (
	"strings"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// Calculator computes operation-level coverage.
type Calculator struct{}

// New builds a Calculator.
func New() *Calculator {
	return &Calculator{}
}

// Calculate compares operations (declared by the tested API) against the
// steps of scenarios as exercised by runs, producing one CoverageReport.
// CoveragePercentage is 0 when operations is empty; CoveredOperations
// never exceeds len(operations).
func (c *Calculator) Calculate(operations []models.Operation, scenarios []models.Scenario, runs []models.Run) models.CoverageReport {
	stepsByScenario := make(map[models.ScenarioID]map[int]models.Step, len(scenarios))
	for _, sc := range scenarios {
		byIndex := make(map[int]models.Step, len(sc.Steps))
		for _, st := range sc.Steps {
			byIndex[st.Index] = st
		}
		stepsByScenario[sc.ID] = byIndex
	}

	type touch struct {
		anyPassed   bool
		scenarioIDs map[models.ScenarioID]struct{}
	}
	touches := make(map[string]*touch)

	for _, run := range runs {
		steps := stepsByScenario[run.ScenarioID]
		if steps == nil {
			continue
		}
		for _, result := range run.Steps {
			step, ok := steps[result.StepIndex]
			if !ok {
				continue
			}
			key := normalizeKey(string(step.Method), step.Endpoint)
			t, ok := touches[key]
			if !ok {
				t = &touch{scenarioIDs: make(map[models.ScenarioID]struct{})}
				touches[key] = t
			}
			t.scenarioIDs[run.ScenarioID] = struct{}{}
			if result.Passed {
				t.anyPassed = true
			}
		}
	}

	report := models.CoverageReport{
		TotalOperations: len(operations),
		Operations:      make([]models.OperationCoverage, 0, len(operations)),
	}

	for _, op := range operations {
		key := normalizeKey(op.Method, op.Path)
		t := touches[key]

		row := models.OperationCoverage{
			OperationID: op.OperationID,
			Method:      op.Method,
			Path:        op.Path,
			Status:      models.OperationUntested,
		}
		switch {
		case t == nil:
			report.Gaps = append(report.Gaps, op)
		case t.anyPassed:
			row.Status = models.OperationCovered
			report.CoveredOperations++
		default:
			row.Status = models.OperationFailing
		}
		if t != nil {
			row.ScenarioIDs = scenarioIDSlice(t.scenarioIDs)
		}
		report.Operations = append(report.Operations, row)
	}

	if report.TotalOperations > 0 {
		report.CoveragePercentage = 100 * float64(report.CoveredOperations) / float64(report.TotalOperations)
	}
	return report
}

func scenarioIDSlice(set map[models.ScenarioID]struct{}) []models.ScenarioID {
	ids := make([]models.ScenarioID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// normalizeKey collapses path template placeholders (both "${var}" and
// "{var}" forms) into a single wildcard token so that a step dispatched
// against "/pets/${id}" matches an operation declared as "/pets/{id}".
func normalizeKey(method, path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isPlaceholder(seg) {
			segments[i] = "*"
		}
	}
	return strings.ToUpper(method) + " " + strings.Join(segments, "/")
}

func isPlaceholder(seg string) bool {
	if strings.HasPrefix(seg, "${") && strings.HasSuffix(seg, "}") {
		return true
	}
	if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return true
	}
	return false
}
