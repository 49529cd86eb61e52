// Package qasummary serializes a compact report of completed runs, asks
// the resilient LLM client for a verdict, and validates or falls back
// deterministically on failure.
package qasummary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/llm"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

const maxFailureExcerpts = 5

// Completer is the subset of ResilientAiClient the evaluator needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Evaluator produces the aggregate verdict over a package's runs.
type Evaluator struct {
	client Completer
	model  string
}

// New builds an Evaluator calling client for completions.
func New(client Completer, model string) *Evaluator {
	return &Evaluator{client: client, model: model}
}

type runSummary struct {
	ScenarioName    string   `json:"scenarioName"`
	Status          string   `json:"status"`
	PassedSteps     int      `json:"passedSteps"`
	FailedSteps     int      `json:"failedSteps"`
	FailureExcerpts []string `json:"failureExcerpts,omitempty"`
}

type report struct {
	Runs []runSummary `json:"runs"`
}

type wireVerdict struct {
	Verdict         string   `json:"verdict"`
	Summary         string   `json:"summary"`
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
	Risk            *struct {
		QualityScore   int  `json:"qualityScore"`
		StabilityScore int  `json:"stabilityScore"`
		SecurityScore  *int `json:"securityScore"`
	} `json:"risk"`
}

// Evaluate summarizes runs (paired with the scenario each belongs to) into
// a QaSummary. On any LLM failure or invalid JSON, it returns a
// deterministic fallback with verdict = INCONCLUSIVE rather than an error —
// the evaluator never propagates a Go error.
func (e *Evaluator) Evaluate(ctx context.Context, scenarioNames map[models.ScenarioID]string, runs []models.Run) models.QaSummary {
	passed, failed, errored := countStatuses(runs)
	rpt := buildReport(scenarioNames, runs)

	body, err := json.Marshal(rpt)
	if err != nil {
		return fallback(fmt.Sprintf("failed to serialize run report: %v", err), passed, failed, errored)
	}

	resp, err := e.client.Complete(ctx, llm.Request{
		Model:          e.model,
		ResponseFormat: llm.ResponseFormatJSON,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(body)},
		},
	})
	if err != nil {
		return fallback(fmt.Sprintf("llm call failed: %v", err), passed, failed, errored)
	}
	if llm.IsFallback(resp) {
		return fallback("llm unavailable", passed, failed, errored)
	}

	var wv wireVerdict
	if jsonErr := json.Unmarshal([]byte(resp.Content()), &wv); jsonErr != nil {
		slog.Warn("qa summary: llm returned invalid JSON", "error", jsonErr)
		return fallback(fmt.Sprintf("llm returned invalid JSON: %v", jsonErr), passed, failed, errored)
	}

	verdict := models.Verdict(wv.Verdict)
	if !verdict.IsValid() {
		return fallback(fmt.Sprintf("llm returned unknown verdict %q", wv.Verdict), passed, failed, errored)
	}

	summary := models.QaSummary{
		Verdict:         verdict,
		Summary:         wv.Summary,
		PassedCount:     passed,
		FailedCount:     failed,
		ErrorCount:      errored,
		Findings:        wv.Findings,
		Recommendations: wv.Recommendations,
	}
	if wv.Risk != nil {
		risk := models.RiskScores{
			QualityScore:   wv.Risk.QualityScore,
			StabilityScore: wv.Risk.StabilityScore,
			SecurityScore:  wv.Risk.SecurityScore,
		}
		risk.Clamp()
		summary.Risk = &risk
	}
	return summary
}

func fallback(reason string, passed, failed, errored int) models.QaSummary {
	return models.QaSummary{
		Verdict:     models.VerdictInconclusive,
		Summary:     reason,
		PassedCount: passed,
		FailedCount: failed,
		ErrorCount:  errored,
	}
}

func countStatuses(runs []models.Run) (passed, failed, errored int) {
	for _, r := range runs {
		switch r.Status {
		case models.RunStatusPassed:
			passed++
		case models.RunStatusFailed:
			failed++
		case models.RunStatusError:
			errored++
		}
	}
	return passed, failed, errored
}

func buildReport(scenarioNames map[models.ScenarioID]string, runs []models.Run) report {
	rpt := report{Runs: make([]runSummary, 0, len(runs))}
	for _, r := range runs {
		rs := runSummary{
			ScenarioName: scenarioNames[r.ScenarioID],
			Status:       string(r.Status),
		}
		for _, step := range r.Steps {
			if step.Passed {
				rs.PassedSteps++
				continue
			}
			rs.FailedSteps++
			if len(rs.FailureExcerpts) < maxFailureExcerpts {
				rs.FailureExcerpts = append(rs.FailureExcerpts, failureExcerpt(step))
			}
		}
		rpt.Runs = append(rpt.Runs, rs)
	}
	return rpt
}

func failureExcerpt(step models.StepResult) string {
	if step.ErrorMessage != nil {
		return fmt.Sprintf("step %d (%s): %s", step.StepIndex, step.StepName, *step.ErrorMessage)
	}
	for _, a := range step.Assertions {
		if !a.Passed {
			return fmt.Sprintf("step %d (%s): %s", step.StepIndex, step.StepName, a.Message)
		}
	}
	return fmt.Sprintf("step %d (%s): failed", step.StepIndex, step.StepName)
}

const systemPrompt = `You are a QA analyst. Given a JSON report of test runs, respond with JSON only: {"verdict":"PASS|PASS_WITH_WARNINGS|FAIL|ERROR|INCONCLUSIVE","summary":string,"findings":[string],"recommendations":[string],"risk":{"qualityScore":int,"stabilityScore":int,"securityScore":int|null}}.`
