package qasummary

import (
	"context"
	"testing"
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/llm"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	content string
	resp    llm.Response
	err     error
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	if f.content != "" {
		return llm.Response{ID: "r1", Choices: []llm.Choice{{Message: llm.Message{Content: f.content}}}}, nil
	}
	return f.resp, nil
}

func passedRun(scenarioID models.ScenarioID) models.Run {
	return models.Run{
		ScenarioID: scenarioID,
		Status:     models.RunStatusPassed,
		StartedAt:  time.Now(),
		Steps: []models.StepResult{
			models.NewStepResult("r1", 0, "step", nil, nil, nil, nil, nil, nil, 1, time.Now()),
		},
	}
}

func failedRun(scenarioID models.ScenarioID) models.Run {
	msg := "expected status 200, got 500"
	return models.Run{
		ScenarioID: scenarioID,
		Status:     models.RunStatusFailed,
		StartedAt:  time.Now(),
		Steps: []models.StepResult{
			models.NewStepResult("r2", 0, "step", nil, nil, nil,
				[]models.AssertionResult{{Type: "status", Passed: false, Message: msg}},
				nil, nil, 1, time.Now()),
		},
	}
}

func TestEvaluate_ValidVerdict_ParsesAndClampsScores(t *testing.T) {
	content := `{"verdict":"PASS_WITH_WARNINGS","summary":"mostly fine","findings":["f1"],"recommendations":["r1"],"risk":{"qualityScore":150,"stabilityScore":-10,"securityScore":90}}`
	e := New(&fakeCompleter{content: content}, "gpt-test")
	names := map[models.ScenarioID]string{"s1": "list pets"}

	summary := e.Evaluate(context.Background(), names, []models.Run{passedRun("s1")})

	require.Equal(t, models.VerdictPassWithWarnings, summary.Verdict)
	assert.Equal(t, "mostly fine", summary.Summary)
	require.NotNil(t, summary.Risk)
	assert.Equal(t, 100, summary.Risk.QualityScore, "clamped to max")
	assert.Equal(t, 0, summary.Risk.StabilityScore, "clamped to min")
	require.NotNil(t, summary.Risk.SecurityScore)
	assert.Equal(t, 90, *summary.Risk.SecurityScore)
	assert.Equal(t, 1, summary.PassedCount)
}

func TestEvaluate_UnparseableJSON_FallsBackInconclusive(t *testing.T) {
	e := New(&fakeCompleter{content: "not json"}, "gpt-test")

	summary := e.Evaluate(context.Background(), nil, []models.Run{failedRun("s1")})

	assert.Equal(t, models.VerdictInconclusive, summary.Verdict)
	assert.Equal(t, 1, summary.FailedCount)
	assert.NotEmpty(t, summary.Summary)
}

func TestEvaluate_UnknownVerdictString_FallsBackInconclusive(t *testing.T) {
	content := `{"verdict":"MAYBE","summary":"uncertain"}`
	e := New(&fakeCompleter{content: content}, "gpt-test")

	summary := e.Evaluate(context.Background(), nil, nil)

	assert.Equal(t, models.VerdictInconclusive, summary.Verdict)
}

func TestEvaluate_LlmError_FallsBackInconclusive(t *testing.T) {
	e := New(&fakeCompleter{err: assert.AnError}, "gpt-test")

	summary := e.Evaluate(context.Background(), nil, []models.Run{passedRun("s1")})

	assert.Equal(t, models.VerdictInconclusive, summary.Verdict)
	assert.Equal(t, 1, summary.PassedCount)
}

func TestEvaluate_FallbackResponse_FallsBackInconclusive(t *testing.T) {
	e := New(&fakeCompleter{resp: llm.FallbackResponse("circuit_open")}, "gpt-test")

	summary := e.Evaluate(context.Background(), nil, nil)

	assert.Equal(t, models.VerdictInconclusive, summary.Verdict)
}

func TestEvaluate_CountsPassedFailedErrorRuns(t *testing.T) {
	content := `{"verdict":"FAIL","summary":"issues found"}`
	e := New(&fakeCompleter{content: content}, "gpt-test")

	errRun := models.Run{ScenarioID: "s3", Status: models.RunStatusError, StartedAt: time.Now()}
	summary := e.Evaluate(context.Background(), nil, []models.Run{passedRun("s1"), failedRun("s2"), errRun})

	assert.Equal(t, 1, summary.PassedCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, 1, summary.ErrorCount)
}
