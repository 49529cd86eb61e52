// Package scenariogen prompts the resilient LLM client for a JSON list of
// scenarios, validates what comes back, and truncates to the configured
// maximum.
package scenariogen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/llm"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// ErrGenerationFailed is raised when the LLM returns unparseable JSON or
// zero valid scenarios survive validation. Callers (the Orchestrator) move
// the owning Package to FAILED_GENERATION on this error.
var ErrGenerationFailed = errors.New("GenerationFailed")

// Completer is the subset of ResilientAiClient the generator needs,
// narrowed to ease testing with a fake.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Config bounds the shape of generated scenarios.
type Config struct {
	MaxScenarios        int
	MaxStepsPerScenario int
	Model               string
	Temperature         float64
}

// Generator turns an API specification into executable test scenarios.
type Generator struct {
	client Completer
	idGen  func() models.ScenarioID
}

// New builds a Generator calling client for completions. idGen defaults to
// models.NewScenarioID when nil.
func New(client Completer, idGen func() models.ScenarioID) *Generator {
	if idGen == nil {
		idGen = models.NewScenarioID
	}
	return &Generator{client: client, idGen: idGen}
}

// Generate turns (specContent, requirements, cfg) into an ordered list of
// validated, AI_GENERATED scenarios.
func (g *Generator) Generate(ctx context.Context, specContent string, requirements string, cfg Config) ([]models.Scenario, error) {
	prompt := buildPrompt(specContent, requirements, cfg)

	resp, err := g.client.Complete(ctx, llm.Request{
		Model:          cfg.Model,
		Temperature:    cfg.Temperature,
		ResponseFormat: llm.ResponseFormatJSON,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: llm call failed: %v", ErrGenerationFailed, err)
	}
	if llm.IsFallback(resp) {
		return nil, fmt.Errorf("%w: llm unavailable", ErrGenerationFailed)
	}

	var wire generatedScenarios
	if jsonErr := json.Unmarshal([]byte(resp.Content()), &wire); jsonErr != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %v", ErrGenerationFailed, jsonErr)
	}

	var valid []models.Scenario
	for _, ws := range wire.Scenarios {
		scenario, convErr := ws.toModel(g.idGen(), cfg.MaxStepsPerScenario)
		if convErr != nil {
			slog.Warn("rejecting invalid generated scenario", "name", ws.Name, "error", convErr)
			continue
		}
		valid = append(valid, scenario)
	}

	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: zero valid scenarios", ErrGenerationFailed)
	}

	if cfg.MaxScenarios > 0 && len(valid) > cfg.MaxScenarios {
		valid = valid[:cfg.MaxScenarios]
	}
	return valid, nil
}

const systemPrompt = `You are an API test scenario generator. Given an API specification, emit a JSON object of the form {"scenarios":[{"name":string,"description":string,"steps":[{"index":int,"name":string,"method":string,"endpoint":string,"headers":[{"name":string,"value":string}],"body":string|null,"expected":{"status":int|null,"statusRange":{"min":int,"max":int}|null,"bodyContains":[string],"fields":{"path":{"type":string,"value":string,"pattern":string,"values":[string],"number":number}},"headers":[{"name":string,"value":string}]},"extractions":{"name":"jsonPath"},"timeoutMs":int}]}]}. Output JSON only, no prose.`

func buildPrompt(specContent, requirements string, cfg Config) string {
	req := requirements
	if req == "" {
		req = "none provided"
	}
	return fmt.Sprintf(
		"API specification:\n%s\n\nAdditional requirements: %s\n\nGenerate at most %d scenarios, each with at most %d steps.",
		specContent, req, cfg.MaxScenarios, cfg.MaxStepsPerScenario,
	)
}
