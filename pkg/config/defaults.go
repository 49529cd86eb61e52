package config

import (
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// defaultServer, defaultLLM, defaultResilience and defaultDatabase hold the
// built-in values applied when qaorchd.yaml omits a section entirely.
// defaultDatabase sets no DSN, so qaorchd.yaml must supply database.dsn;
// without it Load fails validation.
func defaultServer() ServerConfig {
	return ServerConfig{Addr: ":8080"}
}

func defaultLLM() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		APIKeyEnv:   "QAORCHD_LLM_API_KEY",
		Temperature: 0.2,
	}
}

func defaultResilience() ResilienceConfig {
	return ResilienceConfig{
		MaxConcurrent:        8,
		RateLimitPerSecond:   5,
		RateLimitBurst:       10,
		CircuitFailureRatio:  0.5,
		CircuitSleepWindowMs: int(30 * time.Second / time.Millisecond),
		RetryMaxAttempts:     3,
	}
}

func defaultDatabase() DatabaseConfig {
	return DatabaseConfig{
		MigrationsPath: "pkg/storage/postgres/migrations",
		MaxOpenConns:   10,
	}
}

// applyPackageDefaults overlays a YAML-supplied PackageDefaultsYAML on top
// of models.DefaultPackageConfig(), leaving any omitted field at its
// built-in value.
func applyPackageDefaults(overrides *PackageDefaultsYAML) models.PackageConfig {
	cfg := models.DefaultPackageConfig()
	if overrides == nil {
		return cfg
	}
	if overrides.MaxScenarios != nil {
		cfg.MaxScenarios = *overrides.MaxScenarios
	}
	if overrides.MaxStepsPerScenario != nil {
		cfg.MaxStepsPerScenario = *overrides.MaxStepsPerScenario
	}
	if overrides.TimeoutMs != nil {
		cfg.TimeoutMs = *overrides.TimeoutMs
	}
	if overrides.ParallelExecution != nil {
		cfg.ParallelExecution = *overrides.ParallelExecution
	}
	if overrides.StopOnFirstFailure != nil {
		cfg.StopOnFirstFailure = *overrides.StopOnFirstFailure
	}
	return cfg
}
