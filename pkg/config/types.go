// Package config loads and validates process configuration for cmd/qaorchd:
// YAML files merged with environment overrides, then validated with struct
// tags. It also exposes PackageConfig/WebhookConfig defaults and validation
// for the orchestration core itself.
package config

import "github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"

// YAMLConfig is the top-level shape of qaorchd.yaml.
type YAMLConfig struct {
	Server        ServerConfig         `yaml:"server"`
	LLM           LLMConfig            `yaml:"llm"`
	Resilience    ResilienceConfig     `yaml:"resilience"`
	PackageConfig *PackageDefaultsYAML `yaml:"package_defaults"`
	Database      DatabaseConfig       `yaml:"database"`
}

// ServerConfig drives the operational health/version HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// LLMConfig names the provider/model the resilience-wrapped client targets.
type LLMConfig struct {
	Provider    string  `yaml:"provider" validate:"required"`
	Model       string  `yaml:"model" validate:"required"`
	APIKeyEnv   string  `yaml:"api_key_env" validate:"required"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// ResilienceConfig tunes the policies composed around the LLM client.
type ResilienceConfig struct {
	MaxConcurrent        int     `yaml:"max_concurrent" validate:"gte=1"`
	RateLimitPerSecond   float64 `yaml:"rate_limit_per_second" validate:"gte=0"`
	RateLimitBurst       int     `yaml:"rate_limit_burst" validate:"gte=1"`
	CircuitFailureRatio  float64 `yaml:"circuit_failure_ratio" validate:"gte=0,lte=1"`
	CircuitSleepWindowMs int     `yaml:"circuit_sleep_window_ms" validate:"gte=0"`
	RetryMaxAttempts     int     `yaml:"retry_max_attempts" validate:"gte=1"`
}

// DatabaseConfig addresses the Postgres-backed repository adapter
// (pkg/storage/postgres).
type DatabaseConfig struct {
	DSN            string `yaml:"dsn" validate:"required"`
	MigrationsPath string `yaml:"migrations_path"`
	MaxOpenConns   int    `yaml:"max_open_conns" validate:"gte=1"`
}

// PackageDefaultsYAML mirrors models.PackageConfig for YAML overrides; a nil
// field leaves the built-in default (defaults.go) untouched.
type PackageDefaultsYAML struct {
	MaxScenarios        *int  `yaml:"max_scenarios"`
	MaxStepsPerScenario *int  `yaml:"max_steps_per_scenario"`
	TimeoutMs           *int  `yaml:"timeout_ms"`
	ParallelExecution   *bool `yaml:"parallel_execution"`
	StopOnFirstFailure  *bool `yaml:"stop_on_first_failure"`
}

// Config is the fully resolved, validated process configuration.
type Config struct {
	Server         ServerConfig
	LLM            LLMConfig
	Resilience     ResilienceConfig
	Database       DatabaseConfig
	PackageDefault models.PackageConfig
}
