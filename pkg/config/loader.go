package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads qaorchd.yaml from configDir (if present), expands environment
// variables, merges it over the built-in defaults, and validates the
// result.
func Load(configDir string) (*Config, error) {
	yamlCfg, err := loadYAMLFile(configDir, "qaorchd.yaml")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:         defaultServer(),
		LLM:            defaultLLM(),
		Resilience:     defaultResilience(),
		Database:       defaultDatabase(),
		PackageDefault: applyPackageDefaults(nil),
	}
	if yamlCfg != nil {
		mergeServer(&cfg.Server, yamlCfg.Server)
		mergeLLM(&cfg.LLM, yamlCfg.LLM)
		mergeResilience(&cfg.Resilience, yamlCfg.Resilience)
		mergeDatabase(&cfg.Database, yamlCfg.Database)
		cfg.PackageDefault = applyPackageDefaults(yamlCfg.PackageConfig)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return cfg, nil
}

// loadYAMLFile reads and parses filename from dir. A missing file is not an
// error: it simply means "use built-in defaults" (qaorchd.yaml is
// optional).
func loadYAMLFile(dir, filename string) (*YAMLConfig, error) {
	path := filepath.Join(dir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &cfg, nil
}

// Merge helpers: a zero-value field in the user YAML leaves the built-in
// default untouched.
func mergeServer(dst *ServerConfig, src ServerConfig) {
	if src.Addr != "" {
		dst.Addr = src.Addr
	}
}

func mergeLLM(dst *LLMConfig, src LLMConfig) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.APIKeyEnv != "" {
		dst.APIKeyEnv = src.APIKeyEnv
	}
	if src.Temperature != 0 {
		dst.Temperature = src.Temperature
	}
}

func mergeResilience(dst *ResilienceConfig, src ResilienceConfig) {
	if src.MaxConcurrent != 0 {
		dst.MaxConcurrent = src.MaxConcurrent
	}
	if src.RateLimitPerSecond != 0 {
		dst.RateLimitPerSecond = src.RateLimitPerSecond
	}
	if src.RateLimitBurst != 0 {
		dst.RateLimitBurst = src.RateLimitBurst
	}
	if src.CircuitFailureRatio != 0 {
		dst.CircuitFailureRatio = src.CircuitFailureRatio
	}
	if src.CircuitSleepWindowMs != 0 {
		dst.CircuitSleepWindowMs = src.CircuitSleepWindowMs
	}
	if src.RetryMaxAttempts != 0 {
		dst.RetryMaxAttempts = src.RetryMaxAttempts
	}
}

func mergeDatabase(dst *DatabaseConfig, src DatabaseConfig) {
	if src.DSN != "" {
		dst.DSN = src.DSN
	}
	if src.MigrationsPath != "" {
		dst.MigrationsPath = src.MigrationsPath
	}
	if src.MaxOpenConns != 0 {
		dst.MaxOpenConns = src.MaxOpenConns
	}
}
