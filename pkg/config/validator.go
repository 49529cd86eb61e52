package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

var validate = validator.New()

// Validate runs go-playground/validator struct-tag validation over every
// section of cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg.Server); err != nil {
		return fieldError("server", err)
	}
	if err := validate.Struct(cfg.LLM); err != nil {
		return fieldError("llm", err)
	}
	if err := validate.Struct(cfg.Resilience); err != nil {
		return fieldError("resilience", err)
	}
	if err := validate.Struct(cfg.Database); err != nil {
		return fieldError("database", err)
	}
	if err := ValidatePackageConfig(cfg.PackageDefault); err != nil {
		return fieldError("package_defaults", err)
	}
	return nil
}

// ValidatePackageConfig validates a models.PackageConfig against its own
// struct tags, reused both by process config loading and by command
// handlers accepting a caller-supplied PackageConfig override.
func ValidatePackageConfig(pc models.PackageConfig) error {
	return validate.Struct(pc)
}

// ValidateWebhookConfig validates a models.WebhookConfig's structural
// fields (name/url/type non-blank, type is one of the known variants).
func ValidateWebhookConfig(wc models.WebhookConfig) error {
	if wc.Name == "" {
		return &ValidationError{Field: "name", Message: "must not be blank"}
	}
	if wc.URL == "" {
		return &ValidationError{Field: "url", Message: "must not be blank"}
	}
	if !wc.Type.IsValid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown webhook type %q", wc.Type)}
	}
	return nil
}

func fieldError(section string, err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:   section + "." + fe.Field(),
			Message: fmt.Sprintf("failed %q validation (value: %v)", fe.Tag(), fe.Value()),
			Err:     err,
		}
	}
	return &ValidationError{Field: section, Message: err.Error(), Err: err}
}
