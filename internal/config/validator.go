package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ConfigValidator validates configuration values.
type ConfigValidator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements ConfigValidator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a new ConfigValidator instance.
func NewValidator() ConfigValidator {
	return &validatorImpl{
		validate: validator.New(),
	}
}

// Validate validates the configuration and returns detailed error messages.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	err := v.validate.Struct(cfg)
	if err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("validation error: %w", err)
		}

		var errorMessages []string
		for _, e := range validationErrs {
			errorMessages = append(errorMessages, formatValidationError(e))
		}

		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errorMessages, "\n  - "))
	}

	if err := cfg.ValidateSemantics(); err != nil {
		return fmt.Errorf("configuration validation failed:\n  - %s", err.Error())
	}

	if err := validatePatterns(cfg); err != nil {
		return err
	}

	return nil
}

// validatePatterns compiles every configured regular expression so that
// a bad pattern fails at load time rather than at first use.
func validatePatterns(cfg *Config) error {
	check := func(kind, name, pattern string) error {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("configuration validation failed:\n  - %s pattern %q does not compile: %v", kind, name, err)
		}
		return nil
	}

	for _, p := range cfg.Filtering.Tier1.NormalizationPatterns {
		if err := check("tier1 normalization", p.Name, p.Pattern); err != nil {
			return err
		}
	}
	for _, p := range cfg.Filtering.Tier2.TechnicalPatterns {
		if err := check("tier2 technical", p.Name, p.Pattern); err != nil {
			return err
		}
	}
	for _, p := range cfg.Filtering.Tier3.ClusterPatterns {
		if err := check("tier3 cluster", p.Name, p.Pattern); err != nil {
			return err
		}
	}
	for _, p := range cfg.Entities {
		if err := check("entity", p.TypeName, p.Pattern); err != nil {
			return err
		}
	}
	for _, t := range cfg.Tools {
		for _, cp := range t.CommandPatterns {
			if err := check("tool command", t.Name, cp); err != nil {
				return err
			}
		}
		for _, op := range t.OutputPatterns {
			if err := check("tool output", t.Name, op.Pattern); err != nil {
				return err
			}
		}
	}

	return nil
}

// formatValidationError formats a single validation error with field path and details.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "min":
		return fmt.Sprintf("%s must have at least %s elements", fieldPath, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath converts validator namespace to a more readable field path.
// Example: "Config.Filtering.Tier2.EntropyWeight" -> "filtering.tier2.entropy_weight"
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return namespace
	}

	result := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		result = append(result, camelToSnake(parts[i]))
	}

	return strings.Join(result, ".")
}

// camelToSnake converts CamelCase to snake_case.
func camelToSnake(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
