package config

import (
	"fmt"
	"strings"
)

// Validator checks configuration values whose problems should be surfaced as
// warnings rather than startup failures. A malformed API key still starts
// the service; the key simply will not work.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// Warnings inspects a loaded config and returns non-fatal issues worth
// logging at startup.
func (v *Validator) Warnings(cfg *Config) []error {
	var warnings []error

	if cfg.Agent.AnthropicAPIKey != "" {
		if err := v.ValidateAPIKey(cfg.Agent.AnthropicAPIKey, "anthropic"); err != nil {
			warnings = append(warnings, err)
		}
	}
	if cfg.Agent.OpenAIAPIKey != "" {
		if err := v.ValidateAPIKey(cfg.Agent.OpenAIAPIKey, "openai"); err != nil {
			warnings = append(warnings, err)
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		warnings = append(warnings, err)
	}
	if err := v.ValidateMaxTokens(cfg.Agent.MaxTokens); err != nil {
		warnings = append(warnings, err)
	}

	if cfg.Server.SecretKey == "" || cfg.Server.SecretKey == "dev-secret-key" {
		warnings = append(warnings, fmt.Errorf("server secret_key is unset or the development default"))
	}

	return warnings
}
