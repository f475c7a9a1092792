package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Query.MaxTurnCap)
	assert.Equal(t, 3, cfg.Query.DefaultTurns)
	assert.Equal(t, 120*time.Second, cfg.Query.Timeout)
	assert.Equal(t, time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, 1000, cfg.Sessions.MaxEntries)
	assert.Equal(t, "@every 5m", cfg.Sessions.CleanupSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Agent.UseOpenAI)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid defaults", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("missing API key is not a validation error", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agent.AnthropicAPIKey = ""
		assert.NoError(t, cfg.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"empty model", func(c *Config) { c.Agent.Model = "" }},
		{"zero max tokens", func(c *Config) { c.Agent.MaxTokens = 0 }},
		{"zero turn cap", func(c *Config) { c.Query.MaxTurnCap = 0 }},
		{"default turns above cap", func(c *Config) { c.Query.DefaultTurns = 100 }},
		{"zero timeout", func(c *Config) { c.Query.Timeout = 0 }},
		{"negative session cap", func(c *Config) { c.Sessions.MaxEntries = -1 }},
		{"negative ttl", func(c *Config) { c.Sessions.TTL = -time.Second }},
		{"empty schedule", func(c *Config) { c.Sessions.CleanupSchedule = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigStringMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.AnthropicAPIKey = "sk-ant-secret"
	cfg.Agent.OpenAIAPIKey = "sk-secret"
	cfg.Server.SecretKey = "session-secret"

	s := cfg.String()
	assert.NotContains(t, s, "sk-ant-secret")
	assert.NotContains(t, s, "session-secret")
	assert.Contains(t, s, "***")
}
