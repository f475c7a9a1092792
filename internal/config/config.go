package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the full service configuration.
type Config struct {
	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Agent backend
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Query limits
	Query QueryConfig `json:"query" mapstructure:"query"`

	// Session retention
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Debug enables verbose diagnostics
	Debug bool `json:"debug" mapstructure:"debug"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
	// SecretKey is process/session secret material consumed by the web
	// layer; the query core never reads it.
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
}

// AgentConfig selects and configures the agent execution backend.
type AgentConfig struct {
	// AnthropicAPIKey is the default backend credential. Absence is not a
	// configuration error; it surfaces as service_unavailable at query time.
	AnthropicAPIKey string `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `json:"openai_api_key" mapstructure:"openai_api_key"`
	// UseOpenAI routes queries to the OpenAI backend instead of Anthropic.
	UseOpenAI bool   `json:"use_openai" mapstructure:"use_openai"`
	Model     string `json:"model" mapstructure:"model"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
	// WorkspaceRoot scopes the read-only tools exposed to the agent.
	WorkspaceRoot string `json:"workspace_root" mapstructure:"workspace_root"`
}

// QueryConfig bounds what a single query may request.
type QueryConfig struct {
	// MaxTurnCap is the upper bound on max_turns a caller may request.
	MaxTurnCap int `json:"max_turn_cap" mapstructure:"max_turn_cap"`
	// DefaultTurns is used when the form omits max_turns.
	DefaultTurns int `json:"default_turns" mapstructure:"default_turns"`
	// Timeout is the wall-clock deadline for one agent run.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// SessionsConfig controls in-memory retention and the optional archive.
type SessionsConfig struct {
	// TTL after which terminal transcripts become eligible for eviction.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`
	// MaxEntries caps in-memory transcripts; 0 disables the cap.
	MaxEntries int `json:"max_entries" mapstructure:"max_entries"`
	// CleanupSchedule is a cron expression for the retention janitor.
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
	// ArchivePath is the sqlite archive file; empty disables archiving.
	ArchivePath string `json:"archive_path" mapstructure:"archive_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Agent: AgentConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Query: QueryConfig{
			MaxTurnCap:   25,
			DefaultTurns: 3,
			Timeout:      120 * time.Second,
		},
		Sessions: SessionsConfig{
			TTL:             time.Hour,
			MaxEntries:      1000,
			CleanupSchedule: "@every 5m",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.Agent.AnthropicAPIKey != "" {
		masked.Agent.AnthropicAPIKey = "***"
	}
	if masked.Agent.OpenAIAPIKey != "" {
		masked.Agent.OpenAIAPIKey = "***"
	}
	if masked.Server.SecretKey != "" {
		masked.Server.SecretKey = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid. API keys are deliberately
// not required here: a missing credential is reported per query as
// service_unavailable rather than preventing startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Agent.Model == "" {
		return fmt.Errorf("agent model is required")
	}
	if c.Agent.MaxTokens <= 0 {
		return fmt.Errorf("agent max_tokens must be positive")
	}
	if c.Query.MaxTurnCap <= 0 {
		return fmt.Errorf("query max_turn_cap must be positive")
	}
	if c.Query.DefaultTurns <= 0 || c.Query.DefaultTurns > c.Query.MaxTurnCap {
		return fmt.Errorf("query default_turns must be within 1..%d", c.Query.MaxTurnCap)
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	if c.Sessions.MaxEntries < 0 {
		return fmt.Errorf("sessions max_entries cannot be negative")
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("sessions ttl cannot be negative")
	}
	if c.Sessions.CleanupSchedule == "" {
		return fmt.Errorf("sessions cleanup_schedule is required")
	}
	return nil
}
