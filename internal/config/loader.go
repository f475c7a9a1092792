package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader resolves configuration from an optional JSON file, the process
// environment, and a .env file, in that order of increasing precedence for
// the environment.
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. configPath may be empty, in which
// case only defaults and the environment apply.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration.
func (l *Loader) Load() (*Config, error) {
	// .env values become regular environment variables, matching the
	// original deployment convention. Missing file is fine.
	_ = godotenv.Load()

	v := viper.New()

	v.SetEnvPrefix("AGENTLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.secret_key", "")
	v.SetDefault("agent.anthropic_api_key", "")
	v.SetDefault("agent.openai_api_key", "")
	v.SetDefault("agent.use_openai", false)
	v.SetDefault("agent.model", defaults.Agent.Model)
	v.SetDefault("agent.max_tokens", defaults.Agent.MaxTokens)
	v.SetDefault("agent.workspace_root", "")
	v.SetDefault("query.max_turn_cap", defaults.Query.MaxTurnCap)
	v.SetDefault("query.default_turns", defaults.Query.DefaultTurns)
	v.SetDefault("query.timeout", defaults.Query.Timeout)
	v.SetDefault("sessions.ttl", defaults.Sessions.TTL)
	v.SetDefault("sessions.max_entries", defaults.Sessions.MaxEntries)
	v.SetDefault("sessions.cleanup_schedule", defaults.Sessions.CleanupSchedule)
	v.SetDefault("sessions.archive_path", "")
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.pretty", defaults.Logging.Pretty)
	v.SetDefault("logging.max_size", defaults.Logging.MaxSize)
	v.SetDefault("logging.max_age", defaults.Logging.MaxAge)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
	v.SetDefault("logging.redaction", defaults.Logging.Redaction)
	v.SetDefault("debug", false)

	// The credential and secret variables keep their conventional unprefixed
	// names from the original deployment.
	_ = v.BindEnv("agent.anthropic_api_key", "AGENTLOOP_AGENT_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("agent.openai_api_key", "AGENTLOOP_AGENT_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("server.secret_key", "AGENTLOOP_SERVER_SECRET_KEY", "SECRET_KEY")
	_ = v.BindEnv("server.port", "AGENTLOOP_SERVER_PORT", "PORT")

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return nil, fmt.Errorf("config file not readable: %w", err)
		}
		v.SetConfigFile(l.configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
