package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdt2/agents-in-the-loop/internal/config"
	"github.com/jdt2/agents-in-the-loop/internal/logger"
	"github.com/jdt2/agents-in-the-loop/pkg/agent"
	"github.com/jdt2/agents-in-the-loop/pkg/query"
	"github.com/jdt2/agents-in-the-loop/pkg/store"
	"github.com/jdt2/agents-in-the-loop/pkg/webapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query service",
	Long: `Start the HTTP service: the query endpoints, session retrieval, the
websocket progress stream, and health and metrics endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if cfg.Debug {
		cfg.Logging.Level = "debug"
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()

	zl := lg.GetZerolog()
	zl.Info().Str("version", version).Msg("Starting agents-in-the-loop")
	zl.Debug().Msg(cfg.String())

	for _, warning := range config.NewValidator().Warnings(cfg) {
		zl.Warn().Msg(warning.Error())
	}

	var archive *store.Archive
	if cfg.Sessions.ArchivePath != "" {
		archive, err = store.OpenArchive(cfg.Sessions.ArchivePath)
		if err != nil {
			return fmt.Errorf("failed to open session archive: %w", err)
		}
		defer archive.Close()
		zl.Info().Str("path", cfg.Sessions.ArchivePath).Msg("Session archive enabled")
	}

	st := store.New(store.Config{Logger: zl, Archive: archive})

	janitor := store.NewJanitor(st, cfg.Sessions.TTL, cfg.Sessions.MaxEntries, cfg.Sessions.CleanupSchedule, zl)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("failed to start session janitor: %w", err)
	}
	defer janitor.Stop()

	provider := buildProvider(cfg, lg)

	adapter := agent.NewAdapter(agent.Config{
		Provider:  provider,
		Tools:     agent.DefaultToolset(workspaceRoot(cfg)),
		Model:     cfg.Agent.Model,
		MaxTokens: cfg.Agent.MaxTokens,
		Logger:    zl,
	})

	orchestrator, err := query.New(query.Config{
		Store:        st,
		Adapter:      adapter,
		Timeout:      cfg.Query.Timeout,
		MaxTurnCap:   cfg.Query.MaxTurnCap,
		DefaultTurns: cfg.Query.DefaultTurns,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	server, err := webapi.New(webapi.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Orchestrator:    orchestrator,
		Store:           st,
		AgentConfigured: provider != nil,
		Logger:          zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	stop()

	zl.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// buildProvider selects the agent backend from config. A nil provider is a
// valid outcome; queries then fail with service_unavailable.
func buildProvider(cfg *config.Config, lg *logger.Logger) agent.Provider {
	if cfg.Agent.UseOpenAI {
		if cfg.Agent.OpenAIAPIKey == "" {
			lg.Warn().Msg("use_openai is set but OPENAI_API_KEY is missing; queries will fail")
			return nil
		}
		return agent.NewOpenAIProvider(cfg.Agent.OpenAIAPIKey)
	}

	if cfg.Agent.AnthropicAPIKey == "" {
		lg.Warn().Msg("ANTHROPIC_API_KEY not set; queries will fail with service_unavailable")
		return nil
	}
	return agent.NewAnthropicProvider(cfg.Agent.AnthropicAPIKey)
}

func workspaceRoot(cfg *config.Config) string {
	if cfg.Agent.WorkspaceRoot != "" {
		return cfg.Agent.WorkspaceRoot
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
