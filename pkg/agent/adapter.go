package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdt2/agents-in-the-loop/internal/observability"
	"github.com/jdt2/agents-in-the-loop/pkg/transcript"
)

var (
	// ErrUnavailable indicates the backend cannot be reached at all: no
	// credentials were configured, or the connection failed outright.
	ErrUnavailable = errors.New("agent backend unavailable")

	// ErrProtocol indicates the backend was reached but the exchange failed:
	// an error response, or output the adapter cannot interpret.
	ErrProtocol = errors.New("agent backend request failed")
)

const defaultSystemPrompt = "You are a coding agent operating inside a project workspace. " +
	"Use the available tools to inspect files when you need to, and give a concise final answer."

// Adapter drives a provider through a bounded multi-turn run, reporting each
// turn through a callback as it happens.
type Adapter struct {
	provider     Provider
	tools        *Toolset
	model        string
	maxTokens    int
	systemPrompt string
	logger       zerolog.Logger
}

// Config holds adapter configuration.
type Config struct {
	// Provider may be nil when no credentials are configured; runs then fail
	// with ErrUnavailable.
	Provider     Provider
	Tools        *Toolset
	Model        string
	MaxTokens    int
	SystemPrompt string
	Logger       zerolog.Logger
}

// NewAdapter creates an adapter.
func NewAdapter(cfg Config) *Adapter {
	observability.EnsureRegistered()

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	tools := cfg.Tools
	if tools == nil {
		tools = NewToolset()
	}

	return &Adapter{
		provider:     cfg.Provider,
		tools:        tools,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: systemPrompt,
		logger:       cfg.Logger,
	}
}

// RunParams contains the input for one run.
type RunParams struct {
	SessionID  string
	Prompt     string
	TurnBudget int

	// OnTurn is invoked once per emitted turn, in order. An error aborts
	// the run.
	OnTurn func(kind transcript.TurnKind, content string, metadata map[string]interface{}) error
}

// Result is the outcome of a completed run.
type Result struct {
	Summary   string
	TurnsUsed int
	Usage     *TokenUsage
}

// Run executes the turn loop until the model produces a final answer, the
// turn budget is consumed, or the context ends. Turns already reported
// through OnTurn stand regardless of how the run ends.
func (a *Adapter) Run(ctx context.Context, params RunParams) (Result, error) {
	if a.provider == nil {
		return Result{}, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	logger := a.logger.With().Str("session_id", params.SessionID).Logger()

	messages := []Message{{Role: "user", Content: params.Prompt}}
	defs := a.tools.Definitions()
	usage := &TokenUsage{}

	remaining := params.TurnBudget
	lastContent := ""

	emit := func(kind transcript.TurnKind, content string, metadata map[string]interface{}) (bool, error) {
		if remaining <= 0 {
			return false, nil
		}
		if err := params.OnTurn(kind, content, metadata); err != nil {
			return false, err
		}
		remaining--
		return true, nil
	}

	result := func(summary string) Result {
		return Result{
			Summary:   summary,
			TurnsUsed: params.TurnBudget - remaining,
			Usage:     usage,
		}
	}

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		response, err := a.callProvider(ctx, Request{
			Model:        a.model,
			Messages:     messages,
			Tools:        defs,
			MaxTokens:    a.maxTokens,
			SystemPrompt: a.systemPrompt,
		})
		if err != nil {
			return Result{}, err
		}
		usage.Add(response.Usage)

		if response.Content == "" && len(response.ToolCalls) == 0 {
			return Result{}, fmt.Errorf("%w: response had neither text nor tool calls", ErrProtocol)
		}

		if response.Content != "" {
			lastContent = response.Content
			emitted, err := emit(transcript.TurnAssistantText, response.Content, nil)
			if err != nil {
				return Result{}, err
			}
			if !emitted {
				break
			}
		}

		// Final answer.
		if len(response.ToolCalls) == 0 {
			return result(response.Content), nil
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		budgetHit := false
		for _, call := range response.ToolCalls {
			emitted, err := emit(transcript.TurnToolInvocation, call.Name, map[string]interface{}{
				"tool_call_id": call.ID,
				"parameters":   call.Parameters,
			})
			if err != nil {
				return Result{}, err
			}
			if !emitted {
				budgetHit = true
				break
			}

			output, ok := a.tools.Execute(ctx, call.Name, call.Parameters)
			observability.RecordToolExecution(call.Name, ok)
			if !ok {
				logger.Debug().Str("tool", call.Name).Str("output", output).Msg("Tool execution failed")
			}

			messages = append(messages, Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
			})

			emitted, err = emit(transcript.TurnToolResult, output, map[string]interface{}{
				"tool_call_id": call.ID,
				"tool":         call.Name,
				"ok":           ok,
			})
			if err != nil {
				return Result{}, err
			}
			if !emitted {
				budgetHit = true
				break
			}
		}
		if budgetHit {
			break
		}
	}

	// Budget consumed before a final answer. The run still completes; the
	// partial transcript is the deliverable.
	summary := lastContent
	if summary == "" {
		summary = "Turn limit reached before the agent produced a final answer."
	}
	logger.Info().Int("turn_budget", params.TurnBudget).Msg("Turn budget consumed")
	return result(summary), nil
}

// callProvider makes exactly one provider call. Invocations are expensive
// and not idempotent, so the adapter never retries; a failure is classified
// and returned to the caller.
func (a *Adapter) callProvider(ctx context.Context, request Request) (*Response, error) {
	start := time.Now()
	response, err := a.provider.Call(ctx, request)
	observability.RecordProviderCall(a.provider.Name(), time.Since(start), err == nil)
	if err == nil {
		return response, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if isUnavailableError(err) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
}

// isUnavailableError reports whether an error means the backend cannot be
// used at all, as opposed to a transient or request-level failure.
func isUnavailableError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"connection refused", "no such host", "dial tcp",
		"401", "authentication_error", "invalid x-api-key", "invalid api key",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
