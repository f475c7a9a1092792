package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdt2/agents-in-the-loop/internal/observability"
	"github.com/jdt2/agents-in-the-loop/pkg/agent"
	"github.com/jdt2/agents-in-the-loop/pkg/store"
	"github.com/jdt2/agents-in-the-loop/pkg/transcript"
)

// Orchestrator drives queries end to end. It validates input before any
// session state exists, runs the agent under the configured deadline, and
// guarantees the session reaches a terminal status before Submit returns.
type Orchestrator struct {
	store        *store.Store
	adapter      *agent.Adapter
	timeout      time.Duration
	maxTurnCap   int
	defaultTurns int
	logger       zerolog.Logger
}

// Config holds orchestrator configuration.
type Config struct {
	Store   *store.Store
	Adapter *agent.Adapter
	// Timeout bounds a single run; zero disables the deadline.
	Timeout time.Duration
	// MaxTurnCap is the largest turn budget a caller may request.
	MaxTurnCap int
	// DefaultTurns is the budget the boundary substitutes when a request
	// omits max_turns.
	DefaultTurns int
	Logger       zerolog.Logger
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if cfg.MaxTurnCap <= 0 {
		return nil, fmt.Errorf("max turn cap must be positive")
	}
	if cfg.DefaultTurns <= 0 || cfg.DefaultTurns > cfg.MaxTurnCap {
		return nil, fmt.Errorf("default turns must be between 1 and %d", cfg.MaxTurnCap)
	}

	return &Orchestrator{
		store:        cfg.Store,
		adapter:      cfg.Adapter,
		timeout:      cfg.Timeout,
		maxTurnCap:   cfg.MaxTurnCap,
		defaultTurns: cfg.DefaultTurns,
		logger:       cfg.Logger,
	}, nil
}

// Submit runs one query to completion and returns the terminal transcript.
// Invalid input fails before any session is created, so the returned
// transcript is nil exactly when the error kind is invalid_input. For every
// other failure the session exists, is terminal, and is returned alongside
// the classified error.
func (o *Orchestrator) Submit(ctx context.Context, prompt string, turnBudget int) (*transcript.Transcript, error) {
	if err := transcript.Validate(prompt, turnBudget, o.maxTurnCap); err != nil {
		return nil, WrapError(KindInvalidInput, err, "invalid query")
	}

	id := o.store.Create(prompt, turnBudget)
	logger := o.logger.With().Str("session_id", id).Logger()

	if err := o.store.MarkRunning(id); err != nil {
		return nil, WrapError(KindInternalError, err, "failed to start session")
	}

	runCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	result, runErr := o.adapter.Run(runCtx, agent.RunParams{
		SessionID:  id,
		Prompt:     prompt,
		TurnBudget: turnBudget,
		OnTurn: func(kind transcript.TurnKind, content string, metadata map[string]interface{}) error {
			_, err := o.store.AppendTurn(id, kind, content, metadata)
			return err
		},
	})

	if runErr != nil {
		qerr := o.classify(runErr)
		if err := o.store.FinalizeFailed(id, transcript.Failure{
			Kind:    string(qerr.Kind),
			Message: qerr.Message,
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to finalize failed session")
		}
		observability.RecordQuery("failed", time.Since(start))
		logger.Warn().Str("kind", string(qerr.Kind)).Err(runErr).Msg("Query failed")

		final, err := o.store.Get(id)
		if err != nil {
			return nil, qerr
		}
		return final, qerr
	}

	summary := transcript.Summary{
		Text:      result.Summary,
		TurnsUsed: result.TurnsUsed,
	}
	if result.Usage != nil {
		summary.Usage = &transcript.TokenUsage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		}
	}
	if err := o.store.FinalizeCompleted(id, summary); err != nil {
		observability.RecordQuery("failed", time.Since(start))
		return nil, WrapError(KindInternalError, err, "failed to finalize session")
	}
	observability.RecordQuery("completed", time.Since(start))
	logger.Info().Int("turns_used", result.TurnsUsed).Dur("duration", time.Since(start)).Msg("Query completed")

	final, err := o.store.Get(id)
	if err != nil {
		return nil, WrapError(KindInternalError, err, "failed to load final transcript")
	}
	return final, nil
}

// DefaultTurns returns the budget a boundary should substitute when the
// caller omits max_turns entirely. Submit itself never defaults: an explicit
// zero or negative budget is invalid input.
func (o *Orchestrator) DefaultTurns() int {
	return o.defaultTurns
}

// Get returns a snapshot of a session at any point in its lifecycle.
func (o *Orchestrator) Get(id string) (*transcript.Transcript, error) {
	t, err := o.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, WrapError(KindNotFound, err, "no such session")
		}
		return nil, WrapError(KindInternalError, err, "failed to load session")
	}
	return t, nil
}

// Ready reports whether the orchestrator can serve queries.
func (o *Orchestrator) Ready() bool {
	return o.adapter != nil && o.store != nil
}

// classify maps a run error onto the query error taxonomy. Deadline and
// cancellation are checked before the adapter sentinels so a run cut short
// mid-call reports the context outcome.
func (o *Orchestrator) classify(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(KindTimeout, err, "query deadline exceeded")
	case errors.Is(err, context.Canceled):
		return WrapError(KindCancelled, err, "query cancelled by caller")
	case errors.Is(err, agent.ErrUnavailable):
		return WrapError(KindServiceUnavailable, err, "agent backend unavailable")
	case errors.Is(err, agent.ErrProtocol):
		return WrapError(KindUpstreamError, err, "agent backend returned malformed output")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidTransition):
		return WrapError(KindInternalError, err, "session state error")
	default:
		return WrapError(KindInternalError, err, "query failed unexpectedly")
	}
}
