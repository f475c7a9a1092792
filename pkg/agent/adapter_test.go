package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdt2/agents-in-the-loop/pkg/transcript"
)

// scriptedProvider returns canned responses in order, or an error.
type scriptedProvider struct {
	responses []*Response
	err       error
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Call(ctx context.Context, request Request) (*Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	response := p.responses[0]
	p.responses = p.responses[1:]
	return response, nil
}

// blockingProvider waits for the context to end.
type blockingProvider struct{}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Call(ctx context.Context, request Request) (*Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordedTurn struct {
	kind     transcript.TurnKind
	content  string
	metadata map[string]interface{}
}

type turnRecorder struct {
	turns []recordedTurn
}

func (r *turnRecorder) onTurn(kind transcript.TurnKind, content string, metadata map[string]interface{}) error {
	r.turns = append(r.turns, recordedTurn{kind: kind, content: content, metadata: metadata})
	return nil
}

func newTestAdapter(provider Provider, tools *Toolset) *Adapter {
	return NewAdapter(Config{
		Provider:  provider,
		Tools:     tools,
		Model:     "test-model",
		MaxTokens: 1024,
		Logger:    zerolog.Nop(),
	})
}

func TestRunSingleTextResponse(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{
		{Content: "The repo has three packages.", Usage: &TokenUsage{InputTokens: 10, OutputTokens: 5}},
	}}
	rec := &turnRecorder{}

	result, err := newTestAdapter(provider, nil).Run(context.Background(), RunParams{
		SessionID:  "s1",
		Prompt:     "describe the repo",
		TurnBudget: 3,
		OnTurn:     rec.onTurn,
	})
	require.NoError(t, err)

	assert.Equal(t, "The repo has three packages.", result.Summary)
	assert.Equal(t, 1, result.TurnsUsed)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 10, result.Usage.InputTokens)

	require.Len(t, rec.turns, 1)
	assert.Equal(t, transcript.TurnAssistantText, rec.turns[0].kind)
}

func TestRunToolLoop(t *testing.T) {
	tools := NewToolset()
	require.NoError(t, tools.Register(Tool{
		Name:        "echo",
		Description: "echo input",
		InputSchema: objectSchema(map[string]interface{}{}, nil),
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return params["value"].(string), nil
		},
	}))

	provider := &scriptedProvider{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "tc1", Name: "echo", Parameters: map[string]interface{}{"value": "pong"}}}},
		{Content: "done: pong", Usage: &TokenUsage{InputTokens: 20, OutputTokens: 8}},
	}}
	rec := &turnRecorder{}

	result, err := newTestAdapter(provider, tools).Run(context.Background(), RunParams{
		Prompt:     "ping the echo tool",
		TurnBudget: 5,
		OnTurn:     rec.onTurn,
	})
	require.NoError(t, err)

	assert.Equal(t, "done: pong", result.Summary)
	assert.Equal(t, 3, result.TurnsUsed)

	require.Len(t, rec.turns, 3)
	assert.Equal(t, transcript.TurnToolInvocation, rec.turns[0].kind)
	assert.Equal(t, "echo", rec.turns[0].content)
	assert.Equal(t, "tc1", rec.turns[0].metadata["tool_call_id"])
	assert.Equal(t, transcript.TurnToolResult, rec.turns[1].kind)
	assert.Equal(t, "pong", rec.turns[1].content)
	assert.Equal(t, true, rec.turns[1].metadata["ok"])
	assert.Equal(t, transcript.TurnAssistantText, rec.turns[2].kind)
}

func TestRunUnknownToolBecomesErrorResult(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "tc1", Name: "launch_rocket", Parameters: map[string]interface{}{}}}},
		{Content: "could not do that"},
	}}
	rec := &turnRecorder{}

	result, err := newTestAdapter(provider, nil).Run(context.Background(), RunParams{
		Prompt:     "do something",
		TurnBudget: 5,
		OnTurn:     rec.onTurn,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TurnsUsed)

	require.Len(t, rec.turns, 3)
	assert.Equal(t, transcript.TurnToolResult, rec.turns[1].kind)
	assert.Contains(t, rec.turns[1].content, "unknown tool")
	assert.Equal(t, false, rec.turns[1].metadata["ok"])
}

func TestRunStopsAtTurnBudget(t *testing.T) {
	// The model keeps asking for tools; the budget cuts the run short and
	// the run still completes.
	provider := &scriptedProvider{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "tc1", Name: "missing", Parameters: map[string]interface{}{}}}},
		{ToolCalls: []ToolCall{{ID: "tc2", Name: "missing", Parameters: map[string]interface{}{}}}},
		{ToolCalls: []ToolCall{{ID: "tc3", Name: "missing", Parameters: map[string]interface{}{}}}},
	}}
	rec := &turnRecorder{}

	result, err := newTestAdapter(provider, nil).Run(context.Background(), RunParams{
		Prompt:     "loop forever",
		TurnBudget: 3,
		OnTurn:     rec.onTurn,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TurnsUsed)
	assert.Len(t, rec.turns, 3)
	assert.Contains(t, result.Summary, "Turn limit reached")
}

func TestRunBudgetOfOneKeepsFirstText(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{
		{
			Content:   "Let me check that file.",
			ToolCalls: []ToolCall{{ID: "tc1", Name: "missing", Parameters: map[string]interface{}{}}},
		},
	}}
	rec := &turnRecorder{}

	result, err := newTestAdapter(provider, nil).Run(context.Background(), RunParams{
		Prompt:     "inspect",
		TurnBudget: 1,
		OnTurn:     rec.onTurn,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.TurnsUsed)
	assert.Equal(t, "Let me check that file.", result.Summary)
	require.Len(t, rec.turns, 1)
	assert.Equal(t, transcript.TurnAssistantText, rec.turns[0].kind)
}

func TestRunNoProvider(t *testing.T) {
	adapter := NewAdapter(Config{Logger: zerolog.Nop()})
	_, err := adapter.Run(context.Background(), RunParams{
		Prompt:     "anything",
		TurnBudget: 3,
		OnTurn:     func(transcript.TurnKind, string, map[string]interface{}) error { return nil },
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRunMalformedResponse(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{{}}}
	_, err := newTestAdapter(provider, nil).Run(context.Background(), RunParams{
		Prompt:     "anything",
		TurnBudget: 3,
		OnTurn:     func(transcript.TurnKind, string, map[string]interface{}) error { return nil },
	})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestRunConnectionFailure(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("dial tcp 10.0.0.1:443: connection refused")}
	_, err := newTestAdapter(provider, nil).Run(context.Background(), RunParams{
		Prompt:     "anything",
		TurnBudget: 3,
		OnTurn:     func(transcript.TurnKind, string, map[string]interface{}) error { return nil },
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRunDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestAdapter(&blockingProvider{}, nil).Run(ctx, RunParams{
		Prompt:     "anything",
		TurnBudget: 3,
		OnTurn:     func(transcript.TurnKind, string, map[string]interface{}) error { return nil },
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestAdapter(&blockingProvider{}, nil).Run(ctx, RunParams{
		Prompt:     "anything",
		TurnBudget: 3,
		OnTurn:     func(transcript.TurnKind, string, map[string]interface{}) error { return nil },
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunOnTurnErrorAbortsRun(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{{Content: "hello"}}}
	boom := errors.New("store rejected turn")

	_, err := newTestAdapter(provider, nil).Run(context.Background(), RunParams{
		Prompt:     "anything",
		TurnBudget: 3,
		OnTurn:     func(transcript.TurnKind, string, map[string]interface{}) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
}

// flakyProvider fails its first call and would succeed on a second one. The
// adapter must never make that second call.
type flakyProvider struct {
	calls int
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Call(ctx context.Context, request Request) (*Response, error) {
	p.calls++
	if p.calls == 1 {
		return nil, errors.New("503 overloaded")
	}
	return &Response{Content: "recovered"}, nil
}

func TestRunNeverRetriesProvider(t *testing.T) {
	provider := &flakyProvider{}

	_, err := newTestAdapter(provider, nil).Run(context.Background(), RunParams{
		Prompt:     "anything",
		TurnBudget: 3,
		OnTurn:     func(transcript.TurnKind, string, map[string]interface{}) error { return nil },
	})

	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, 1, provider.calls)
}

func TestRunRequestFailureIsProtocolError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("400 invalid request body")}
	_, err := newTestAdapter(provider, nil).Run(context.Background(), RunParams{
		Prompt:     "anything",
		TurnBudget: 3,
		OnTurn:     func(transcript.TurnKind, string, map[string]interface{}) error { return nil },
	})
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, 1, provider.calls)
}
