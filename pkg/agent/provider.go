package agent

import "context"

// Provider is an interface over LLM API backends.
type Provider interface {
	// Call makes a single model invocation.
	Call(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// Request contains the parameters for a single model invocation.
type Request struct {
	Model        string
	Messages     []Message
	Tools        []ToolDefinition
	MaxTokens    int
	SystemPrompt string
}

// Response contains one model invocation's output.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ToolDefinition describes a tool exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema object describing the tool parameters.
	InputSchema map[string]interface{}
}
