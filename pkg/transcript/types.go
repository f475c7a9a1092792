package transcript

import (
	"fmt"
	"strings"
	"time"
)

// TurnKind discriminates the variants of agent output within a run.
type TurnKind string

const (
	TurnAssistantText  TurnKind = "assistant_text"
	TurnToolInvocation TurnKind = "tool_invocation"
	TurnToolResult     TurnKind = "tool_result"
	TurnSystemNotice   TurnKind = "system_notice"
)

// Status represents the lifecycle state of a transcript.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Turn is one unit of agent output. Immutable once appended.
type Turn struct {
	Sequence  int                    `json:"sequence"`
	Kind      TurnKind               `json:"kind"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// TokenUsage tracks token consumption reported by the agent backend.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Summary carries the terminal outcome of a completed run.
type Summary struct {
	Text      string      `json:"text"`
	TurnsUsed int         `json:"turns_used"`
	Usage     *TokenUsage `json:"cost,omitempty"`
}

// Failure carries the terminal outcome of a failed run.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Transcript is the full record of one submitted query.
type Transcript struct {
	ID         string     `json:"session_id"`
	Prompt     string     `json:"prompt"`
	TurnBudget int        `json:"turn_budget"`
	Status     Status     `json:"status"`
	Turns      []Turn     `json:"turns"`
	Summary    *Summary   `json:"summary,omitempty"`
	Failure    *Failure   `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (t *Transcript) Clone() *Transcript {
	c := *t
	c.Turns = make([]Turn, len(t.Turns))
	copy(c.Turns, t.Turns)
	for i := range c.Turns {
		if t.Turns[i].Metadata != nil {
			md := make(map[string]interface{}, len(t.Turns[i].Metadata))
			for k, v := range t.Turns[i].Metadata {
				md[k] = v
			}
			c.Turns[i].Metadata = md
		}
	}
	if t.Summary != nil {
		s := *t.Summary
		if t.Summary.Usage != nil {
			u := *t.Summary.Usage
			s.Usage = &u
		}
		c.Summary = &s
	}
	if t.Failure != nil {
		f := *t.Failure
		c.Failure = &f
	}
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		c.FinishedAt = &ts
	}
	return &c
}

// Validate checks a prompt and turn budget against request constraints.
// maxBudget caps the number of turns a single query may request.
func Validate(prompt string, turnBudget, maxBudget int) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("prompt cannot be empty")
	}
	if turnBudget <= 0 {
		return fmt.Errorf("max_turns must be positive, got %d", turnBudget)
	}
	if maxBudget > 0 && turnBudget > maxBudget {
		return fmt.Errorf("max_turns %d exceeds the configured cap of %d", turnBudget, maxBudget)
	}
	return nil
}
