package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		budget    int
		maxBudget int
		shouldErr bool
	}{
		{"valid", "add two numbers", 3, 25, false},
		{"budget at cap", "hello", 25, 25, false},
		{"empty prompt", "", 3, 25, true},
		{"whitespace prompt", "   \t\n", 3, 25, true},
		{"zero budget", "hello", 0, 25, true},
		{"negative budget", "hello", -1, 25, true},
		{"budget above cap", "hello", 26, 25, true},
		{"no cap configured", "hello", 1000, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.prompt, tt.budget, tt.maxBudget)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestTranscriptClone(t *testing.T) {
	finished := time.Now()
	orig := &Transcript{
		ID:         "abc",
		Prompt:     "hello",
		TurnBudget: 3,
		Status:     StatusCompleted,
		Turns: []Turn{
			{Sequence: 1, Kind: TurnAssistantText, Content: "hi", Metadata: map[string]interface{}{"model": "m"}},
		},
		Summary:    &Summary{Text: "hi", TurnsUsed: 1, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 5}},
		CreatedAt:  time.Now(),
		FinishedAt: &finished,
	}

	c := orig.Clone()
	require.Equal(t, orig, c)

	// Mutating the clone must not leak into the original.
	c.Turns[0].Content = "changed"
	c.Turns[0].Metadata["model"] = "other"
	c.Summary.Text = "changed"
	c.Summary.Usage.InputTokens = 99

	assert.Equal(t, "hi", orig.Turns[0].Content)
	assert.Equal(t, "m", orig.Turns[0].Metadata["model"])
	assert.Equal(t, "hi", orig.Summary.Text)
	assert.Equal(t, 10, orig.Summary.Usage.InputTokens)
}

func TestTranscriptCloneFailure(t *testing.T) {
	orig := &Transcript{
		ID:      "abc",
		Status:  StatusFailed,
		Failure: &Failure{Kind: "timeout", Message: "deadline exceeded"},
	}

	c := orig.Clone()
	c.Failure.Message = "changed"
	assert.Equal(t, "deadline exceeded", orig.Failure.Message)
}
