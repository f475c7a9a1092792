package store

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdt2/agents-in-the-loop/pkg/transcript"
)

func TestJanitorRunNow(t *testing.T) {
	s := newTestStore()

	id := s.Create("prompt", 3)
	require.NoError(t, s.MarkRunning(id))
	require.NoError(t, s.FinalizeCompleted(id, transcript.Summary{Text: "done"}))

	e, ok := s.lookup(id)
	require.True(t, ok)
	past := time.Now().UTC().Add(-2 * time.Hour)
	e.t.FinishedAt = &past

	j := NewJanitor(s, time.Hour, 0, "@every 5m", zerolog.Nop())
	j.RunNow()

	assert.Equal(t, 0, s.Len())
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	j := NewJanitor(newTestStore(), time.Hour, 0, "not a schedule", zerolog.Nop())
	assert.Error(t, j.Start())
}

func TestJanitorStartStop(t *testing.T) {
	j := NewJanitor(newTestStore(), time.Hour, 0, "@every 1h", zerolog.Nop())
	require.NoError(t, j.Start())
	j.Stop()
}
