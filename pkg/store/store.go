package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jdt2/agents-in-the-loop/internal/observability"
	"github.com/jdt2/agents-in-the-loop/pkg/transcript"
)

var (
	// ErrNotFound is returned when no transcript exists for an id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when a mutation targets a transcript
	// whose status does not admit it. Appending to a finalized transcript is
	// a programming error, not a user error.
	ErrInvalidTransition = errors.New("invalid transcript transition")
)

// Event is delivered to subscribers as a transcript progresses.
type Event struct {
	// Turn is set for turn events.
	Turn *transcript.Turn
	// Final is set once, when the transcript reaches a terminal status.
	Final *transcript.Transcript
}

const subscriberBuffer = 64

type entry struct {
	mu   sync.Mutex
	t    *transcript.Transcript
	subs map[int]chan Event
	next int
}

// Store owns every transcript for the lifetime of the process (until the
// retention janitor removes it). All methods are safe for concurrent use:
// the registry lock is held only to locate an entry, so operations on
// different sessions do not block one another.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	archive *Archive
	logger  zerolog.Logger
}

// Config holds store configuration.
type Config struct {
	Logger zerolog.Logger
	// Archive, when non-nil, receives terminal transcripts and serves reads
	// for ids already evicted from memory.
	Archive *Archive
}

// New creates an empty store.
func New(cfg Config) *Store {
	observability.EnsureRegistered()
	return &Store{
		entries: make(map[string]*entry),
		archive: cfg.Archive,
		logger:  cfg.Logger,
	}
}

// Create registers a new pending transcript and returns its id. The id is a
// fresh UUID; ids are never reused. Create performs no external I/O.
func (s *Store) Create(prompt string, turnBudget int) string {
	id := uuid.NewString()
	e := &entry{
		t: &transcript.Transcript{
			ID:         id,
			Prompt:     prompt,
			TurnBudget: turnBudget,
			Status:     transcript.StatusPending,
			Turns:      []transcript.Turn{},
			CreatedAt:  time.Now().UTC(),
		},
		subs: make(map[int]chan Event),
	}

	s.mu.Lock()
	s.entries[id] = e
	count := len(s.entries)
	s.mu.Unlock()

	observability.SetActiveSessions(count)
	s.logger.Debug().Str("session_id", id).Int("turn_budget", turnBudget).Msg("Session created")

	return id
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e, ok
}

// MarkRunning transitions a pending transcript to running.
func (s *Store) MarkRunning(id string) error {
	e, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.t.Status != transcript.StatusPending {
		return fmt.Errorf("%w: cannot start a %s transcript", ErrInvalidTransition, e.t.Status)
	}
	e.t.Status = transcript.StatusRunning
	return nil
}

// AppendTurn appends one turn to a running transcript, assigning its
// sequence number, and returns the stored turn.
func (s *Store) AppendTurn(id string, kind transcript.TurnKind, content string, metadata map[string]interface{}) (transcript.Turn, error) {
	e, ok := s.lookup(id)
	if !ok {
		return transcript.Turn{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.t.Status != transcript.StatusRunning {
		return transcript.Turn{}, fmt.Errorf("%w: cannot append to a %s transcript", ErrInvalidTransition, e.t.Status)
	}
	if len(e.t.Turns) >= e.t.TurnBudget {
		return transcript.Turn{}, fmt.Errorf("%w: turn budget of %d already consumed", ErrInvalidTransition, e.t.TurnBudget)
	}

	turn := transcript.Turn{
		Sequence:  len(e.t.Turns) + 1,
		Kind:      kind,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
	e.t.Turns = append(e.t.Turns, turn)

	observability.RecordTurn(string(kind))
	e.notify(Event{Turn: &turn})

	return turn, nil
}

// FinalizeCompleted transitions a running transcript to completed.
func (s *Store) FinalizeCompleted(id string, summary transcript.Summary) error {
	return s.finalize(id, func(t *transcript.Transcript) {
		t.Status = transcript.StatusCompleted
		t.Summary = &summary
	})
}

// FinalizeFailed transitions a running transcript to failed.
func (s *Store) FinalizeFailed(id string, failure transcript.Failure) error {
	return s.finalize(id, func(t *transcript.Transcript) {
		t.Status = transcript.StatusFailed
		t.Failure = &failure
	})
}

func (s *Store) finalize(id string, apply func(*transcript.Transcript)) error {
	e, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.t.Status != transcript.StatusRunning {
		return fmt.Errorf("%w: cannot finalize a %s transcript", ErrInvalidTransition, e.t.Status)
	}

	apply(e.t)
	now := time.Now().UTC()
	e.t.FinishedAt = &now

	final := e.t.Clone()
	e.notify(Event{Final: final})
	e.closeSubs()

	if s.archive != nil {
		if err := s.archive.Save(final); err != nil {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to archive transcript")
		} else {
			observability.RecordArchived()
		}
	}

	s.logger.Info().
		Str("session_id", id).
		Str("status", string(e.t.Status)).
		Int("turns", len(e.t.Turns)).
		Msg("Session finalized")

	return nil
}

// Get returns a deep-copy snapshot of the transcript. It is safe to call at
// any point in the lifecycle; callers of a running session see the partial
// transcript. Ids already evicted from memory are served from the archive.
func (s *Store) Get(id string) (*transcript.Transcript, error) {
	e, ok := s.lookup(id)
	if !ok {
		if s.archive != nil {
			if t, err := s.archive.Load(id); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t.Clone(), nil
}

// Len reports the number of transcripts currently held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe registers for progress events on a session. The returned cancel
// function must be called when the subscriber is done. If the transcript is
// already terminal, the final event is delivered immediately and the channel
// closed.
func (s *Store) Subscribe(id string) (<-chan Event, func(), error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if e.t.Status.Terminal() {
		ch <- Event{Final: e.t.Clone()}
		close(ch)
		return ch, func() {}, nil
	}

	key := e.next
	e.next++
	e.subs[key] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[key]; ok {
			delete(e.subs, key)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// notify delivers an event to every subscriber without blocking the append
// path. A full buffer sheds its oldest event to make room, so a slow
// subscriber falls behind but always sees the most recent events.
func (e *entry) notify(ev Event) {
	for _, ch := range e.subs {
		for {
			select {
			case ch <- ev:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// closeSubs closes all subscriber channels after the final event.
func (e *entry) closeSubs() {
	for key, ch := range e.subs {
		close(ch)
		delete(e.subs, key)
	}
}

// Evict removes terminal transcripts older than ttl and, when maxEntries is
// positive and exceeded, the oldest terminal transcripts beyond the cap.
// Running and pending transcripts are never removed. Returns the number of
// transcripts evicted.
func (s *Store) Evict(ttl time.Duration, maxEntries int) int {
	type candidate struct {
		id       string
		finished time.Time
	}

	s.mu.Lock()
	var terminal []candidate
	for id, e := range s.entries {
		e.mu.Lock()
		if e.t.Status.Terminal() && e.t.FinishedAt != nil {
			terminal = append(terminal, candidate{id: id, finished: *e.t.FinishedAt})
		}
		e.mu.Unlock()
	}

	cutoff := time.Now().UTC().Add(-ttl)
	evict := make(map[string]bool)
	if ttl > 0 {
		for _, c := range terminal {
			if c.finished.Before(cutoff) {
				evict[c.id] = true
			}
		}
	}

	if maxEntries > 0 && len(s.entries)-len(evict) > maxEntries {
		sort.Slice(terminal, func(i, j int) bool {
			return terminal[i].finished.Before(terminal[j].finished)
		})
		over := len(s.entries) - len(evict) - maxEntries
		for _, c := range terminal {
			if over <= 0 {
				break
			}
			if !evict[c.id] {
				evict[c.id] = true
				over--
			}
		}
	}

	for id := range evict {
		delete(s.entries, id)
	}
	count := len(s.entries)
	s.mu.Unlock()

	if len(evict) > 0 {
		observability.RecordEvictions(len(evict))
		observability.SetActiveSessions(count)
		s.logger.Info().Int("evicted", len(evict)).Int("remaining", count).Msg("Evicted terminal sessions")
	}

	return len(evict)
}
