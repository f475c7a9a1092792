package store

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor periodically evicts expired terminal transcripts from a Store.
type Janitor struct {
	store      *Store
	ttl        time.Duration
	maxEntries int
	schedule   string
	cron       *cron.Cron
	logger     zerolog.Logger
}

// NewJanitor creates a janitor. schedule accepts standard cron expressions
// and descriptors such as "@every 5m".
func NewJanitor(store *Store, ttl time.Duration, maxEntries int, schedule string, logger zerolog.Logger) *Janitor {
	return &Janitor{
		store:      store,
		ttl:        ttl,
		maxEntries: maxEntries,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start begins the eviction schedule. It returns an error if the schedule
// expression does not parse.
func (j *Janitor) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, j.RunNow); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.cron = c

	j.logger.Info().
		Str("schedule", j.schedule).
		Dur("ttl", j.ttl).
		Int("max_entries", j.maxEntries).
		Msg("Session janitor started")
	return nil
}

// RunNow performs one eviction pass immediately.
func (j *Janitor) RunNow() {
	evicted := j.store.Evict(j.ttl, j.maxEntries)
	if evicted > 0 {
		j.logger.Debug().Int("evicted", evicted).Msg("Janitor pass complete")
	}
}

// Stop halts the schedule and waits for any in-flight pass to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		ctx := j.cron.Stop()
		<-ctx.Done()
		j.logger.Info().Msg("Session janitor stopped")
	}
}
