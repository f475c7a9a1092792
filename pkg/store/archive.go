package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jdt2/agents-in-the-loop/pkg/transcript"
)

// Archive persists terminal transcripts to SQLite so they survive eviction
// and process restarts. Writes are best-effort; the in-memory store is the
// source of truth while a session is live.
type Archive struct {
	db *sql.DB
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	data        TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transcripts_finished ON transcripts(finished_at);
`

// OpenArchive opens (creating if needed) the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Save upserts one terminal transcript.
func (a *Archive) Save(t *transcript.Transcript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode transcript %s: %w", t.ID, err)
	}

	var finished interface{}
	if t.FinishedAt != nil {
		finished = t.FinishedAt.UTC()
	}

	_, err = a.db.Exec(`
		INSERT INTO transcripts (id, status, data, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data, finished_at = excluded.finished_at`,
		t.ID, string(t.Status), string(data), t.CreatedAt.UTC(), finished,
	)
	if err != nil {
		return fmt.Errorf("failed to archive transcript %s: %w", t.ID, err)
	}
	return nil
}

// Load returns an archived transcript, or ErrNotFound.
func (a *Archive) Load(id string) (*transcript.Transcript, error) {
	var data string
	err := a.db.QueryRow(`SELECT data FROM transcripts WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archived transcript %s: %w", id, err)
	}

	var t transcript.Transcript
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to decode archived transcript %s: %w", id, err)
	}
	return &t, nil
}

// Prune deletes archived transcripts finished before the cutoff and returns
// the number deleted.
func (a *Archive) Prune(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := a.db.Exec(`DELETE FROM transcripts WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune archive: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
