// Package history keeps a write-only audit log of classification
// outcomes in SQLite. The pipeline never reads it back: post state lives
// and dies with the DOM, and this log exists so a user can ask "why was
// that post hidden yesterday" after the page is long gone.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/cleanfeed/internal/types"
)

// Entry is one recorded classification outcome.
type Entry struct {
	SessionID   string
	PostID      string
	State       string
	Excluded    bool
	PromptCount int
	Duration    time.Duration
	RecordedAt  time.Time
}

// Store handles all database operations. Each Store carries a session ID
// so outcomes from one daemon run group together.
type Store struct {
	db        *sql.DB
	sessionID string
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, sessionID: uuid.NewString()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SessionID identifies this daemon run in recorded entries.
func (s *Store) SessionID() string {
	return s.sessionID
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		state TEXT NOT NULL,
		excluded BOOLEAN NOT NULL,
		prompt_count INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_classifications_recorded_at ON classifications(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_classifications_post_id ON classifications(post_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record inserts one classification outcome.
func (s *Store) Record(ctx context.Context, postID string, state types.Classification, promptCount int, took time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classifications (session_id, post_id, state, excluded, prompt_count, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.sessionID, postID, state.String(), state == types.ExcludedCovered,
		promptCount, took.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record classification: %w", err)
	}
	return nil
}

// RecentByPost returns the most recent outcomes for a post, newest first.
func (s *Store) RecentByPost(ctx context.Context, postID string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, post_id, state, excluded, prompt_count, duration_ms, recorded_at
		FROM classifications
		WHERE post_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`, postID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Recent returns the most recent outcomes across all posts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, post_id, state, excluded, prompt_count, duration_ms, recorded_at
		FROM classifications
		ORDER BY recorded_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Prune deletes entries older than the retention window. Returns how many
// rows were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM classifications WHERE recorded_at < ?
	`, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64

		err := rows.Scan(&e.SessionID, &e.PostID, &e.State, &e.Excluded,
			&e.PromptCount, &durationMS, &e.RecordedAt)
		if err != nil {
			return nil, err
		}

		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
