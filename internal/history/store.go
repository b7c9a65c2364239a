// Package history keeps a local SQLite cache of finalized transcript
// entries and the most recent job listing, so the CLI can show past work
// without a network round-trip. The jobs table is a last-write-wins snapshot
// of the server listing, not a source of truth.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"manimate/internal/api"
)

// Entry is one finalized transcript message as stored locally.
type Entry struct {
	ID           string
	Role         string
	Content      string
	Status       string
	AnimationURL string
	CreatedAt    time.Time
}

// Store provides the cache operations.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the cache database and initializes its schema.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	// WAL keeps the CLI responsive if a poll finalization and a history
	// read overlap.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite tolerates a single writer; keep one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id            TEXT PRIMARY KEY,
		role          TEXT NOT NULL,
		content       TEXT NOT NULL,
		status        TEXT NOT NULL,
		animation_url TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

	CREATE TABLE IF NOT EXISTS jobs (
		id            TEXT PRIMARY KEY,
		prompt        TEXT NOT NULL,
		quality       TEXT NOT NULL,
		status        TEXT NOT NULL,
		video_url     TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveEntry upserts one finalized transcript entry.
func (s *Store) SaveEntry(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, role, content, status, animation_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			status = excluded.status,
			animation_url = excluded.animation_url`,
		e.ID, e.Role, e.Content, e.Status, e.AnimationURL, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

// RecentEntries returns the newest limit entries in chronological order.
func (s *Store) RecentEntries(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, status, animation_url, created_at
		FROM messages ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	// Newest-first from the query; flip to reading order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// SearchPrompts finds past user prompts containing term.
func (s *Store) SearchPrompts(ctx context.Context, term string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, status, animation_url, created_at
		FROM messages
		WHERE role = 'user' AND content LIKE '%' || ? || '%'
		ORDER BY created_at DESC LIMIT ?`, term, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ClearEntries drops the whole local transcript.
func (s *Store) ClearEntries(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Role, &e.Content, &e.Status, &e.AnimationURL, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReplaceJobs swaps the cached listing snapshot for the given page.
func (s *Store) ReplaceJobs(ctx context.Context, jobs []api.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin jobs refresh: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("failed to clear jobs: %w", err)
	}
	for _, j := range jobs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, prompt, quality, status, video_url, error_message, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, j.Prompt, string(j.Quality), string(j.Status), j.VideoURL, j.ErrorMessage,
			j.CreatedAt.Unix(), j.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert job %s: %w", j.ID, err)
		}
	}
	return tx.Commit()
}

// Jobs returns the cached listing snapshot, newest first.
func (s *Store) Jobs(ctx context.Context) ([]api.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt, quality, status, video_url, error_message, created_at, updated_at
		FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []api.Job
	for rows.Next() {
		var j api.Job
		var quality, status string
		var createdAt, updatedAt int64
		if err := rows.Scan(&j.ID, &j.Prompt, &quality, &status, &j.VideoURL, &j.ErrorMessage, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		j.Quality = api.Quality(quality)
		j.Status = api.JobStatus(status)
		j.CreatedAt = time.Unix(createdAt, 0)
		j.UpdatedAt = time.Unix(updatedAt, 0)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// RemoveJob evicts one job from the cached listing after a server-side
// delete succeeds.
func (s *Store) RemoveJob(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove job: %w", err)
	}
	return nil
}
