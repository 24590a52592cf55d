// Package history keeps a SQLite ledger of finished acquisition jobs.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/logger"

	_ "modernc.org/sqlite"
)

// Entry is one finished job.
type Entry struct {
	ID           string
	URL          string
	MediaURL     string
	Path         string
	Outcome      string
	Error        string
	UsedFallback bool
	Segments     int
	Bytes        int64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration is the wall time of the job.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store is a job ledger backed by a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrHistoryStore), errors.ErrHistoryStore)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrHistoryStore), errors.ErrHistoryStore)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the jobs table when it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	media_url TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	used_fallback INTEGER NOT NULL DEFAULT 0,
	segments INTEGER NOT NULL DEFAULT 0,
	bytes INTEGER NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_finished_at ON jobs(finished_at);`)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrHistoryStore), errors.ErrHistoryStore)
	}
	return nil
}

// Record inserts or replaces the entry with the same ID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id, url, media_url, path, outcome, error, used_fallback, segments, bytes, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	url = excluded.url,
	media_url = excluded.media_url,
	path = excluded.path,
	outcome = excluded.outcome,
	error = excluded.error,
	used_fallback = excluded.used_fallback,
	segments = excluded.segments,
	bytes = excluded.bytes,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at;`,
		e.ID, e.URL, e.MediaURL, e.Path, e.Outcome, e.Error, e.UsedFallback, e.Segments, e.Bytes,
		formatTime(e.StartedAt), formatTime(e.FinishedAt))
	if err != nil {
		return errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrHistoryStore), errors.ErrHistoryStore)
	}

	logger.Debug("Job recorded", "history", map[string]interface{}{
		"id":      e.ID,
		"outcome": e.Outcome,
	})
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, url, media_url, path, outcome, error, used_fallback, segments, bytes, started_at, finished_at
FROM jobs
ORDER BY finished_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrHistoryStore), errors.ErrHistoryStore)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.MediaURL, &e.Path, &e.Outcome, &e.Error,
			&e.UsedFallback, &e.Segments, &e.Bytes, &started, &finished); err != nil {
			return nil, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrHistoryStore), errors.ErrHistoryStore)
		}
		e.StartedAt = parseTime(started)
		e.FinishedAt = parseTime(finished)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrHistoryStore), errors.ErrHistoryStore)
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
