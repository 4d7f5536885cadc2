// Package store provides a SQLite-backed history of indexing runs. Each run
// summary is persisted so operators can audit what was indexed when, which
// documents failed, and which corpus version a run published.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/grounder-ai/grounder/internal/index"
)

// Run is one persisted indexing-run record.
type Run struct {
	// RunID identifies the run.
	RunID string
	// Version is the corpus version the run published, empty if it failed
	// before publishing.
	Version string
	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time
	// DocumentsSucceeded and DocumentsFailed count source documents.
	DocumentsSucceeded int
	DocumentsFailed    int
	// ChunksEmbedded and ChunksFailed count chunks.
	ChunksEmbedded int
	ChunksFailed   int
	// Error is the run's terminal error message, empty on success.
	Error string
}

// RunStore persists and retrieves indexing-run history. Implementations
// must be safe for concurrent use.
type RunStore interface {
	// Record persists one run summary. err may be nil for successful runs.
	Record(ctx context.Context, summary *index.RunSummary, err error) error
	// Recent returns the most recent n runs, newest first.
	Recent(ctx context.Context, n int) ([]Run, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a RunStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the run-history database.
// It resolves to ~/.grounder/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".grounder")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id              TEXT    NOT NULL UNIQUE,
    version             TEXT    NOT NULL DEFAULT '',
    started_at          INTEGER NOT NULL,  -- Unix timestamp (seconds)
    finished_at         INTEGER NOT NULL,
    documents_succeeded INTEGER NOT NULL,
    documents_failed    INTEGER NOT NULL,
    chunks_embedded     INTEGER NOT NULL,
    chunks_failed       INTEGER NOT NULL,
    error               TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs (started_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists one run summary.
func (s *SQLiteStore) Record(ctx context.Context, summary *index.RunSummary, runErr error) error {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	const q = `
INSERT INTO runs (run_id, version, started_at, finished_at,
                  documents_succeeded, documents_failed,
                  chunks_embedded, chunks_failed, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		summary.RunID, summary.Version,
		summary.StartedAt.Unix(), summary.FinishedAt.Unix(),
		summary.DocumentsSucceeded, summary.DocumentsFailed,
		summary.ChunksEmbedded, summary.ChunksFailed, errMsg,
	)
	if err != nil {
		return fmt.Errorf("store: record run %s: %w", summary.RunID, err)
	}
	return nil
}

// Recent returns the most recent n runs, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Run, error) {
	const q = `
SELECT run_id, version, started_at, finished_at,
       documents_succeeded, documents_failed,
       chunks_embedded, chunks_failed, error
FROM   runs
ORDER  BY started_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.RunID, &r.Version, &started, &finished,
			&r.DocumentsSucceeded, &r.DocumentsFailed,
			&r.ChunksEmbedded, &r.ChunksFailed, &r.Error); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return runs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
