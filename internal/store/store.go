// Package store is the durable record of every processable unit and every
// submitted bulk job. All pipeline state mutations go through it; no other
// component touches the database directly.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database holding documents, pages and batch jobs.
type Store struct {
	db     *sql.DB
	q      goqu.DialectWrapper
	logger *slog.Logger
}

// Config holds store configuration.
type Config struct {
	// Path is the SQLite database file path. ":memory:" is valid for tests.
	Path string
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// Open opens (creating if necessary) the database at the configured path
// and applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one pooled connection also keeps
	// in-memory test databases coherent.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		q:      goqu.Dialect("sqlite3"),
		logger: logger.With("component", "store"),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema. All statements are idempotent.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			label TEXT NOT NULL UNIQUE,
			transcription_status TEXT NOT NULL DEFAULT 'pending',
			summary_status TEXT NOT NULL DEFAULT 'pending',
			summary TEXT NOT NULL DEFAULT '',
			summary_meta TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id INTEGER NOT NULL REFERENCES documents(id),
			part_index INTEGER NOT NULL,
			source_path TEXT NOT NULL UNIQUE,
			pdf_pages INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'pending',
			transcription TEXT NOT NULL DEFAULT '',
			meta TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(document_id, part_index)
		)`,
		`CREATE TABLE IF NOT EXISTS batch_jobs (
			id TEXT PRIMARY KEY,
			purpose TEXT NOT NULL,
			status TEXT NOT NULL,
			unit_ids TEXT NOT NULL,
			submission_ref TEXT NOT NULL DEFAULT '',
			input_file_id TEXT NOT NULL DEFAULT '',
			output_file_id TEXT NOT NULL DEFAULT '',
			error_file_id TEXT NOT NULL DEFAULT '',
			request_count INTEGER NOT NULL DEFAULT 0,
			completed_count INTEGER NOT NULL DEFAULT 0,
			failed_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			completed_at TEXT,
			processed_at TEXT,
			processed_note TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_status ON pages(status)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_document ON pages(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_date ON documents(date)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// now returns the current UTC time formatted for storage.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// parseTime parses a stored RFC3339 timestamp, returning the zero time
// for empty values.
func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
