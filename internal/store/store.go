// Package store provides the embedded SQLite persistence layer for
// reminders, recurrence patterns, the pending change queue, and sync
// state (client id and watermark).
//
// The database runs in embedded mode with WAL for concurrent reads.
// All timestamps are stored as fixed-width RFC 3339 text so that
// updated_at values sort and compare without ambiguity, which
// last-write-wins conflict resolution depends on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// If the database doesn't exist it is created; call InitSchema before
// first use. The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(".remindful/reminders.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{conn: conn, path: path}

	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := st.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return st, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent, safe to call on every startup.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,

		due_date TEXT,
		due_time TEXT,
		time_required INTEGER NOT NULL DEFAULT 0,

		location_name TEXT,
		location_address TEXT,
		location_lat REAL,
		location_lng REAL,
		location_radius INTEGER NOT NULL DEFAULT 0,

		priority TEXT NOT NULL DEFAULT 'chill',
		category TEXT,

		status TEXT NOT NULL DEFAULT 'pending',
		completed_at TEXT,
		snoozed_until TEXT,

		recurrence_id TEXT,
		is_recurring_instance INTEGER NOT NULL DEFAULT 0,
		original_due_date TEXT,

		source TEXT NOT NULL DEFAULT 'manual',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		synced_at TEXT
	);

	CREATE TABLE IF NOT EXISTS recurrence_patterns (
		id TEXT PRIMARY KEY,
		frequency TEXT NOT NULL,
		interval INTEGER NOT NULL DEFAULT 1,

		days_of_week TEXT,
		day_of_month INTEGER,
		month_of_year INTEGER,

		end_date TEXT,
		end_count INTEGER,

		created_at TEXT NOT NULL
	);

	-- Pending local mutations, one live row per entity.
	CREATE TABLE IF NOT EXISTS change_queue (
		entity_id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		payload TEXT,
		updated_at TEXT NOT NULL,
		queued_at TEXT NOT NULL
	);

	-- Single-row sync state owned by the composition root.
	CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		client_id TEXT NOT NULL,
		last_sync TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reminders_due_date ON reminders(due_date);
	CREATE INDEX IF NOT EXISTS idx_reminders_status ON reminders(status);
	CREATE INDEX IF NOT EXISTS idx_reminders_category ON reminders(category);
	CREATE INDEX IF NOT EXISTS idx_reminders_priority ON reminders(priority);
	CREATE INDEX IF NOT EXISTS idx_reminders_updated ON reminders(updated_at);
	CREATE INDEX IF NOT EXISTS idx_reminders_recurrence ON reminders(recurrence_id);

	-- At most one materialized instance per occurrence date.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reminders_instance
	    ON reminders(recurrence_id, original_due_date)
	    WHERE recurrence_id IS NOT NULL AND recurrence_id != ''
	      AND original_due_date IS NOT NULL AND original_due_date != '';

	CREATE INDEX IF NOT EXISTS idx_change_queue_queued ON change_queue(queued_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// timestampLayout is the storage format for timestamps. Fixed-width
// fractional seconds, unlike RFC3339Nano which trims trailing zeros:
// watermark comparisons in SQL are textual, so every stored timestamp
// must sort lexicographically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := parseTimestamp(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// parseTimestamp accepts both second and sub-second RFC 3339 forms.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// nullString maps empty strings to SQL NULL so partial indexes and
// filters behave.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func stringOrEmpty(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
