// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists raw bundles, canonical records and record
// embeddings in SQLite.
//
// Writes are single-writer: each write method runs in one transaction
// while holding an in-process mutex and a lock file next to the database,
// so concurrent processes never interleave writes to the same tables.
// Reads take no lock and may observe the state before an in-flight write.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/papersearch/pkg/types"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// now is swapped in tests for stable timestamps.
var now = func() time.Time { return time.Now().UTC() }

// Store is a handle on the papersearch database. Pass it explicitly to
// every operation that needs storage.
type Store struct {
	db   *sql.DB
	dir  string
	lock *flock.Flock
	mu   sync.Mutex
}

// Open opens or creates the database at cfg.DBPath() and ensures the
// schema exists.
func Open(cfg types.StoreConfig) (*Store, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.DBFile == "" {
		cfg.DBFile = types.DefaultConfig().Store.DBFile
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := cfg.DBPath()
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		dir:  cfg.DataDir,
		lock: flock.New(path + ".lock"),
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS raw_bundles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_id TEXT NOT NULL,
			candidate_work_id TEXT,
			candidate_doi TEXT,
			candidate_arxiv_id TEXT,
			doi TEXT,
			retrieved_at TEXT NOT NULL,
			source_fragments_json TEXT NOT NULL,
			errors_json TEXT NOT NULL,
			source_query TEXT,
			source_pdf_path TEXT,
			UNIQUE(work_id, retrieved_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_bundles_work_id ON raw_bundles(work_id)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_bundles_doi ON raw_bundles(doi)`,
		`CREATE TABLE IF NOT EXISTS canonical_records (
			work_id TEXT NOT NULL UNIQUE,
			doi TEXT,
			title TEXT,
			authors_json TEXT NOT NULL,
			year INTEGER,
			alternate_dois_json TEXT NOT NULL,
			source_bundle_ids_json TEXT NOT NULL,
			provenance_json TEXT NOT NULL,
			merged_fragments_json TEXT NOT NULL,
			confidence REAL NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_canonical_records_work_id ON canonical_records(work_id)`,
		`CREATE INDEX IF NOT EXISTS idx_canonical_records_doi ON canonical_records(doi)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			work_id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			dim INTEGER NOT NULL,
			vector BLOB NOT NULL,
			text_hash TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return s.addColumn("embeddings", "text_hash", `TEXT NOT NULL DEFAULT ''`)
}

// addColumn adds column to table when a database created by an older
// schema lacks it.
func (s *Store) addColumn(table, column, def string) error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + def); err != nil {
		return fmt.Errorf("adding %s.%s: %w", table, column, err)
	}
	return nil
}

// write runs fn in a transaction under the single-writer lock.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquiring write lock: %w", err)
	}
	defer s.lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
