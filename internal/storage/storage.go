// Package storage provides the relational metadata store for harvested items.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Errors returned by store operations.
var (
	ErrItemNotFound = errors.New("item not found")
)

// Store wraps the SQLite database holding items, cluster assignments,
// and builder bookkeeping.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at the given path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		-- Harvested documents. created_at is unix nanoseconds; it drives
		-- the incremental index watermark, so it must be monotonic per insert
		-- batch and never rewritten.
		CREATE TABLE IF NOT EXISTS items (
			uuid TEXT PRIMARY KEY,
			handle TEXT,
			title TEXT NOT NULL,
			title_norm TEXT,
			abstract TEXT,
			abstract_norm TEXT,
			authors_json TEXT,
			subjects_json TEXT,
			date_issued TEXT,
			url TEXT,
			university TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at);

		-- One cluster assignment per item per model.
		CREATE TABLE IF NOT EXISTS clusters (
			uuid TEXT NOT NULL REFERENCES items(uuid) ON DELETE CASCADE,
			model_name TEXT NOT NULL,
			cluster_id INTEGER NOT NULL,
			PRIMARY KEY (uuid, model_name)
		);

		-- Human-readable topic labels, independent lifecycle from assignments.
		CREATE TABLE IF NOT EXISTS cluster_labels (
			model_name TEXT NOT NULL,
			cluster_id INTEGER NOT NULL,
			label TEXT NOT NULL,
			PRIMARY KEY (model_name, cluster_id)
		);

		-- Key/value bookkeeping (index watermark, etc).
		CREATE TABLE IF NOT EXISTS _meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);
	`

	_, err := db.Exec(schema)
	return err
}
