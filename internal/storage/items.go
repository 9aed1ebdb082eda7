package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/andeslab/thesisrec/internal/metadata"
)

// selectItemFields is the standard field list for item SELECT queries.
const selectItemFields = `uuid, handle, title, title_norm, abstract, abstract_norm,
	authors_json, subjects_json, date_issued, url, university, created_at`

// InsertItems inserts items that are not already present, keyed by uuid.
// Existing rows are never modified; the uuid is immutable once assigned.
// Returns the number of rows actually inserted.
func (s *Store) InsertItems(items []metadata.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO items (
			uuid, handle, title, title_norm, abstract, abstract_norm,
			authors_json, subjects_json, date_issued, url, university, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, it := range items {
		if it.UUID == "" {
			return 0, fmt.Errorf("item %q has no uuid", it.Title)
		}

		authorsJSON, err := json.Marshal(it.Authors)
		if err != nil {
			return 0, fmt.Errorf("marshaling authors for %s: %w", it.UUID, err)
		}
		subjectsJSON, err := json.Marshal(it.Subjects)
		if err != nil {
			return 0, fmt.Errorf("marshaling subjects for %s: %w", it.UUID, err)
		}

		createdAt := it.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		res, err := stmt.Exec(
			it.UUID, it.Handle, it.Title, it.TitleNorm, it.Abstract, it.AbstractNorm,
			string(authorsJSON), string(subjectsJSON), it.DateIssued, it.URL,
			it.University, createdAt.UnixNano(),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", it.UUID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}

	return inserted, nil
}

// GetItem looks up one item by uuid. Returns ErrItemNotFound if absent.
func (s *Store) GetItem(uuid string) (*metadata.Item, error) {
	row := s.db.QueryRow(`SELECT `+selectItemFields+` FROM items WHERE uuid = ?`, uuid)

	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying item %s: %w", uuid, err)
	}

	return it, nil
}

// ListEligibleSince returns all items eligible for indexing (non-empty
// normalized abstract) created strictly after the given unix-nano watermark,
// ordered by (created_at, uuid).
//
// The ordering is a correctness requirement: row order is the only link
// between the vector snapshot and the identifier map, so reads must be
// deterministic for a fixed store state.
func (s *Store) ListEligibleSince(sinceNano int64) ([]metadata.Item, error) {
	rows, err := s.db.Query(`
		SELECT `+selectItemFields+`
		FROM items
		WHERE abstract_norm IS NOT NULL AND abstract_norm != ''
		  AND created_at > ?
		ORDER BY created_at, uuid
	`, sinceNano)
	if err != nil {
		return nil, fmt.Errorf("querying eligible items: %w", err)
	}
	defer rows.Close()

	var items []metadata.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *it)
	}

	return items, rows.Err()
}

// EligibleCount returns the number of items eligible for indexing.
func (s *Store) EligibleCount() (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM items
		WHERE abstract_norm IS NOT NULL AND abstract_norm != ''
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting eligible items: %w", err)
	}
	return count, nil
}

// ExistingUUIDs returns the set of uuids already stored.
func (s *Store) ExistingUUIDs() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT uuid FROM items`)
	if err != nil {
		return nil, fmt.Errorf("querying uuids: %w", err)
	}
	defer rows.Close()

	uuids := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		uuids[u] = true
	}

	return uuids, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanItem.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(sc scanner) (*metadata.Item, error) {
	var it metadata.Item
	var handle, titleNorm, abstract, abstractNorm sql.NullString
	var authorsJSON, subjectsJSON, dateIssued, url, university sql.NullString
	var createdAt int64

	err := sc.Scan(
		&it.UUID, &handle, &it.Title, &titleNorm, &abstract, &abstractNorm,
		&authorsJSON, &subjectsJSON, &dateIssued, &url, &university, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	it.Handle = handle.String
	it.TitleNorm = titleNorm.String
	it.Abstract = abstract.String
	it.AbstractNorm = abstractNorm.String
	it.DateIssued = dateIssued.String
	it.URL = url.String
	it.University = university.String
	it.CreatedAt = timeFromNano(createdAt)

	if authorsJSON.Valid && authorsJSON.String != "" {
		if err := json.Unmarshal([]byte(authorsJSON.String), &it.Authors); err != nil {
			return nil, fmt.Errorf("unmarshaling authors for %s: %w", it.UUID, err)
		}
	}
	if subjectsJSON.Valid && subjectsJSON.String != "" {
		if err := json.Unmarshal([]byte(subjectsJSON.String), &it.Subjects); err != nil {
			return nil, fmt.Errorf("unmarshaling subjects for %s: %w", it.UUID, err)
		}
	}

	return &it, nil
}

// placeholders returns a comma-separated list of n SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
