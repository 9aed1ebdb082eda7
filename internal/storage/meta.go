package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// watermarkKey is the _meta key tracking the newest created_at (unix nanos)
// covered by the last successful index run.
const watermarkKey = "index_watermark"

// Watermark returns the incremental-index watermark, or 0 when no run has
// completed yet.
func (s *Store) Watermark() (int64, error) {
	var value sql.NullString
	err := s.db.QueryRow(`SELECT value FROM _meta WHERE key = ?`, watermarkKey).Scan(&value)
	if err == sql.ErrNoRows || !value.Valid {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading watermark: %w", err)
	}

	nano, err := strconv.ParseInt(value.String, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing watermark %q: %w", value.String, err)
	}
	return nano, nil
}

// SetWatermark stores the incremental-index watermark.
func (s *Store) SetWatermark(nano int64) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`,
		watermarkKey, strconv.FormatInt(nano, 10),
	)
	if err != nil {
		return fmt.Errorf("storing watermark: %w", err)
	}
	return nil
}

// MaxCreatedAt returns the newest item creation timestamp in unix nanos,
// or 0 for an empty store.
func (s *Store) MaxCreatedAt() (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(created_at) FROM items`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max created_at: %w", err)
	}
	return max.Int64, nil
}

func timeFromNano(nano int64) time.Time {
	return time.Unix(0, nano)
}
