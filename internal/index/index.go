// Package index implements the persisted vector snapshot and its
// row-to-identifier map.
//
// The snapshot is an ordered sequence of vectors; row i corresponds to
// identifier map entry i. The two are one paired structure on purpose:
// rows and identifiers only ever move together, so they cannot drift out
// of alignment.
package index

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by snapshot operations.
var (
	ErrIndexNotFound    = errors.New("vector snapshot not found")
	ErrIndexCorrupt     = errors.New("vector snapshot corrupt")
	ErrLFSPointer       = errors.New("vector snapshot is a Git LFS pointer, not the actual file")
	ErrRowCountMismatch = errors.New("identifier map length does not match snapshot row count")
	ErrDuplicateUUID    = errors.New("duplicate uuid in identifier map")
	ErrPairMismatch     = errors.New("identifier map or metadata comes from a different save than the vectors file")
	ErrModelMismatch    = errors.New("snapshot was built with a different embedding model")
	ErrDimensionChange  = errors.New("vector dimensions do not match snapshot")
)

const (
	// VectorsFile holds the gob-encoded vector rows together with the
	// identifier list. It is the authoritative file: its rename is what
	// publishes a new snapshot.
	VectorsFile = "vectors.gob"

	// UUIDMapFile holds the ordered identifier list as a JSON array,
	// derived from the vectors file at save time for external tooling.
	// Entry i resolves snapshot row i; Load cross-checks it against the
	// list embedded in the vectors file.
	UUIDMapFile = "uuid_map.json"

	// MetaFile records model name, dimension, and row count for
	// operational tooling; Load cross-checks it against the vectors file.
	MetaFile = "meta.json"

	// CurrentIndexVersion is the snapshot format version.
	// Increment on breaking format changes.
	CurrentIndexVersion = 1
)

// Snapshot is an in-memory vector index paired with its identifier map.
// Fields are unexported so rows can only be added through Append, which
// maintains the row/identifier pairing invariant.
type Snapshot struct {
	version    int
	modelName  string
	dimensions int
	createdAt  time.Time
	vectors    [][]float32
	uuids      []string
	seen       map[string]int
}

// NewSnapshot creates an empty snapshot for the given model and dimensions.
func NewSnapshot(modelName string, dimensions int) (*Snapshot, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &Snapshot{
		version:    CurrentIndexVersion,
		modelName:  modelName,
		dimensions: dimensions,
		createdAt:  time.Now(),
		seen:       make(map[string]int),
	}, nil
}

// Append adds one vector and its identifier as the next row.
// Append is the only mutation; existing rows are never reordered or
// rewritten.
func (s *Snapshot) Append(uuid string, vector []float32) error {
	if uuid == "" {
		return fmt.Errorf("empty uuid")
	}
	if len(vector) != s.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionChange, len(vector), s.dimensions)
	}
	if _, dup := s.seen[uuid]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateUUID, uuid)
	}

	s.seen[uuid] = len(s.uuids)
	s.vectors = append(s.vectors, vector)
	s.uuids = append(s.uuids, uuid)
	return nil
}

// Count returns the number of rows.
func (s *Snapshot) Count() int {
	return len(s.uuids)
}

// ModelName returns the embedding model recorded in the snapshot.
func (s *Snapshot) ModelName() string {
	return s.modelName
}

// Dimensions returns the vector width.
func (s *Snapshot) Dimensions() int {
	return s.dimensions
}

// CreatedAt returns when the snapshot was first built.
func (s *Snapshot) CreatedAt() time.Time {
	return s.createdAt
}

// UUIDAt resolves a row offset to its identifier.
func (s *Snapshot) UUIDAt(row int) (string, error) {
	if row < 0 || row >= len(s.uuids) {
		return "", fmt.Errorf("row %d out of range [0, %d)", row, len(s.uuids))
	}
	return s.uuids[row], nil
}

// VectorAt returns the vector at the given row. The returned slice is
// the snapshot's backing storage; callers must treat it as read-only.
func (s *Snapshot) VectorAt(row int) ([]float32, error) {
	if row < 0 || row >= len(s.vectors) {
		return nil, fmt.Errorf("row %d out of range [0, %d)", row, len(s.vectors))
	}
	return s.vectors[row], nil
}

// Has reports whether the identifier is present in the map.
func (s *Snapshot) Has(uuid string) bool {
	_, ok := s.seen[uuid]
	return ok
}

// UUIDs returns a copy of the identifier map in row order.
func (s *Snapshot) UUIDs() []string {
	out := make([]string, len(s.uuids))
	copy(out, s.uuids)
	return out
}

// ValidateModel returns ErrModelMismatch when the snapshot was built with a
// different embedding model than the one given. Querying across models is
// undefined, so callers must check before searching.
func (s *Snapshot) ValidateModel(modelName string) error {
	if s.modelName != modelName {
		return fmt.Errorf("%w: snapshot has %q, configured %q", ErrModelMismatch, s.modelName, modelName)
	}
	return nil
}
