package index

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// lfsPointerPrefix identifies a Git LFS pointer file substituted for the
// real binary. Small snapshot files are sniffed for it at load time.
const lfsPointerPrefix = "version https://git-lfs.github.com"

// lfsSniffLimit bounds the size of files worth sniffing; real snapshots
// larger than this cannot be pointer files.
const lfsSniffLimit = 1024

// snapshotFile is the gob wire form of the snapshot. It carries the
// identifier list alongside the rows so the pair lives in one file and a
// single rename publishes both together.
type snapshotFile struct {
	Version    int
	ModelName  string
	Dimensions int
	CreatedAt  time.Time
	Vectors    [][]float32
	UUIDs      []string
}

// Meta is the sidecar metadata written next to the snapshot pair.
type Meta struct {
	Model        string `json:"model"`
	Dimension    int    `json:"dimension"`
	TotalVectors int    `json:"total_vectors"`
	UpdatedAt    string `json:"updated_at"`
}

// Save persists the snapshot under dir.
//
// The vectors file is authoritative and carries the identifier list, so
// its temp-write-and-rename is the single atomic publication point: a
// concurrent loader sees either the previous complete snapshot or the new
// one, never a mix. The identifier map and metadata sidecars are derived
// copies written first, before the rename publishes them.
func (s *Snapshot) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	mapData, err := json.MarshalIndent(s.uuids, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding identifier map: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, UUIDMapFile), mapData); err != nil {
		return fmt.Errorf("writing identifier map: %w", err)
	}

	meta := Meta{
		Model:        s.modelName,
		Dimension:    s.dimensions,
		TotalVectors: len(s.vectors),
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, MetaFile), metaData); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(snapshotFile{
		Version:    s.version,
		ModelName:  s.modelName,
		Dimensions: s.dimensions,
		CreatedAt:  s.createdAt,
		Vectors:    s.vectors,
		UUIDs:      s.uuids,
	}); err != nil {
		return fmt.Errorf("encoding vectors: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, VectorsFile), buf.Bytes()); err != nil {
		return fmt.Errorf("writing vectors: %w", err)
	}

	return nil
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

// Load reads and validates the snapshot from dir.
//
// The identifier list comes from the vectors file; the sidecar map and
// metadata are cross-checked against it. Integrity failures each map to a
// typed error so callers can surface a precise diagnostic: missing files,
// an unresolved LFS pointer standing in for the binary, a row count that
// disagrees with the identifier map, duplicate identifiers, or sidecars
// left over from a different save.
func Load(dir string) (*Snapshot, error) {
	vectorsPath := filepath.Join(dir, VectorsFile)

	info, err := os.Stat(vectorsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("checking vectors file: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrIndexCorrupt, VectorsFile)
	}

	data, err := os.ReadFile(vectorsPath)
	if err != nil {
		return nil, fmt.Errorf("reading vectors file: %w", err)
	}

	if info.Size() < lfsSniffLimit && bytes.HasPrefix(data, []byte(lfsPointerPrefix)) {
		return nil, fmt.Errorf("%w (size %d bytes)", ErrLFSPointer, info.Size())
	}

	var file snapshotFile
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decoding vectors: %v", ErrIndexCorrupt, err)
	}

	if file.Version != CurrentIndexVersion {
		return nil, fmt.Errorf("%w: unsupported version %d, want %d", ErrIndexCorrupt, file.Version, CurrentIndexVersion)
	}

	if len(file.UUIDs) != len(file.Vectors) {
		return nil, fmt.Errorf("%w: vectors file carries %d identifiers for %d rows", ErrIndexCorrupt, len(file.UUIDs), len(file.Vectors))
	}

	seen := make(map[string]int, len(file.UUIDs))
	for i, u := range file.UUIDs {
		if _, dup := seen[u]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUUID, u)
		}
		seen[u] = i
	}

	for i, vec := range file.Vectors {
		if len(vec) != file.Dimensions {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, want %d", ErrIndexCorrupt, i, len(vec), file.Dimensions)
		}
	}

	if err := validateSidecars(dir, &file); err != nil {
		return nil, err
	}

	return &Snapshot{
		version:    file.Version,
		modelName:  file.ModelName,
		dimensions: file.Dimensions,
		createdAt:  file.CreatedAt,
		vectors:    file.Vectors,
		uuids:      file.UUIDs,
		seen:       seen,
	}, nil
}

// validateSidecars checks the derived identifier map and metadata files
// against the authoritative vectors file. A disagreement means the sidecar
// survives from a different save and the directory must not be trusted.
func validateSidecars(dir string, file *snapshotFile) error {
	mapData, err := os.ReadFile(filepath.Join(dir, UUIDMapFile))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s missing", ErrIndexNotFound, UUIDMapFile)
		}
		return fmt.Errorf("reading identifier map: %w", err)
	}

	var uuids []string
	if err := json.Unmarshal(mapData, &uuids); err != nil {
		return fmt.Errorf("%w: parsing identifier map: %v", ErrIndexCorrupt, err)
	}
	if len(uuids) != len(file.UUIDs) {
		return fmt.Errorf("%w: %d identifiers, %d rows", ErrRowCountMismatch, len(uuids), len(file.UUIDs))
	}
	for i := range uuids {
		if uuids[i] != file.UUIDs[i] {
			return fmt.Errorf("%w: %s row %d has %q, vectors file has %q", ErrPairMismatch, UUIDMapFile, i, uuids[i], file.UUIDs[i])
		}
	}

	meta, err := ReadMeta(dir)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return fmt.Errorf("%w: %s missing", ErrIndexNotFound, MetaFile)
		}
		return err
	}
	if meta.Model != file.ModelName {
		return fmt.Errorf("%w: %s has model %q, vectors file has %q", ErrPairMismatch, MetaFile, meta.Model, file.ModelName)
	}
	if meta.Dimension != file.Dimensions {
		return fmt.Errorf("%w: %s has dimension %d, vectors file has %d", ErrPairMismatch, MetaFile, meta.Dimension, file.Dimensions)
	}
	if meta.TotalVectors != len(file.Vectors) {
		return fmt.Errorf("%w: %s has %d vectors, vectors file has %d", ErrPairMismatch, MetaFile, meta.TotalVectors, len(file.Vectors))
	}

	return nil
}

// Exists reports whether a snapshot pair is present under dir.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, VectorsFile))
	return err == nil
}

// ReadMeta reads the sidecar metadata without loading the vectors.
func ReadMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return &meta, nil
}
