// Package topics groups snapshot rows into topic clusters.
//
// Clustering is a leader pass over the vectors: each row joins the most
// similar existing leader above the threshold or founds a new cluster.
// Small clusters are demoted to noise. The pass only reads the snapshot;
// results land in the metadata store and never touch the snapshot files,
// so a failed or skipped clustering run leaves serving unaffected.
package topics

import (
	"fmt"
	"sort"

	"github.com/andeslab/thesisrec/internal/index"
	"github.com/andeslab/thesisrec/internal/storage"
)

const (
	// DefaultThreshold is the minimum cosine similarity to an existing
	// leader for a row to join its cluster.
	DefaultThreshold = 0.6

	// DefaultMinClusterSize demotes smaller clusters to noise.
	DefaultMinClusterSize = 3

	// Noise marks rows that belong to no cluster. Noise assignments are
	// not stored.
	Noise = -1
)

// Config tunes the clustering pass.
type Config struct {
	Threshold      float64
	MinClusterSize int
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MinClusterSize <= 0 {
		c.MinClusterSize = DefaultMinClusterSize
	}
	return c
}

// Result summarizes a clustering pass.
type Result struct {
	Clusters int `json:"clusters"`
	Assigned int `json:"assigned"`
	Noise    int `json:"noise"`
}

// Cluster runs the leader pass over every snapshot row and returns the
// uuid-to-cluster assignments (noise excluded) with placeholder labels.
// Cluster ids are dense, numbered by order of first appearance.
func Cluster(snap *index.Snapshot, cfg Config) (map[string]int, map[int]string, *Result, error) {
	cfg = cfg.withDefaults()

	n := snap.Count()
	assigned := make([]int, n)
	var leaders []int // row index of each cluster's founding vector

	for row := 0; row < n; row++ {
		vec, err := snap.VectorAt(row)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reading row %d: %w", row, err)
		}

		best, bestScore := Noise, float32(0)
		for cluster, leaderRow := range leaders {
			leader, err := snap.VectorAt(leaderRow)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("reading leader row %d: %w", leaderRow, err)
			}
			if score := index.CosineSimilarity(vec, leader); score > bestScore {
				best, bestScore = cluster, score
			}
		}

		if best != Noise && float64(bestScore) >= cfg.Threshold {
			assigned[row] = best
			continue
		}
		assigned[row] = len(leaders)
		leaders = append(leaders, row)
	}

	// Demote undersized clusters to noise, then renumber survivors
	// densely in order of first appearance.
	sizes := make(map[int]int)
	for _, c := range assigned {
		sizes[c]++
	}
	renumber := make(map[int]int)
	for _, c := range assigned {
		if sizes[c] < cfg.MinClusterSize {
			continue
		}
		if _, ok := renumber[c]; !ok {
			renumber[c] = len(renumber)
		}
	}

	result := &Result{Clusters: len(renumber)}
	assignments := make(map[string]int)
	for row, c := range assigned {
		id, ok := renumber[c]
		if !ok {
			result.Noise++
			continue
		}
		u, err := snap.UUIDAt(row)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolving row %d: %w", row, err)
		}
		assignments[u] = id
		result.Assigned++
	}

	labels := make(map[int]string, len(renumber))
	for _, id := range renumber {
		labels[id] = fmt.Sprintf("cluster %d", id)
	}

	return assignments, labels, result, nil
}

// BuildAndStore clusters the snapshot and replaces the stored assignments
// and labels for the snapshot's model in one transaction.
func BuildAndStore(snap *index.Snapshot, store *storage.Store, cfg Config) (*Result, error) {
	assignments, labels, result, err := Cluster(snap, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.ReplaceClusters(snap.ModelName(), assignments, labels); err != nil {
		return nil, fmt.Errorf("storing clusters: %w", err)
	}
	return result, nil
}

// ClusterIDs returns the dense cluster ids in ascending order, mostly for
// reporting.
func ClusterIDs(assignments map[string]int) []int {
	seen := make(map[int]bool)
	for _, id := range assignments {
		seen[id] = true
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
