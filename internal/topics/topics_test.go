package topics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/andeslab/thesisrec/internal/index"
	"github.com/andeslab/thesisrec/internal/metadata"
	"github.com/andeslab/thesisrec/internal/storage"
)

// twoTopicSnapshot has two tight groups of three rows each plus one
// orthogonal outlier.
func twoTopicSnapshot(t *testing.T) *index.Snapshot {
	t.Helper()
	s, err := index.NewSnapshot("test-model", 3)
	if err != nil {
		t.Fatal(err)
	}

	rows := []struct {
		uuid string
		vec  []float32
	}{
		{"agro-1", []float32{1, 0, 0}},
		{"agro-2", []float32{0.98, 0.02, 0}},
		{"agro-3", []float32{0.95, 0.05, 0}},
		{"med-1", []float32{0, 1, 0}},
		{"med-2", []float32{0.02, 0.98, 0}},
		{"med-3", []float32{0.05, 0.95, 0}},
		{"outlier", []float32{0, 0, 1}},
	}
	for _, r := range rows {
		if err := s.Append(r.uuid, r.vec); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestClusterSeparatesTopics(t *testing.T) {
	snap := twoTopicSnapshot(t)

	assignments, labels, result, err := Cluster(snap, Config{})
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}

	if result.Clusters != 2 {
		t.Errorf("Clusters = %d, want 2", result.Clusters)
	}
	if result.Assigned != 6 {
		t.Errorf("Assigned = %d, want 6", result.Assigned)
	}
	if result.Noise != 1 {
		t.Errorf("Noise = %d, want 1", result.Noise)
	}

	// First-appearance numbering: agro group is cluster 0
	for _, u := range []string{"agro-1", "agro-2", "agro-3"} {
		if assignments[u] != 0 {
			t.Errorf("assignments[%s] = %d, want 0", u, assignments[u])
		}
	}
	for _, u := range []string{"med-1", "med-2", "med-3"} {
		if assignments[u] != 1 {
			t.Errorf("assignments[%s] = %d, want 1", u, assignments[u])
		}
	}
	if _, ok := assignments["outlier"]; ok {
		t.Error("noise rows must not appear in assignments")
	}

	if labels[0] != "cluster 0" || labels[1] != "cluster 1" {
		t.Errorf("labels = %v", labels)
	}
}

func TestClusterHighThresholdYieldsNoise(t *testing.T) {
	snap := twoTopicSnapshot(t)

	// Nothing but an exact duplicate clears 0.9999, so every row founds
	// its own undersized cluster.
	_, _, result, err := Cluster(snap, Config{Threshold: 0.9999, MinClusterSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	if result.Clusters != 0 {
		t.Errorf("Clusters = %d, want 0", result.Clusters)
	}
	if result.Noise != snap.Count() {
		t.Errorf("Noise = %d, want %d", result.Noise, snap.Count())
	}
}

func TestClusterMinSizeDemotesSmallGroups(t *testing.T) {
	snap := twoTopicSnapshot(t)

	// Size 4 exceeds both groups of three
	_, _, result, err := Cluster(snap, Config{MinClusterSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	if result.Clusters != 0 || result.Assigned != 0 {
		t.Errorf("Clusters = %d, Assigned = %d, want 0, 0", result.Clusters, result.Assigned)
	}
}

func TestClusterEmptySnapshot(t *testing.T) {
	snap, _ := index.NewSnapshot("test-model", 3)

	assignments, labels, result, err := Cluster(snap, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 0 || len(labels) != 0 || result.Clusters != 0 {
		t.Error("empty snapshot should yield empty results")
	}
}

func TestClusterIDs(t *testing.T) {
	ids := ClusterIDs(map[string]int{"a": 1, "b": 0, "c": 1, "d": 2})
	want := []int{0, 1, 2}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestBuildAndStore(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	snap := twoTopicSnapshot(t)

	// Cluster rows reference items, so the items must exist first
	items := make([]metadata.Item, 0, snap.Count())
	for i, u := range snap.UUIDs() {
		it := metadata.Item{
			UUID:      u,
			Title:     "Tesis " + u,
			Abstract:  "Resumen " + u,
			CreatedAt: time.Date(2026, 4, 1, 8, 0, i, 0, time.UTC),
		}
		it.Normalize()
		items = append(items, it)
	}
	if _, err := store.InsertItems(items); err != nil {
		t.Fatal(err)
	}

	result, err := BuildAndStore(snap, store, Config{})
	if err != nil {
		t.Fatalf("BuildAndStore failed: %v", err)
	}
	if result.Assigned != 6 {
		t.Errorf("Assigned = %d, want 6", result.Assigned)
	}

	enriched, err := store.EnrichItems([]string{"agro-1", "med-2", "outlier"}, "test-model")
	if err != nil {
		t.Fatal(err)
	}

	if it := enriched["agro-1"]; it.ClusterID == nil || *it.ClusterID != 0 {
		t.Errorf("agro-1 cluster = %v, want 0", it.ClusterID)
	}
	if it := enriched["agro-1"]; it.Label != "cluster 0" {
		t.Errorf("agro-1 label = %q", it.Label)
	}
	if it := enriched["med-2"]; it.ClusterID == nil || *it.ClusterID != 1 {
		t.Errorf("med-2 cluster = %v, want 1", it.ClusterID)
	}
	if it := enriched["outlier"]; it.ClusterID != nil {
		t.Errorf("outlier should have no cluster, got %v", *it.ClusterID)
	}
}
