package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andeslab/thesisrec/internal/embedding/embeddingtest"
	"github.com/andeslab/thesisrec/internal/index"
	"github.com/andeslab/thesisrec/internal/metadata"
	"github.com/andeslab/thesisrec/internal/storage"
)

const testDims = 8

var testBase = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func testItem(uuid, title, abstract string, offset time.Duration) metadata.Item {
	it := metadata.Item{
		UUID:       uuid,
		Title:      title,
		Abstract:   abstract,
		University: "UNAP",
		CreatedAt:  testBase.Add(offset),
	}
	it.Normalize()
	return it
}

// setupBuilder returns a builder over a store seeded with three eligible
// items (A, B, C) and the snapshot directory.
func setupBuilder(t *testing.T) (*Builder, *storage.Store, *embeddingtest.Provider, string) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	items := []metadata.Item{
		testItem("A", "Cultivo de quinua", "Resumen sobre el cultivo de quinua en el altiplano.", 0),
		testItem("B", "Diagnostico medico", "Resumen sobre diagnostico medico asistido por computador.", time.Second),
		testItem("C", "Turismo receptivo", "Resumen sobre el impacto del turismo receptivo en Puno.", 2*time.Second),
	}
	if _, err := store.InsertItems(items); err != nil {
		t.Fatal(err)
	}

	provider := embeddingtest.New("test-model", testDims)
	modelDir := t.TempDir()

	return New(provider, store, modelDir, 2), store, provider, modelDir
}

func TestFullRebuild(t *testing.T) {
	b, store, _, modelDir := setupBuilder(t)

	stats, err := b.FullRebuild(context.Background())
	if err != nil {
		t.Fatalf("FullRebuild failed: %v", err)
	}

	if stats.Mode != "full_rebuild" {
		t.Errorf("Mode = %q", stats.Mode)
	}
	if stats.ItemsIndexed != 3 || stats.TotalRows != 3 {
		t.Errorf("ItemsIndexed = %d, TotalRows = %d, want 3, 3", stats.ItemsIndexed, stats.TotalRows)
	}

	snap, err := index.Load(modelDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Count() != 3 {
		t.Errorf("Count() = %d, want 3", snap.Count())
	}

	// Rows ordered by (created_at, uuid), no duplicates
	uuids := snap.UUIDs()
	want := []string{"A", "B", "C"}
	for i := range want {
		if uuids[i] != want[i] {
			t.Errorf("row %d = %s, want %s", i, uuids[i], want[i])
		}
	}

	// Watermark advanced to max processed created_at
	mark, err := store.Watermark()
	if err != nil {
		t.Fatal(err)
	}
	if mark != testBase.Add(2*time.Second).UnixNano() {
		t.Errorf("watermark = %d, want C's created_at", mark)
	}
}

func TestFullRebuildIsReproducible(t *testing.T) {
	b, _, _, modelDir := setupBuilder(t)

	if _, err := b.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(filepath.Join(modelDir, index.UUIDMapFile))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(modelDir, index.UUIDMapFile))
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Error("rebuild over the same store state must produce the same identifier map")
	}
}

func TestIncrementalUpdateAppendsOnly(t *testing.T) {
	b, store, _, modelDir := setupBuilder(t)

	if _, err := b.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	d := testItem("D", "Suelos andinos", "Resumen sobre la composicion de suelos andinos.", 10*time.Second)
	if _, err := store.InsertItems([]metadata.Item{d}); err != nil {
		t.Fatal(err)
	}

	stats, err := b.IncrementalUpdate(context.Background())
	if err != nil {
		t.Fatalf("IncrementalUpdate failed: %v", err)
	}
	if stats.ItemsIndexed != 1 {
		t.Errorf("ItemsIndexed = %d, want 1", stats.ItemsIndexed)
	}
	if stats.TotalRows != 4 {
		t.Errorf("TotalRows = %d, want 4", stats.TotalRows)
	}

	snap, err := index.Load(modelDir)
	if err != nil {
		t.Fatal(err)
	}

	// Existing rows keep their offsets; D is appended at the end
	uuids := snap.UUIDs()
	want := []string{"A", "B", "C", "D"}
	for i := range want {
		if uuids[i] != want[i] {
			t.Errorf("row %d = %s, want %s", i, uuids[i], want[i])
		}
	}
}

func TestIncrementalUpdateNoNewItemsIsNoOp(t *testing.T) {
	b, store, _, modelDir := setupBuilder(t)

	if _, err := b.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats, err := b.IncrementalUpdate(context.Background())
	if err != nil {
		t.Fatalf("first IncrementalUpdate failed: %v", err)
	}
	if stats.ItemsIndexed != 0 {
		t.Errorf("ItemsIndexed = %d, want 0", stats.ItemsIndexed)
	}

	vectorsPath := filepath.Join(modelDir, index.VectorsFile)
	mapPath := filepath.Join(modelDir, index.UUIDMapFile)
	firstVectors, _ := os.ReadFile(vectorsPath)
	firstMap, _ := os.ReadFile(mapPath)
	markBefore, _ := store.Watermark()

	if _, err := b.IncrementalUpdate(context.Background()); err != nil {
		t.Fatalf("second IncrementalUpdate failed: %v", err)
	}

	secondVectors, _ := os.ReadFile(vectorsPath)
	secondMap, _ := os.ReadFile(mapPath)
	markAfter, _ := store.Watermark()

	if string(firstVectors) != string(secondVectors) {
		t.Error("vectors file must be byte-identical after a no-op update")
	}
	if string(firstMap) != string(secondMap) {
		t.Error("identifier map must be byte-identical after a no-op update")
	}
	if markBefore != markAfter {
		t.Errorf("watermark changed on no-op: %d -> %d", markBefore, markAfter)
	}
}

func TestIncrementalUpdateWithoutSnapshot(t *testing.T) {
	b, _, _, _ := setupBuilder(t)

	_, err := b.IncrementalUpdate(context.Background())
	if !errors.Is(err, ErrRebuildRequired) {
		t.Errorf("expected ErrRebuildRequired, got %v", err)
	}
}

func TestIncrementalUpdateDimensionMismatch(t *testing.T) {
	b, store, _, modelDir := setupBuilder(t)

	if _, err := b.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Same model name, different output width: model swapped underneath
	wider := embeddingtest.New("test-model", testDims*2)
	b2 := New(wider, store, modelDir, 2)

	_, err := b2.IncrementalUpdate(context.Background())
	if !errors.Is(err, ErrRebuildRequired) {
		t.Errorf("expected ErrRebuildRequired, got %v", err)
	}

	// Snapshot on disk untouched
	snap, err := index.Load(modelDir)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Count() != 3 || snap.Dimensions() != testDims {
		t.Error("failed update must not mutate the persisted snapshot")
	}
}

func TestIncrementalUpdateModelMismatch(t *testing.T) {
	b, store, _, modelDir := setupBuilder(t)

	if _, err := b.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	other := embeddingtest.New("other-model", testDims)
	b2 := New(other, store, modelDir, 2)

	_, err := b2.IncrementalUpdate(context.Background())
	if !errors.Is(err, ErrRebuildRequired) {
		t.Errorf("expected ErrRebuildRequired, got %v", err)
	}
}

func TestEmbeddingFailureLeavesOldPairAuthoritative(t *testing.T) {
	b, store, provider, modelDir := setupBuilder(t)

	if _, err := b.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	markBefore, _ := store.Watermark()

	d := testItem("D", "Nueva tesis", "Resumen de la nueva tesis agregada.", 10*time.Second)
	if _, err := store.InsertItems([]metadata.Item{d}); err != nil {
		t.Fatal(err)
	}

	provider.Fail = errors.New("embedding service down")
	if _, err := b.IncrementalUpdate(context.Background()); err == nil {
		t.Fatal("expected failure from embedding provider")
	}

	snap, err := index.Load(modelDir)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Count() != 3 {
		t.Errorf("snapshot rows = %d, want previous 3", snap.Count())
	}
	if markAfter, _ := store.Watermark(); markAfter != markBefore {
		t.Error("watermark must not advance on a failed run")
	}

	// Recovery: clear the fault and retry
	provider.Fail = nil
	if _, err := b.IncrementalUpdate(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	snap, _ = index.Load(modelDir)
	if snap.Count() != 4 {
		t.Errorf("rows after retry = %d, want 4", snap.Count())
	}
}

func TestBatchSizeDoesNotAffectVectors(t *testing.T) {
	b1, store, provider, dir1 := setupBuilder(t)

	if _, err := b1.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	dir2 := t.TempDir()
	b2 := New(provider, store, dir2, 1) // one item per batch
	if _, err := b2.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap1, err := index.Load(dir1)
	if err != nil {
		t.Fatal(err)
	}
	snap2, err := index.Load(dir2)
	if err != nil {
		t.Fatal(err)
	}

	// Same query must score identically against both snapshots
	ctx := context.Background()
	q, err := provider.Embed(ctx, "resumen sobre el cultivo de quinua en el altiplano.")
	if err != nil {
		t.Fatal(err)
	}

	r1 := snap1.Search(q.Vector, 3)
	r2 := snap2.Search(q.Vector, 3)
	for i := range r1 {
		if r1[i].UUID != r2[i].UUID || r1[i].Score != r2[i].Score {
			t.Fatalf("result %d differs across batch sizes: %+v vs %+v", i, r1[i], r2[i])
		}
	}
}

func TestRunDispatchesModes(t *testing.T) {
	b, _, _, _ := setupBuilder(t)

	stats, err := b.Run(context.Background(), FullRebuild)
	if err != nil {
		t.Fatalf("Run(FullRebuild) failed: %v", err)
	}
	if stats.Mode != "full_rebuild" {
		t.Errorf("Mode = %q", stats.Mode)
	}

	stats, err = b.Run(context.Background(), IncrementalUpdate)
	if err != nil {
		t.Fatalf("Run(IncrementalUpdate) failed: %v", err)
	}
	if stats.Mode != "incremental_update" {
		t.Errorf("Mode = %q", stats.Mode)
	}

	if _, err := b.Run(context.Background(), Mode(99)); err == nil {
		t.Error("unknown mode should error")
	}
}

func TestProgressReporting(t *testing.T) {
	b, _, _, _ := setupBuilder(t)

	var calls [][2]int
	b.SetProgressReporter(ProgressFunc(func(current, total int) {
		calls = append(calls, [2]int{current, total})
	}))

	if _, err := b.FullRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 3 items, batch size 2: two batches
	if len(calls) != 2 {
		t.Fatalf("expected 2 progress calls, got %d", len(calls))
	}
	if calls[0] != [2]int{2, 3} || calls[1] != [2]int{3, 3} {
		t.Errorf("progress calls = %v", calls)
	}
}

func TestBuildCancellation(t *testing.T) {
	b, _, _, _ := setupBuilder(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.FullRebuild(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
