package recommend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/andeslab/thesisrec/internal/embedding/embeddingtest"
	"github.com/andeslab/thesisrec/internal/index"
	"github.com/andeslab/thesisrec/internal/metadata"
	"github.com/andeslab/thesisrec/internal/storage"
)

const testModel = "test-model"

func seedItems(t *testing.T, store *storage.Store) []metadata.Item {
	t.Helper()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	items := []metadata.Item{
		{UUID: "aaa-111", Title: "Cultivo de quinua", Abstract: "Estudio del cultivo de quinua en el altiplano.", University: "UNAP", URL: "https://repo.example/handle/1", CreatedAt: base},
		{UUID: "bbb-222", Title: "Diagnostico asistido", Abstract: "Sistema de diagnostico medico asistido por computador.", University: "UNSA", URL: "https://repo.example/handle/2", CreatedAt: base.Add(time.Second)},
		{UUID: "ccc-333", Title: "Turismo receptivo", Abstract: "Impacto del turismo receptivo en la region de Puno.", University: "UNAP", URL: "https://repo.example/handle/3", CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range items {
		items[i].Normalize()
	}
	if _, err := store.InsertItems(items); err != nil {
		t.Fatal(err)
	}
	return items
}

// setupService builds a snapshot over the seeded items and returns an
// unloaded service on top of it.
func setupService(t *testing.T) (*Service, *storage.Store, *embeddingtest.Provider, []metadata.Item) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	items := seedItems(t, store)

	provider := embeddingtest.New(testModel, 8)
	modelDir := t.TempDir()

	snap, err := index.NewSnapshot(testModel, 8)
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range items {
		emb, err := provider.Embed(context.Background(), it.EmbeddingText())
		if err != nil {
			t.Fatal(err)
		}
		if err := snap.Append(it.UUID, emb.Vector); err != nil {
			t.Fatal(err)
		}
	}
	if err := snap.Save(modelDir); err != nil {
		t.Fatal(err)
	}

	return New(provider, store, modelDir, WithDevice("ollama")), store, provider, items
}

func TestLoadTransitionsToReady(t *testing.T) {
	svc, _, _, _ := setupService(t)

	if svc.State() != StateNotLoaded {
		t.Fatalf("initial state = %s", svc.State())
	}
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if svc.State() != StateReady {
		t.Errorf("state = %s, want ready", svc.State())
	}

	h := svc.Health()
	if !h.Ready || !h.IndexLoaded {
		t.Errorf("Health = %+v, want ready and loaded", h)
	}
	if h.IndexCount != 3 {
		t.Errorf("IndexCount = %d, want 3", h.IndexCount)
	}
	if h.Model != testModel || h.Device != "ollama" {
		t.Errorf("Model = %q, Device = %q", h.Model, h.Device)
	}
	if h.Error != "" {
		t.Errorf("Error = %q, want empty", h.Error)
	}
}

func TestLoadRunsOnce(t *testing.T) {
	svc, _, _, _ := setupService(t)

	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Load(context.Background()); err == nil {
		t.Error("second Load should error")
	}
	if svc.State() != StateReady {
		t.Errorf("state after repeat Load = %s, want ready", svc.State())
	}
}

func TestLoadMissingSnapshotFails(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	svc := New(embeddingtest.New(testModel, 8), store, t.TempDir())
	if err := svc.Load(context.Background()); err == nil {
		t.Fatal("Load should fail without a snapshot")
	}
	if svc.State() != StateFailed {
		t.Errorf("state = %s, want failed", svc.State())
	}

	// Health stays truthful and never errors in Failed
	h := svc.Health()
	if h.Ready || h.IndexLoaded {
		t.Errorf("Health = %+v, want not ready", h)
	}
	if h.Error == "" {
		t.Error("Health should carry the load error")
	}
}

func TestLoadModelMismatchFails(t *testing.T) {
	_, store, _, _ := setupService(t)

	modelDir := t.TempDir()
	snap, _ := index.NewSnapshot(testModel, 8)
	p := embeddingtest.New(testModel, 8)
	emb, _ := p.Embed(context.Background(), "texto")
	snap.Append("aaa-111", emb.Vector)
	if err := snap.Save(modelDir); err != nil {
		t.Fatal(err)
	}

	other := New(embeddingtest.New("other-model", 8), store, modelDir)
	err := other.Load(context.Background())
	if !errors.Is(err, index.ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch, got %v", err)
	}
	if other.State() != StateFailed {
		t.Errorf("state = %s, want failed", other.State())
	}
}

func TestLoadDimensionMismatchFails(t *testing.T) {
	_, store, _, _ := setupService(t)

	// Reuse the first service's snapshot dir via a fresh setup: build a
	// provider with the right model name but a different width.
	modelDir := t.TempDir()
	snap, _ := index.NewSnapshot(testModel, 8)
	p := embeddingtest.New(testModel, 8)
	emb, _ := p.Embed(context.Background(), "texto")
	snap.Append("aaa-111", emb.Vector)
	if err := snap.Save(modelDir); err != nil {
		t.Fatal(err)
	}

	wider := embeddingtest.New(testModel, 16)
	svc := New(wider, store, modelDir)
	err := svc.Load(context.Background())
	if !errors.Is(err, index.ErrDimensionChange) {
		t.Errorf("expected ErrDimensionChange, got %v", err)
	}
	if svc.State() != StateFailed {
		t.Errorf("state = %s, want failed", svc.State())
	}
}

func TestRecommendSelfMatch(t *testing.T) {
	svc, _, _, items := setupService(t)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Querying with an indexed item's own text must rank that item first
	query := items[0].Title + " " + items[0].Abstract
	recs, err := svc.Recommend(context.Background(), query, 3, false)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d results, want 3", len(recs))
	}
	if recs[0].UUID != "aaa-111" {
		t.Errorf("top result = %s, want aaa-111", recs[0].UUID)
	}
	if recs[0].Score < 0.999 {
		t.Errorf("self-match score = %f, want ~1", recs[0].Score)
	}
	if recs[0].Title != "Cultivo de quinua" || recs[0].University != "UNAP" {
		t.Errorf("enrichment missing: %+v", recs[0])
	}
	if recs[0].URL != "https://repo.example/handle/1" {
		t.Errorf("URL = %q", recs[0].URL)
	}

	for i := 1; i < len(recs); i++ {
		if recs[i].Score > recs[i-1].Score {
			t.Error("results must be most-similar-first")
		}
	}
}

func TestRecommendClampsK(t *testing.T) {
	svc, _, _, _ := setupService(t)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	recs, err := svc.Recommend(context.Background(), "cultivo de papa", 100, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("k=100 over 3 rows should clamp to 3, got %d", len(recs))
	}
}

func TestRecommendAbstractToggle(t *testing.T) {
	svc, _, _, _ := setupService(t)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	without, err := svc.Recommend(context.Background(), "quinua", 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if without[0].AbstractNorm != "" {
		t.Error("abstract should be omitted by default")
	}

	with, err := svc.Recommend(context.Background(), "quinua", 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if with[0].AbstractNorm == "" {
		t.Error("abstract should be included when requested")
	}
}

func TestRecommendClusterEnrichment(t *testing.T) {
	svc, store, _, _ := setupService(t)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	assignments := map[string]int{"aaa-111": 0, "ccc-333": 0}
	labels := map[int]string{0: "cluster 0"}
	if err := store.ReplaceClusters(testModel, assignments, labels); err != nil {
		t.Fatal(err)
	}

	recs, err := svc.Recommend(context.Background(), "cultivo de quinua estudio del cultivo de quinua en el altiplano.", 3, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		switch rec.UUID {
		case "aaa-111", "ccc-333":
			if rec.ClusterID == nil || *rec.ClusterID != 0 || rec.Label != "cluster 0" {
				t.Errorf("%s should carry cluster 0, got %+v", rec.UUID, rec)
			}
		case "bbb-222":
			if rec.ClusterID != nil {
				t.Errorf("bbb-222 should have no cluster, got %d", *rec.ClusterID)
			}
		}
	}
}

func TestRecommendQueryErrors(t *testing.T) {
	svc, _, _, _ := setupService(t)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Recommend(context.Background(), "   ", 5, false); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank text: expected ErrEmptyQuery, got %v", err)
	}
	if _, err := svc.Recommend(context.Background(), "quinua", 0, false); !errors.Is(err, ErrInvalidK) {
		t.Errorf("k=0: expected ErrInvalidK, got %v", err)
	}
	if _, err := svc.Recommend(context.Background(), "quinua", -3, false); !errors.Is(err, ErrInvalidK) {
		t.Errorf("k=-3: expected ErrInvalidK, got %v", err)
	}
}

func TestRecommendNotReady(t *testing.T) {
	svc, _, _, _ := setupService(t)

	_, err := svc.Recommend(context.Background(), "quinua", 5, false)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady before Load, got %v", err)
	}
}

func TestRelatedByTopic(t *testing.T) {
	svc, store, _, _ := setupService(t)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	assignments := map[string]int{"aaa-111": 0, "ccc-333": 0}
	labels := map[int]string{0: "cluster 0"}
	if err := store.ReplaceClusters(testModel, assignments, labels); err != nil {
		t.Fatal(err)
	}

	related, err := svc.RelatedByTopic("aaa-111", 10)
	if err != nil {
		t.Fatalf("RelatedByTopic failed: %v", err)
	}
	if len(related) != 1 || related[0].UUID != "ccc-333" {
		t.Errorf("related = %+v, want just ccc-333", related)
	}

	// Unclustered item has no topic neighbors
	related, err = svc.RelatedByTopic("bbb-222", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(related) != 0 {
		t.Errorf("unclustered item should have no related items, got %d", len(related))
	}

	if _, err := svc.RelatedByTopic("no-such-uuid", 10); !errors.Is(err, storage.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestGetItem(t *testing.T) {
	svc, _, _, _ := setupService(t)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	it, err := svc.GetItem("bbb-222")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if it.Title != "Diagnostico asistido" || it.University != "UNSA" {
		t.Errorf("item = %+v", it)
	}

	_, err = svc.GetItem("no-such-uuid")
	if !errors.Is(err, storage.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}
