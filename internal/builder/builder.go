// Package builder orchestrates vector index construction from the
// metadata store.
//
// Two modes exist, each with its own invariants: a full rebuild produces a
// fresh snapshot in deterministic order, an incremental update appends new
// rows and never touches existing ones. The previously persisted pair stays
// authoritative until a run completes its atomic save, so a failed run
// leaves the serving index untouched.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andeslab/thesisrec/internal/embedding"
	"github.com/andeslab/thesisrec/internal/index"
	"github.com/andeslab/thesisrec/internal/metadata"
	"github.com/andeslab/thesisrec/internal/storage"
)

// ErrRebuildRequired signals that an incremental update cannot proceed
// safely and the caller must run a full rebuild instead. Appending
// mismatched vectors would corrupt the snapshot, so this is checked before
// any mutation.
var ErrRebuildRequired = errors.New("full rebuild required")

// Mode selects the index maintenance strategy.
type Mode int

const (
	// FullRebuild regenerates the snapshot pair from every eligible item.
	FullRebuild Mode = iota

	// IncrementalUpdate appends items newer than the watermark to the
	// existing snapshot pair.
	IncrementalUpdate
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case FullRebuild:
		return "full_rebuild"
	case IncrementalUpdate:
		return "incremental_update"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ProgressReporter receives progress updates during index building.
type ProgressReporter interface {
	OnProgress(current, total int)
}

// ProgressFunc is a function adapter for ProgressReporter.
type ProgressFunc func(current, total int)

// OnProgress implements ProgressReporter.
func (f ProgressFunc) OnProgress(current, total int) {
	f(current, total)
}

// Stats summarizes a completed builder run.
type Stats struct {
	Mode         string        `json:"mode"`
	ItemsIndexed int           `json:"items_indexed"`
	ItemsSkipped int           `json:"items_skipped"`
	TotalRows    int           `json:"total_rows"`
	Duration     time.Duration `json:"duration_ms"`
}

// Builder constructs and maintains the vector snapshot pair.
type Builder struct {
	provider  embedding.Provider
	store     *storage.Store
	modelDir  string
	batchSize int
	progress  ProgressReporter
}

// New creates an index builder writing snapshots under modelDir.
func New(provider embedding.Provider, store *storage.Store, modelDir string, batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Builder{
		provider:  provider,
		store:     store,
		modelDir:  modelDir,
		batchSize: batchSize,
	}
}

// SetProgressReporter sets the progress reporter for the builder.
func (b *Builder) SetProgressReporter(reporter ProgressReporter) {
	b.progress = reporter
}

// Run executes the given mode.
func (b *Builder) Run(ctx context.Context, mode Mode) (*Stats, error) {
	switch mode {
	case FullRebuild:
		return b.FullRebuild(ctx)
	case IncrementalUpdate:
		return b.IncrementalUpdate(ctx)
	default:
		return nil, fmt.Errorf("unknown builder mode %d", int(mode))
	}
}

// FullRebuild regenerates the snapshot pair from every eligible item and
// atomically swaps it in for the previous pair.
//
// Items are read ordered by (created_at, uuid), so rebuilds over the same
// store state produce identical row order.
func (b *Builder) FullRebuild(ctx context.Context) (*Stats, error) {
	start := time.Now()

	items, err := b.store.ListEligibleSince(0)
	if err != nil {
		return nil, fmt.Errorf("listing eligible items: %w", err)
	}

	snap, err := index.NewSnapshot(b.provider.ModelName(), b.provider.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}

	stats := &Stats{Mode: FullRebuild.String()}
	watermark, err := b.embedInto(ctx, snap, items, stats)
	if err != nil {
		return nil, err
	}

	if err := snap.Save(b.modelDir); err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}
	if err := b.store.SetWatermark(watermark); err != nil {
		return nil, fmt.Errorf("advancing watermark: %w", err)
	}

	stats.TotalRows = snap.Count()
	stats.Duration = time.Since(start)
	return stats, nil
}

// IncrementalUpdate appends items created after the watermark to the
// existing snapshot pair. With no new items it is a no-op: nothing is
// written and the persisted pair stays byte-identical.
//
// Returns ErrRebuildRequired when no snapshot exists yet, or when the
// configured provider's model or dimensions disagree with the persisted
// snapshot. Both checks run before any mutation.
func (b *Builder) IncrementalUpdate(ctx context.Context) (*Stats, error) {
	start := time.Now()

	snap, err := index.Load(b.modelDir)
	if err != nil {
		if errors.Is(err, index.ErrIndexNotFound) {
			return nil, fmt.Errorf("%w: no snapshot to update", ErrRebuildRequired)
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	if err := snap.ValidateModel(b.provider.ModelName()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRebuildRequired, err)
	}
	if snap.Dimensions() != b.provider.Dimensions() {
		return nil, fmt.Errorf("%w: snapshot has %d dimensions, provider produces %d",
			ErrRebuildRequired, snap.Dimensions(), b.provider.Dimensions())
	}

	watermark, err := b.store.Watermark()
	if err != nil {
		return nil, fmt.Errorf("reading watermark: %w", err)
	}

	items, err := b.store.ListEligibleSince(watermark)
	if err != nil {
		return nil, fmt.Errorf("listing new items: %w", err)
	}

	stats := &Stats{Mode: IncrementalUpdate.String()}

	// Items already in the snapshot can reappear after a watermark reset;
	// re-embedding them would violate the no-duplicates invariant.
	fresh := items[:0]
	for _, it := range items {
		if snap.Has(it.UUID) {
			stats.ItemsSkipped++
			continue
		}
		fresh = append(fresh, it)
	}

	if len(fresh) == 0 {
		stats.TotalRows = snap.Count()
		stats.Duration = time.Since(start)
		return stats, nil
	}

	newMark, err := b.embedInto(ctx, snap, fresh, stats)
	if err != nil {
		return nil, err
	}

	if err := snap.Save(b.modelDir); err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}
	if err := b.store.SetWatermark(newMark); err != nil {
		return nil, fmt.Errorf("advancing watermark: %w", err)
	}

	stats.TotalRows = snap.Count()
	stats.Duration = time.Since(start)
	return stats, nil
}

// embedInto embeds items in batches and appends them to the snapshot in
// order. Returns the newest created_at (unix nanos) processed. A failure
// anywhere aborts with the on-disk pair untouched; the in-memory snapshot
// is discarded by the caller.
func (b *Builder) embedInto(ctx context.Context, snap *index.Snapshot, items []metadata.Item, stats *Stats) (int64, error) {
	var watermark int64
	total := len(items)
	processed := 0

	for begin := 0; begin < total; begin += b.batchSize {
		end := begin + b.batchSize
		if end > total {
			end = total
		}
		batch := items[begin:end]

		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.EmbeddingText()
		}

		vectors, err := embedding.EmbedBatch(ctx, b.provider, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding batch at offset %d: %w", begin, err)
		}

		// Append only after the whole batch embedded successfully.
		for i, it := range batch {
			if err := snap.Append(it.UUID, vectors[i]); err != nil {
				return 0, fmt.Errorf("appending %s: %w", it.UUID, err)
			}
			if created := it.CreatedAt.UnixNano(); created > watermark {
				watermark = created
			}
			stats.ItemsIndexed++
		}

		processed += len(batch)
		if b.progress != nil {
			b.progress.OnProgress(processed, total)
		}
	}

	return watermark, nil
}
