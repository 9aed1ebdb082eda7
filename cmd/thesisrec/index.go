package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andeslab/thesisrec/internal/builder"
	"github.com/andeslab/thesisrec/internal/config"
	"github.com/andeslab/thesisrec/internal/embedding"
	"github.com/andeslab/thesisrec/internal/index"
	"github.com/andeslab/thesisrec/internal/storage"
)

var noProgress bool

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexUpdateCmd)
	indexCmd.AddCommand(indexStatusCmd)

	indexBuildCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
	indexUpdateCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the vector index",
	Long:  `Commands for building, updating, and inspecting the vector index.`,
}

// IndexRunResult is the response for index build and update commands.
type IndexRunResult struct {
	Status          string  `json:"status"`
	Mode            string  `json:"mode"`
	ItemsIndexed    int     `json:"items_indexed"`
	ItemsSkipped    int     `json:"items_skipped"`
	TotalRows       int     `json:"total_rows"`
	DurationSeconds float64 `json:"duration_seconds"`
	Model           string  `json:"model"`
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the vector index from every eligible item",
	Long: `Rebuild regenerates the snapshot pair from scratch and swaps it in
atomically. The previous pair keeps serving until the swap completes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), builder.FullRebuild)
	},
}

var indexUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Append items newer than the watermark to the index",
	Long: `Update appends new eligible items to the existing snapshot pair.
If the configured model or dimensions no longer match the snapshot, the
update refuses to run; use 'thesisrec index build' instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), builder.IncrementalUpdate)
	},
}

// mustValidateProvider checks the embedding backend is reachable for
// providers that can be probed.
func mustValidateProvider(ctx context.Context, provider embedding.Provider) {
	prober, ok := provider.(interface{ IsAvailable(context.Context) error })
	if !ok {
		return
	}
	if err := prober.IsAvailable(ctx); err != nil {
		exitWithError(ExitDataError, "embedding service is not available: %v\n\nStart Ollama with 'ollama serve' or install from https://ollama.ai", err)
	}
}

func runIndex(ctx context.Context, mode builder.Mode) error {
	cfg := mustLoadConfig()

	provider := newProvider(cfg)
	mustValidateProvider(ctx, provider)

	store := mustOpenStore(cfg)
	defer store.Close()

	b := builder.New(provider, store, cfg.ModelDir, cfg.Embedding.BatchSize)
	if !noProgress && humanOutput {
		b.SetProgressReporter(builder.ProgressFunc(func(current, total int) {
			fmt.Fprintf(os.Stderr, "\rEmbedding %d/%d...", current, total)
		}))
	}

	stats, err := b.Run(ctx, mode)
	if !noProgress && humanOutput {
		fmt.Fprintf(os.Stderr, "\r%*s\r", 40, "")
	}
	if err != nil {
		if errors.Is(err, builder.ErrRebuildRequired) {
			exitWithError(ExitRebuildRequired, "%v\n\nRun 'thesisrec index build' to rebuild from scratch.", err)
		}
		exitWithError(ExitError, "building index: %v", err)
	}

	if humanOutput {
		outputHuman("%s complete:\n  Items indexed: %d\n  Items skipped: %d\n  Total rows: %d\n  Time elapsed: %s\n  Model: %s\n",
			stats.Mode, stats.ItemsIndexed, stats.ItemsSkipped, stats.TotalRows, formatDuration(stats.Duration), provider.ModelName())
	} else {
		outputJSON(IndexRunResult{
			Status:          "complete",
			Mode:            stats.Mode,
			ItemsIndexed:    stats.ItemsIndexed,
			ItemsSkipped:    stats.ItemsSkipped,
			TotalRows:       stats.TotalRows,
			DurationSeconds: stats.Duration.Seconds(),
			Model:           provider.ModelName(),
		})
	}
	return nil
}

// IndexStatusResult is the response for the index status command.
type IndexStatusResult struct {
	Status        string `json:"status"`
	Model         string `json:"model,omitempty"`
	Dimension     int    `json:"dimension,omitempty"`
	TotalRows     int    `json:"total_rows"`
	EligibleItems int    `json:"eligible_items"`
	Pending       int    `json:"pending"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index freshness against the metadata store",
	RunE:  runIndexStatus,
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	store := mustOpenStore(cfg)
	defer store.Close()

	result, err := indexStatus(cfg, store)
	if err != nil {
		exitWithError(ExitError, "reading status: %v", err)
	}

	if humanOutput {
		outputHuman("Status: %s\n  Model: %s\n  Rows: %d\n  Eligible items: %d\n  Pending: %d\n",
			result.Status, result.Model, result.TotalRows, result.EligibleItems, result.Pending)
	} else {
		outputJSON(result)
	}
	return nil
}

func indexStatus(cfg *config.Config, store *storage.Store) (*IndexStatusResult, error) {
	eligible, err := store.EligibleCount()
	if err != nil {
		return nil, err
	}

	meta, err := index.ReadMeta(cfg.ModelDir)
	if err != nil {
		if errors.Is(err, index.ErrIndexNotFound) {
			return &IndexStatusResult{
				Status:        "missing",
				EligibleItems: eligible,
				Pending:       eligible,
			}, nil
		}
		return nil, err
	}

	watermark, err := store.Watermark()
	if err != nil {
		return nil, err
	}
	maxCreated, err := store.MaxCreatedAt()
	if err != nil {
		return nil, err
	}

	status := "fresh"
	pending := eligible - meta.TotalVectors
	if pending < 0 {
		pending = 0
	}
	if maxCreated > watermark || pending > 0 {
		status = "stale"
	}

	return &IndexStatusResult{
		Status:        status,
		Model:         meta.Model,
		Dimension:     meta.Dimension,
		TotalRows:     meta.TotalVectors,
		EligibleItems: eligible,
		Pending:       pending,
		UpdatedAt:     meta.UpdatedAt,
	}, nil
}
