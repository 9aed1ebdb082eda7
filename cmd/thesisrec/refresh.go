package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andeslab/thesisrec/internal/builder"
	"github.com/andeslab/thesisrec/internal/config"
	"github.com/andeslab/thesisrec/internal/storage"
)

var refreshOnce bool

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().BoolVar(&refreshOnce, "once", false, "Run a single refresh cycle and exit")
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Periodically harvest sources and update the index",
	Long: `Refresh runs the harvest-then-update cycle on a timer (the
refresh_interval config setting). When an incremental update refuses to
run because the model or dimensions changed, the cycle falls back to a
full rebuild.

The refresh loop owns the snapshot files while it runs; do not run it
alongside manual index commands.`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	store := mustOpenStore(cfg)
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if refreshOnce {
		refreshCycle(ctx, cfg, store)
		return nil
	}

	interval := cfg.RefreshEvery()
	log.Printf("refreshing every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refreshCycle(ctx, cfg, store)
	for {
		select {
		case <-ctx.Done():
			log.Printf("refresh loop stopping")
			return nil
		case <-ticker.C:
			refreshCycle(ctx, cfg, store)
		}
	}
}

// refreshCycle harvests every source and brings the index up to date.
// Failures are logged, never fatal: the next tick retries and the
// previous snapshot pair keeps serving in the meantime.
func refreshCycle(ctx context.Context, cfg *config.Config, store *storage.Store) {
	for _, src := range cfg.Sources {
		result, err := harvestOne(ctx, src.Name, src.BaseURL, src.University, store)
		if err != nil {
			log.Printf("harvest %s: %v", src.Name, err)
			continue
		}
		log.Printf("harvest %s: %d fetched, %d new", src.Name, result.Fetched, result.Inserted)
	}

	provider := newProvider(cfg)
	b := builder.New(provider, store, cfg.ModelDir, cfg.Embedding.BatchSize)

	stats, err := b.IncrementalUpdate(ctx)
	if errors.Is(err, builder.ErrRebuildRequired) {
		log.Printf("incremental update refused (%v), running full rebuild", err)
		stats, err = b.FullRebuild(ctx)
	}
	if err != nil {
		log.Printf("index update: %v", err)
		return
	}
	log.Printf("index %s: %d indexed, %d rows total", stats.Mode, stats.ItemsIndexed, stats.TotalRows)
}
