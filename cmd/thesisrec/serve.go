package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andeslab/thesisrec/internal/recommend"
	"github.com/andeslab/thesisrec/internal/server"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the recommendation API over HTTP",
	Long: `Serve loads the vector snapshot and answers recommendation queries.

A failed load does not abort the process: the server stays up and
reports the failure through /health so operational tooling can see it.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	addr := cfg.ServerAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	provider := newProvider(cfg)
	store := mustOpenStore(cfg)
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := recommend.New(provider, store, cfg.ModelDir, recommend.WithDevice(cfg.Embedding.Provider))
	if err := svc.Load(ctx); err != nil {
		log.Printf("index load failed, serving health only: %v", err)
	} else {
		h := svc.Health()
		log.Printf("index loaded: %d vectors, model %s", h.IndexCount, h.Model)
	}

	log.Printf("thesisrec serving on %s", addr)
	if err := server.New(svc).Run(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		exitWithError(ExitError, "server: %v", err)
	}
	return nil
}
