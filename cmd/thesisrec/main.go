// Package main provides the thesisrec CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/andeslab/thesisrec/internal/config"
	"github.com/andeslab/thesisrec/internal/embedding"
	"github.com/andeslab/thesisrec/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// configPath is the configuration file location
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "thesisrec",
	Short: "Academic thesis recommendation service",
	Long: `thesisrec harvests thesis metadata from institutional DSpace
repositories, embeds titles and abstracts into a vector index, and
serves semantic recommendations over HTTP.

Core features:
  - DSpace metadata harvesting with polite rate limiting
  - Vector index with incremental updates and atomic snapshot swaps
  - Nearest-neighbor recommendations enriched from the metadata store
  - Best-effort topic clustering

All commands output JSON by default for scripting and agent use.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigFile, "Path to configuration file")
	rootCmd.Version = Version
}

// mustLoadConfig loads .env and the configuration file, exits on error.
func mustLoadConfig() *config.Config {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenStore opens the metadata store, exits on error.
// The caller is responsible for calling Close().
func mustOpenStore(cfg *config.Config) *storage.Store {
	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return store
}

// newProvider builds the configured embedding provider, exits on error.
func newProvider(cfg *config.Config) embedding.Provider {
	switch cfg.Embedding.Provider {
	case "openai":
		var opts []embedding.OpenAIOption
		if cfg.Embedding.Model != "" {
			opts = append(opts, embedding.WithOpenAIModel(cfg.Embedding.Model))
		}
		if cfg.Embedding.Dimensions > 0 {
			opts = append(opts, embedding.WithOpenAIDimensions(cfg.Embedding.Dimensions))
		}
		p, err := embedding.NewOpenAIProvider(opts...)
		if err != nil {
			exitWithError(ExitConfigError, "openai provider: %v", err)
		}
		return p
	default:
		var opts []embedding.OllamaOption
		if cfg.Embedding.OllamaURL != "" {
			opts = append(opts, embedding.WithBaseURL(cfg.Embedding.OllamaURL))
		}
		if cfg.Embedding.Model != "" {
			opts = append(opts, embedding.WithModel(cfg.Embedding.Model))
		}
		if cfg.Embedding.Dimensions > 0 {
			opts = append(opts, embedding.WithDimensions(cfg.Embedding.Dimensions))
		}
		return embedding.NewOllamaProvider(opts...)
	}
}
