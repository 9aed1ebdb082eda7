package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/andeslab/thesisrec/internal/metadata"
)

var getRelated bool

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getRelated, "related", false, "Also list same-topic items")
}

var getCmd = &cobra.Command{
	Use:   "get <uuid>",
	Short: "Show a stored item",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

// GetResult is the response for the get command with --related.
type GetResult struct {
	Item    metadata.Item   `json:"item"`
	Related []metadata.Item `json:"related"`
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	store := mustOpenStore(cfg)
	defer store.Close()

	// Cluster enrichment is keyed by model; fall back to the provider's
	// default when the config leaves the model unset.
	model := cfg.Embedding.Model
	if model == "" {
		model = newProvider(cfg).ModelName()
	}

	enriched, err := store.EnrichItems([]string{args[0]}, model)
	if err != nil {
		exitWithError(ExitError, "reading item: %v", err)
	}
	it, ok := enriched[args[0]]
	if !ok {
		exitWithError(ExitError, "item not found: %s", args[0])
	}

	related := []metadata.Item{}
	if getRelated && it.ClusterID != nil {
		related, err = store.SameTopicItems(model, *it.ClusterID, it.UUID, 10)
		if err != nil {
			exitWithError(ExitError, "listing related items: %v", err)
		}
	}

	if humanOutput {
		outputHuman("%s\n  Title: %s\n", it.UUID, it.Title)
		if len(it.Authors) > 0 {
			outputHuman("  Authors: %s\n", strings.Join(it.Authors, "; "))
		}
		if it.University != "" {
			outputHuman("  University: %s\n", it.University)
		}
		if it.DateIssued != "" {
			outputHuman("  Issued: %s\n", it.DateIssued)
		}
		if it.Label != "" {
			outputHuman("  Topic: %s\n", it.Label)
		}
		if it.URL != "" {
			outputHuman("  URL: %s\n", it.URL)
		}
		for _, r := range related {
			outputHuman("  Related: %s  %s\n", r.UUID, r.Title)
		}
		return nil
	}

	if getRelated {
		outputJSON(GetResult{Item: it, Related: related})
	} else {
		outputJSON(it)
	}
	return nil
}
