package main

import (
	"github.com/spf13/cobra"

	"github.com/andeslab/thesisrec/internal/metadata"
	"github.com/andeslab/thesisrec/internal/pdftext"
)

var ingestUniversity string

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestPDFCmd)
	ingestPDFCmd.Flags().StringVar(&ingestUniversity, "university", "", "University to record for the ingested item")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest items from local files",
}

// IngestResult is the response for ingest commands.
type IngestResult struct {
	Status   string `json:"status"`
	UUID     string `json:"uuid"`
	Title    string `json:"title"`
	Eligible bool   `json:"eligible"`
	Inserted bool   `json:"inserted"`
}

var ingestPDFCmd = &cobra.Command{
	Use:   "pdf <file>",
	Short: "Extract title and abstract from a thesis PDF and store it",
	Long: `Extract a title and abstract from a local thesis PDF and store
the result as a new item. The uuid is derived from the file path, so
re-ingesting the same file is a no-op.

Extraction is heuristic; items without a recoverable abstract are
stored but stay ineligible for indexing.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestPDF,
}

func runIngestPDF(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	it, err := pdftext.BuildItem(args[0], ingestUniversity)
	if err != nil {
		exitWithError(ExitDataError, "extracting %s: %v", args[0], err)
	}

	store := mustOpenStore(cfg)
	defer store.Close()

	n, err := store.InsertItems([]metadata.Item{it})
	if err != nil {
		exitWithError(ExitError, "storing item: %v", err)
	}

	if humanOutput {
		outputHuman("%s\n  Title: %s\n  Eligible: %v\n  Inserted: %v\n", it.UUID, it.Title, it.Eligible(), n == 1)
	} else {
		outputJSON(IngestResult{
			Status:   "complete",
			UUID:     it.UUID,
			Title:    it.Title,
			Eligible: it.Eligible(),
			Inserted: n == 1,
		})
	}
	return nil
}
