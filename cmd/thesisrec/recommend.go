package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andeslab/thesisrec/internal/recommend"
)

var (
	recommendK        int
	recommendAbstract bool
)

func init() {
	rootCmd.AddCommand(recommendCmd)
	recommendCmd.Flags().IntVar(&recommendK, "k", 5, "Number of results")
	recommendCmd.Flags().BoolVar(&recommendAbstract, "abstract", false, "Include normalized abstracts in results")
}

// RecommendResult is the response for the recommend command.
type RecommendResult struct {
	Model   string                     `json:"model"`
	K       int                        `json:"k"`
	Results []recommend.Recommendation `json:"results"`
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <text>",
	Short: "Recommend theses similar to the given text",
	Long: `Recommend embeds the query text and returns the most similar
indexed theses, most-similar-first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecommend,
}

func runRecommend(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	ctx := cmd.Context()

	provider := newProvider(cfg)
	store := mustOpenStore(cfg)
	defer store.Close()

	svc := recommend.New(provider, store, cfg.ModelDir, recommend.WithDevice(cfg.Embedding.Provider))
	if err := svc.Load(ctx); err != nil {
		exitWithError(ExitDataError, "loading index: %v\n\nRun 'thesisrec index build' to create the index.", err)
	}

	query := strings.Join(args, " ")
	results, err := svc.Recommend(ctx, query, recommendK, recommendAbstract)
	if err != nil {
		if errors.Is(err, recommend.ErrEmptyQuery) || errors.Is(err, recommend.ErrInvalidK) {
			exitWithError(ExitError, "%v", err)
		}
		exitWithError(ExitDataError, "recommending: %v", err)
	}

	if humanOutput {
		for i, r := range results {
			outputHuman("%d. [%.3f] %s\n   %s\n", i+1, r.Score, r.UUID, r.Title)
			if r.University != "" || r.Label != "" {
				outputHuman("   %s  %s\n", r.University, r.Label)
			}
		}
	} else {
		outputJSON(RecommendResult{
			Model:   svc.ModelName(),
			K:       len(results),
			Results: results,
		})
	}
	return nil
}
