package main

import (
	"github.com/spf13/cobra"

	"github.com/andeslab/thesisrec/internal/index"
	"github.com/andeslab/thesisrec/internal/topics"
)

var (
	topicsThreshold      float64
	topicsMinClusterSize int
)

func init() {
	rootCmd.AddCommand(topicsCmd)
	topicsCmd.AddCommand(topicsBuildCmd)

	topicsBuildCmd.Flags().Float64Var(&topicsThreshold, "threshold", topics.DefaultThreshold, "Minimum cosine similarity to join a cluster")
	topicsBuildCmd.Flags().IntVar(&topicsMinClusterSize, "min-cluster-size", topics.DefaultMinClusterSize, "Clusters smaller than this become noise")
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Manage topic clusters",
}

// TopicsBuildResult is the response for the topics build command.
type TopicsBuildResult struct {
	Status   string `json:"status"`
	Model    string `json:"model"`
	Clusters int    `json:"clusters"`
	Assigned int    `json:"assigned"`
	Noise    int    `json:"noise"`
}

var topicsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Cluster indexed items into topics",
	Long: `Cluster the snapshot's vectors into topic groups and store the
assignments. Clustering is enrichment only: it reads the snapshot but
never modifies it, and recommendation serving works without it.`,
	RunE: runTopicsBuild,
}

func runTopicsBuild(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	snap, err := index.Load(cfg.ModelDir)
	if err != nil {
		exitWithError(ExitDataError, "loading snapshot: %v\n\nRun 'thesisrec index build' first.", err)
	}

	store := mustOpenStore(cfg)
	defer store.Close()

	result, err := topics.BuildAndStore(snap, store, topics.Config{
		Threshold:      topicsThreshold,
		MinClusterSize: topicsMinClusterSize,
	})
	if err != nil {
		exitWithError(ExitError, "clustering: %v", err)
	}

	if humanOutput {
		outputHuman("Clustering complete:\n  Clusters: %d\n  Assigned: %d\n  Noise: %d\n",
			result.Clusters, result.Assigned, result.Noise)
	} else {
		outputJSON(TopicsBuildResult{
			Status:   "complete",
			Model:    snap.ModelName(),
			Clusters: result.Clusters,
			Assigned: result.Assigned,
			Noise:    result.Noise,
		})
	}
	return nil
}
