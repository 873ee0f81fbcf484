package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Inspect and modify job knowledge bases",
}

var ragDatasetsCmd = &cobra.Command{
	Use:   "datasets <job_id>",
	Short: "List the dataset ids in a job's knowledge base",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ids, err := api.RAGDatasets(ctx, parseJobID(args[0]))
		if err != nil {
			exitWithError("list knowledge-base datasets: %v", err)
		}
		if len(ids) == 0 {
			fmt.Println("Knowledge base is empty.")
			return
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}

var ragCollectionsCmd = &cobra.Command{
	Use:   "collections <job_id>",
	Short: "List the vector-store collections backing a job's knowledge base",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		names, err := api.RAGCollections(ctx, parseJobID(args[0]))
		if err != nil {
			exitWithError("list collections: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

var ragIngestCmd = &cobra.Command{
	Use:   "ingest <job_id> <dataset_id>",
	Short: "Ingest a stored dataset into a job's knowledge base",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := parseJobID(args[0])
		datasetID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			exitWithError("invalid dataset id %q", args[1])
		}

		// Embedding a large dataset can take a while.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := api.RAGIngest(ctx, jobID, datasetID); err != nil {
			exitWithError("ingest: %v", err)
		}
		fmt.Printf("Ingested dataset %d into job %d\n", datasetID, jobID)
	},
}

var ragDeleteCmd = &cobra.Command{
	Use:   "delete <job_id> <dataset_id>",
	Short: "Remove a dataset from a job's knowledge base",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := parseJobID(args[0])
		datasetID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			exitWithError("invalid dataset id %q", args[1])
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := api.RAGDeleteDataset(ctx, jobID, datasetID); err != nil {
			exitWithError("delete: %v", err)
		}
		fmt.Printf("Removed dataset %d from job %d\n", datasetID, jobID)
	},
}

func init() {
	ragCmd.AddCommand(ragDatasetsCmd)
	ragCmd.AddCommand(ragCollectionsCmd)
	ragCmd.AddCommand(ragIngestCmd)
	ragCmd.AddCommand(ragDeleteCmd)
}
