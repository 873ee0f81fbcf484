package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/refinelab/modeldash/internal/dataset"
	"github.com/refinelab/modeldash/internal/models"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Manage training datasets",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		list, err := api.ListDatasets(ctx)
		if err != nil {
			exitWithError("list datasets: %v", err)
		}
		if len(list) == 0 {
			fmt.Println("No datasets registered.")
			return
		}

		fmt.Printf("%-5s %-30s %-10s %8s %s\n", "ID", "NAME", "TYPE", "SAMPLES", "CREATED")
		for _, ds := range list {
			fmt.Printf("%-5d %-30s %-10s %8d %s\n",
				ds.ID, truncateName(ds.Name, 30), ds.Type, ds.SampleCount,
				ds.CreatedAt.Format("2006-01-02"))
		}
	},
}

var datasetUploadName string

var datasetsUploadCmd = &cobra.Command{
	Use:   "upload <file.json|file.jsonl>",
	Short: "Upload a dataset from a local JSON or JSONL file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			exitWithError("read %s: %v", path, err)
		}

		parsed, err := dataset.Parse(data)
		if err != nil {
			exitWithError("parse %s: %v", path, err)
		}
		if len(parsed.Samples) == 0 {
			exitWithError("no usable samples in %s (format: %s)", path, parsed.Format)
		}

		name := datasetUploadName
		if name == "" {
			name = path
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		ds, err := api.CreateDataset(ctx, models.DatasetInput{
			Name:    name,
			Type:    "local",
			Format:  string(parsed.Format),
			Source:  path,
			Samples: parsed.Samples,
		})
		if err != nil {
			exitWithError("create dataset: %v", err)
		}

		fmt.Printf("Created dataset %d (%s): %d samples, %d skipped\n",
			ds.ID, ds.Name, parsed.Converted, parsed.Skipped)
	},
}

var datasetsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a dataset as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		list, err := api.ListDatasets(ctx)
		if err != nil {
			exitWithError("list datasets: %v", err)
		}
		for _, ds := range list {
			if fmt.Sprintf("%d", ds.ID) == args[0] {
				out, _ := json.MarshalIndent(ds, "", "  ")
				fmt.Println(string(out))
				return
			}
		}
		exitWithError("dataset %s not found", args[0])
	},
}

func init() {
	datasetsUploadCmd.Flags().StringVar(&datasetUploadName, "name", "", "dataset name (defaults to file path)")
	datasetsCmd.AddCommand(datasetsUploadCmd)
	datasetsCmd.AddCommand(datasetsShowCmd)
}
