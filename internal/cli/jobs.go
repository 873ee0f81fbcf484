package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/refinelab/modeldash/internal/models"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage training jobs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		jobs, err := api.ListJobs(ctx)
		if err != nil {
			exitWithError("list jobs: %v", err)
		}
		if len(jobs) == 0 {
			fmt.Println("No training jobs.")
			return
		}

		fmt.Printf("%-5s %-25s %-6s %-10s %8s %s\n", "ID", "NAME", "TYPE", "STATUS", "PROGRESS", "MODEL")
		for _, job := range jobs {
			fmt.Printf("%-5d %-25s %-6s %-10s %7.0f%% %s\n",
				job.ID, truncateName(job.Name, 25), job.TrainingType,
				job.Status, job.Progress*100, job.ModelName)
		}
	},
}

var (
	jobName      string
	jobBaseModel string
	jobType      string
	jobDatasets  []int64
	jobRole      string
)

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a training job",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		job, err := api.CreateJob(ctx, models.TrainingJobInput{
			Name:         jobName,
			BaseModel:    jobBaseModel,
			TrainingType: models.TrainingType(jobType),
			Config: models.JobConfig{
				SelectedDatasets: jobDatasets,
				RoleDefinition:   jobRole,
			},
		})
		if err != nil {
			exitWithError("create job: %v", err)
		}
		fmt.Printf("Created job %d (%s)\nRun 'modeldash jobs start %d' to begin training.\n",
			job.ID, job.Name, job.ID)
	},
}

var jobsStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start a training job and watch its progress",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseJobID(args[0])

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := api.StartJob(ctx, id); err != nil {
			exitWithError("start job: %v", err)
		}

		if err := RunJobProgress(api, id); err != nil {
			exitWithError("%v", err)
		}
	},
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Watch a running training job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := RunJobProgress(api, parseJobID(args[0])); err != nil {
			exitWithError("%v", err)
		}
	},
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop a running training job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseJobID(args[0])

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := api.StopJob(ctx, id); err != nil {
			exitWithError("stop job: %v", err)
		}
		fmt.Printf("Stop requested for job %d\n", id)
	},
}

func parseJobID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		exitWithError("invalid job id %q", s)
	}
	return id
}

func init() {
	jobsCreateCmd.Flags().StringVar(&jobName, "name", "", "job name (required)")
	jobsCreateCmd.Flags().StringVar(&jobBaseModel, "base-model", "", "base Ollama model (required)")
	jobsCreateCmd.Flags().StringVar(&jobType, "type", "rag", "training type: rag or lora")
	jobsCreateCmd.Flags().Int64SliceVar(&jobDatasets, "datasets", nil, "dataset ids to use")
	jobsCreateCmd.Flags().StringVar(&jobRole, "role", "", "system-prompt role definition")
	jobsCreateCmd.MarkFlagRequired("name")
	jobsCreateCmd.MarkFlagRequired("base-model")

	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsStartCmd)
	jobsCmd.AddCommand(jobsWatchCmd)
	jobsCmd.AddCommand(jobsStopCmd)
}
