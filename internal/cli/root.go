// Package cli provides the command-line interface for modeldash.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/refinelab/modeldash/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	// API client, created before any subcommand runs.
	api *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "modeldash",
	Short: "Dashboard for locally-hosted AI models",
	Long: `Modeldash manages locally-hosted Ollama models: datasets, RAG
knowledge bases, training jobs and evaluation metrics.

The CLI talks to a running modeldash server (see modeldash-server).`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default MODELDASH_SERVER_URL or http://localhost:8430)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(ragCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statsCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
