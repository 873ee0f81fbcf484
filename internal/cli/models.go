package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List installed Ollama models",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		list, err := api.ListModels(ctx)
		if err != nil {
			exitWithError("list models: %v", err)
		}
		if len(list) == 0 {
			fmt.Println("No models installed.")
			return
		}

		nameWidth := 40
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w < 100 {
			nameWidth = 25
		}

		fmt.Printf("%-*s %-12s %-10s %s\n", nameWidth, "NAME", "FAMILY", "PARAMS", "MODIFIED")
		for _, m := range list {
			fmt.Printf("%-*s %-12s %-10s %s\n",
				nameWidth, truncateName(m.Name, nameWidth),
				m.Family, m.ParamSize,
				m.ModifiedAt.Format("2006-01-02 15:04"))
		}
	},
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an Ollama model",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := api.DeleteModel(ctx, args[0]); err != nil {
			exitWithError("delete model: %v", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
	},
}

func truncateName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	modelsCmd.AddCommand(modelsDeleteCmd)
}
