package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the server and its dependencies",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		health, err := api.Health(ctx)
		if err != nil {
			exitWithError("health check: %v", err)
		}

		for _, key := range []string{"status", "database", "chroma", "ollama"} {
			fmt.Printf("%-10s %s\n", key, health[key])
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server operation timings",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		snap, err := api.Stats(ctx)
		if err != nil {
			exitWithError("fetch stats: %v", err)
		}

		fmt.Printf("Uptime: %.0fs\n\n", snap.UptimeSeconds)
		if len(snap.Operations) == 0 {
			fmt.Println("No operations recorded yet.")
			return
		}

		ops := make([]string, 0, len(snap.Operations))
		for op := range snap.Operations {
			ops = append(ops, op)
		}
		sort.Strings(ops)

		fmt.Printf("%-15s %8s %10s %10s %10s\n", "OPERATION", "COUNT", "AVG(ms)", "MIN(ms)", "MAX(ms)")
		for _, op := range ops {
			s := snap.Operations[op]
			fmt.Printf("%-15s %8d %10.1f %10d %10d\n",
				op, s.Count, s.AvgTimeMs, s.MinTimeMs, s.MaxTimeMs)
		}
	},
}
