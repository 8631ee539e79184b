package main

import (
	"context"

	"github.com/spf13/cobra"
)

// AddStatsCommand registers `cogrun stats`.
func AddStatsCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print runtime statistics",
		Long:  "Reports Sparse Router activation telemetry, Learning Engine parameters, and Memory Store cache size.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, stop, err := bootEngine(ctx)
			if err != nil {
				return err
			}
			defer stop()

			routerStats := e.Router.Statistics()
			learningStats := e.Learning.Statistics()

			return printJSON(map[string]interface{}{
				"memory_cache_size":    e.Memory.CacheSize(),
				"feedback_queue_len":   e.Feedback.QueueLen(),
				"router":               routerStats,
				"learning":             learningStats,
			})
		},
	}
	root.AddCommand(cmd)
}
