package main

import (
	"context"

	"github.com/spf13/cobra"
)

// AddHealthCommand registers `cogrun health`.
func AddHealthCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report persistence and subsystem health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, stop, err := bootEngine(ctx)
			if err != nil {
				return err
			}
			defer stop()

			h := e.Health(ctx)
			return printJSON(map[string]interface{}{
				"persistence_connected": h.Persistence.Connected,
				"persistence_backend":   h.Persistence.Backend,
				"schema_present":        h.Persistence.SchemaPresent,
				"memory_items":          h.MemoryItems,
				"feedback_queue":        h.FeedbackQueue,
			})
		},
	}
	root.AddCommand(cmd)
}
