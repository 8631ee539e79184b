package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/echocog/cogrun/internal/model"
)

// AddFeedbackCommand registers `cogrun feedback`.
func AddFeedbackCommand(root *cobra.Command) {
	var memoryID, comment, feedbackType string
	var rating float64

	cmd := &cobra.Command{
		Use:   "feedback MEMORY_ID",
		Short: "Submit user feedback for a memory",
		Long:  "Enqueues a user feedback event; the Feedback Processor applies it to the Memory Store and Learning Engine on its next batch drain.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memoryID = args[0]
			ctx := context.Background()
			e, stop, err := bootEngine(ctx)
			if err != nil {
				return err
			}
			defer stop()

			switch feedbackType {
			case "user", "":
				e.Feedback.ProcessUserFeedback(ctx, memoryID, rating, comment, model.Context{})
			default:
				return fmt.Errorf("unsupported --type %q (use 'user')", feedbackType)
			}

			e.Feedback.Flush(ctx)
			return printJSON(map[string]interface{}{"memory_id": memoryID, "submitted": true})
		},
	}

	cmd.Flags().Float64Var(&rating, "rating", 0.5, "feedback rating in [0,1]")
	cmd.Flags().StringVar(&comment, "comment", "", "free-text comment")
	cmd.Flags().StringVar(&feedbackType, "type", "user", "feedback kind (currently: user)")
	root.AddCommand(cmd)
}
