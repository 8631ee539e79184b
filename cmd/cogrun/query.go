package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/echocog/cogrun/internal/model"
)

// AddQueryCommand registers `cogrun query`.
func AddQueryCommand(root *cobra.Command) {
	var signature string
	var minStrength float64
	var limit int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query active memories by pattern signature",
		Long:  "Runs retrieve_by_query against the Memory Store, printing matches ranked by relevance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, stop, err := bootEngine(ctx)
			if err != nil {
				return err
			}
			defer stop()

			items := e.Memory.RetrieveByQuery(ctx, model.MemoryQuery{
				Signature:   signature,
				MinStrength: minStrength,
				Limit:       limit,
			})

			out := make([]map[string]interface{}, 0, len(items))
			for _, item := range items {
				out = append(out, map[string]interface{}{
					"id":            item.ID,
					"signature":     item.PatternSignature,
					"memory_type":   item.MemoryType,
					"strength":      item.Strength,
					"confidence":    item.Confidence,
					"access_count":  item.AccessCount,
					"last_accessed": item.LastAccessed,
				})
			}
			return printJSON(map[string]interface{}{"count": len(out), "items": out})
		},
	}

	cmd.Flags().StringVar(&signature, "signature", "", "pattern signature to match")
	cmd.Flags().Float64Var(&minStrength, "min-strength", 0, "minimum strength filter")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	root.AddCommand(cmd)
}
