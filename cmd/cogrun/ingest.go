package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/echocog/cogrun/internal/model"
)

// AddIngestCommand registers `cogrun ingest`.
func AddIngestCommand(root *cobra.Command) {
	var kind, source, dataFile string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a single event into the cognitive runtime",
		Long:  "Encodes a raw event, stores the resulting memory, and reports which memories activated in response.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := readFields(dataFile)
			if err != nil {
				return err
			}

			ctx := context.Background()
			e, stop, err := bootEngine(ctx)
			if err != nil {
				return err
			}
			defer stop()

			result, err := e.Ingest.Ingest(ctx, model.RawEvent{Kind: kind, Fields: fields}, source)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			return printJSON(map[string]interface{}{
				"memory_id":       result.MemoryID,
				"status":          result.Status,
				"signature":       result.Pattern.Signature,
				"active_memories": len(result.ActiveMemories),
				"processing_time": result.ProcessingTime.String(),
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "data_input", "event kind (request, response, error, ...)")
	cmd.Flags().StringVar(&source, "source", "cli", "ingestion source label")
	cmd.Flags().StringVar(&dataFile, "data", "", "path to a JSON file of event fields, or '-' for stdin")
	root.AddCommand(cmd)
}

func readFields(path string) (map[string]interface{}, error) {
	if path == "" {
		return map[string]interface{}{}, nil
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = readAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading event data: %w", err)
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parsing event data as JSON object: %w", err)
	}
	return fields, nil
}
