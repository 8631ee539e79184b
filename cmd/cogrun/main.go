// Command cogrun runs the cognitive runtime's CLI: ingest, query, feedback,
// stats, and health subcommands over an Engine built from a config file and
// environment overrides, in the RunE/cobra idiom of the teacher's
// cmd/echo.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "cogrun",
		Short: "cogrun is the cognitive runtime CLI",
		Long:  "cogrun operates a brain-inspired memory and learning runtime: ingest events, query active memories, apply feedback, and inspect statistics.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	AddIngestCommand(root)
	AddQueryCommand(root)
	AddFeedbackCommand(root)
	AddStatsCommand(root)
	AddHealthCommand(root)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
