package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: ingest, promote, warehouse and view refresh",
	RunE:  runAll,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx, log := setup()

	pool := connect(ctx, log)
	defer pool.Close()

	summary, err := newPipeline(pool, log).Run(ctx)
	if s := summary.Ingest; s != nil {
		fmt.Printf("Ingest: %d extracted from %s, %d staged, %d duplicate, %d rejected\n",
			s.RowsExtracted, s.Source, s.RowsInserted, s.RowsDuplicate, s.RowsRejected)
	}
	if summary.Promote != nil {
		printPromote(summary.Promote)
	}
	if err != nil {
		exitForError(log, "pipeline", err)
	}
	return nil
}
