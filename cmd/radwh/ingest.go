package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract records and land them in staging",
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, log := setup()

	pool := connect(ctx, log)
	defer pool.Close()

	summary, err := newPipeline(pool, log).RunIngest(ctx)
	if err != nil {
		exitForError(log, "ingest", err)
	}

	fmt.Printf("Ingest complete: %d extracted from %s, %d staged, %d duplicate, %d rejected (%.1fs)\n",
		summary.RowsExtracted, summary.Source, summary.RowsInserted, summary.RowsDuplicate,
		summary.RowsRejected, summary.DurationTotal.Seconds())
	return nil
}
