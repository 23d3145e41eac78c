package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyeh/radwarehouse/internal/model"
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote staged records to production, rebuild the warehouse and refresh views",
	RunE:  runPromote,
}

var warehouseCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "Rebuild the warehouse from production and refresh views",
	RunE:  runWarehouse,
}

func init() {
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(warehouseCmd)
}

func runPromote(cmd *cobra.Command, args []string) error {
	ctx, log := setup()

	pool := connect(ctx, log)
	defer pool.Close()

	summary, err := newPipeline(pool, log).RunPromote(ctx)
	if summary != nil {
		printPromote(summary)
	}
	if err != nil {
		exitForError(log, "promote", err)
	}
	return nil
}

func runWarehouse(cmd *cobra.Command, args []string) error {
	ctx, log := setup()

	pool := connect(ctx, log)
	defer pool.Close()

	summary, err := newPipeline(pool, log).RunWarehouse(ctx)
	if summary != nil && summary.Warehouse != nil {
		printWarehouse(summary.Warehouse, summary.ViewsRefreshed)
	}
	if err != nil {
		exitForError(log, "warehouse", err)
	}
	return nil
}

func printPromote(s *model.PromoteSummary) {
	fmt.Printf("Promotion: %d selected, %d promoted, %d failed\n",
		s.RowsSelected, s.RowsPromoted, s.RowsFailed)
	if s.Warehouse != nil {
		printWarehouse(s.Warehouse, s.ViewsRefreshed)
	}
}

func printWarehouse(w *model.WarehouseSummary, refreshed bool) {
	d := w.Dimensions
	fmt.Printf("Dimensions: time=%d patient=%d facility=%d procedure=%d diagnosis=%d (%.1fs)\n",
		d.Time, d.Patient, d.Facility, d.Procedure, d.Diagnosis, w.DurationDims.Seconds())
	fmt.Printf("Facts: %d inserted (%.1fs)\n", w.FactsInserted, w.DurationFacts.Seconds())
	fmt.Printf("Bridges: %d procedures, %d diagnoses (%.1fs)\n",
		w.BridgeProcedures, w.BridgeDiagnoses, w.DurationBridges.Seconds())
	fmt.Printf("Views refreshed: %v\n", refreshed)
}
