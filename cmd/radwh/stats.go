package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/radwarehouse/internal/exitcode"
	"github.com/gyeh/radwarehouse/internal/ingest"
	"github.com/gyeh/radwarehouse/internal/warehouse"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts for staging, production and warehouse tables",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, log := setup()

	pool := connect(ctx, log)
	defer pool.Close()

	if _, err := ingest.Preflight(ctx, pool, log); err != nil {
		exitForError(log, "stats", &ingest.PipelineError{Phase: ingest.PhasePreflight, Err: err})
	}

	pipe, err := ingest.CollectStats(ctx, pool)
	if err != nil {
		log.Error().Err(err).Msg("stats failed")
		os.Exit(exitcode.TransformError)
	}
	wh, err := warehouse.CollectStats(ctx, pool)
	if err != nil {
		log.Error().Err(err).Msg("stats failed")
		os.Exit(exitcode.TransformError)
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"pipeline": pipe, "warehouse": wh})
	}

	fmt.Println("=== staging / production ===")
	fmt.Printf("staging_records:  %d (%d processed, %d unprocessed)\n",
		pipe.StagingTotal, pipe.StagingProcessed, pipe.StagingUnprocessed)
	fmt.Printf("patients:         %d\n", pipe.Patients)
	fmt.Printf("facilities:       %d\n", pipe.Facilities)
	fmt.Printf("encounters:       %d\n", pipe.Encounters)
	fmt.Printf("procedures:       %d\n", pipe.Procedures)
	fmt.Printf("diagnoses:        %d\n", pipe.Diagnoses)
	fmt.Printf("reports:          %d\n", pipe.Reports)
	fmt.Println()
	fmt.Println("=== warehouse ===")
	fmt.Printf("dim_time:         %d\n", wh.DimTime)
	fmt.Printf("dim_patient:      %d\n", wh.DimPatient)
	fmt.Printf("dim_facility:     %d\n", wh.DimFacility)
	fmt.Printf("dim_procedure:    %d\n", wh.DimProcedure)
	fmt.Printf("dim_diagnosis:    %d\n", wh.DimDiagnosis)
	fmt.Printf("fact_encounters:  %d\n", wh.FactEncounters)
	fmt.Printf("bridge_procedure: %d\n", wh.BridgeProcedures)
	fmt.Printf("bridge_diagnosis: %d\n", wh.BridgeDiagnoses)
	return nil
}
