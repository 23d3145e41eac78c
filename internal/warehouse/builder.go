// Package warehouse rebuilds the star schema from the production tables:
// calendar and entity dimensions, the encounter fact table, the
// procedure and diagnosis bridges, and the materialized views on top.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/model"
)

// PrerequisiteError reports a build step that was skipped because a table it
// reads from is empty.
type PrerequisiteError struct {
	Step  string
	Table string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("%s: prerequisite table %s is empty", e.Step, e.Table)
}

// Build populates dimensions, then facts, then bridges, and finally
// refreshes planner statistics. Facts are not attempted unless dim_time and
// dim_patient have rows; bridges are not attempted unless fact_encounters
// has rows.
func Build(ctx context.Context, conn db.Conn, log zerolog.Logger, cfg *config.Config, today time.Time) (*model.WarehouseSummary, error) {
	totalStart := time.Now()
	summary := &model.WarehouseSummary{}

	start := time.Now()
	dims, err := BuildDimensions(ctx, conn, log, cfg, today)
	if err != nil {
		return nil, err
	}
	summary.Dimensions = dims
	summary.DurationDims = time.Since(start)

	if err := requireRows(ctx, conn, "facts", "dim_time", "dim_patient"); err != nil {
		return nil, err
	}

	start = time.Now()
	facts, err := BuildFacts(ctx, conn, log)
	if err != nil {
		return nil, err
	}
	summary.FactsInserted = facts
	summary.DurationFacts = time.Since(start)

	if err := requireRows(ctx, conn, "bridges", "fact_encounters"); err != nil {
		return nil, err
	}

	start = time.Now()
	procs, diags, err := BuildBridges(ctx, conn, log)
	if err != nil {
		return nil, err
	}
	summary.BridgeProcedures = procs
	summary.BridgeDiagnoses = diags
	summary.DurationBridges = time.Since(start)

	if _, err := Finalize(ctx, conn, log); err != nil {
		return nil, err
	}

	summary.DurationTotal = time.Since(totalStart)
	log.Info().
		Int64("facts_inserted", summary.FactsInserted).
		Int64("bridge_procedures", summary.BridgeProcedures).
		Int64("bridge_diagnoses", summary.BridgeDiagnoses).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("warehouse build complete")

	return summary, nil
}

// requireRows returns a PrerequisiteError for the first table that is empty.
func requireRows(ctx context.Context, conn db.Conn, step string, tables ...string) error {
	for _, table := range tables {
		var exists bool
		q := "SELECT EXISTS (SELECT 1 FROM " + pgx.Identifier{table}.Sanitize() + ")"
		if err := conn.QueryRow(ctx, q).Scan(&exists); err != nil {
			return fmt.Errorf("check %s: %w", table, err)
		}
		if !exists {
			return &PrerequisiteError{Step: step, Table: table}
		}
	}
	return nil
}
