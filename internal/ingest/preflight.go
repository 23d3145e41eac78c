package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/db"
)

// ErrSchemaMissing is returned by Preflight when migrations have not been
// applied.
var ErrSchemaMissing = errors.New("schema missing; run migrate first")

// RequiredTables are the tables every pipeline phase reads or writes.
var RequiredTables = []string{
	"staging_records",
	"patients",
	"facilities",
	"diagnosis_codes",
	"encounters",
	"procedures",
	"diagnoses",
	"reports",
	"dim_time",
	"dim_patient",
	"dim_facility",
	"dim_procedure",
	"dim_diagnosis",
	"fact_encounters",
	"bridge_encounter_procedure",
	"bridge_encounter_diagnosis",
}

// PreflightResult holds the context resolved before a run writes anything.
type PreflightResult struct {
	// IngestBatchID tags every staging row written by this run.
	IngestBatchID uuid.UUID
	// ServerVersion is the server_version reported by Postgres.
	ServerVersion string
	Duration      time.Duration
}

// Preflight checks that the database is reachable and migrated, and mints
// the batch id for the run.
func Preflight(ctx context.Context, conn db.Conn, log zerolog.Logger) (*PreflightResult, error) {
	start := time.Now()

	var version string
	if err := conn.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return nil, fmt.Errorf("preflight server version: %w", err)
	}

	rows, err := conn.Query(ctx,
		"SELECT t FROM unnest($1::text[]) AS t WHERE to_regclass(t) IS NULL",
		RequiredTables,
	)
	if err != nil {
		return nil, fmt.Errorf("preflight check tables: %w", err)
	}
	missing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("preflight check tables: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaMissing, strings.Join(missing, ", "))
	}

	res := &PreflightResult{
		IngestBatchID: uuid.New(),
		ServerVersion: version,
		Duration:      time.Since(start),
	}

	log.Info().
		Str("ingest_batch_id", res.IngestBatchID.String()).
		Str("server_version", version).
		Dur("duration", res.Duration).
		Msg("preflight complete")

	return res, nil
}
