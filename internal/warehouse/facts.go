package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/db"
	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

// BuildFacts inserts one fact row per encounter whose patient and date
// resolve to dimension keys, then recomputes the derived counts on every
// fact row. Both steps commit together.
func BuildFacts(ctx context.Context, conn db.Conn, log zerolog.Logger) (int64, error) {
	start := time.Now()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("facts begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, embedsql.PopulateFactEncounters)
	if err != nil {
		return 0, fmt.Errorf("populate fact_encounters: %w", err)
	}
	inserted := tag.RowsAffected()

	for _, u := range []struct {
		name string
		sql  string
	}{
		{"num_procedures", embedsql.UpdateFactNumProcedures},
		{"num_diagnoses", embedsql.UpdateFactNumDiagnoses},
		{"has_report", embedsql.UpdateFactHasReport},
	} {
		if _, err := tx.Exec(ctx, u.sql); err != nil {
			return 0, fmt.Errorf("update fact %s: %w", u.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("facts commit: %w", err)
	}

	log.Info().
		Int64("facts_inserted", inserted).
		Dur("duration", time.Since(start)).
		Msg("facts populated")

	return inserted, nil
}
