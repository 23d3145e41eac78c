package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/db"
	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

// BuildBridges links facts to their procedures and diagnoses. Pairs already
// bridged are skipped.
func BuildBridges(ctx context.Context, conn db.Conn, log zerolog.Logger) (procedures, diagnoses int64, err error) {
	start := time.Now()

	tag, err := conn.Exec(ctx, embedsql.PopulateBridgeProcedure)
	if err != nil {
		return 0, 0, fmt.Errorf("populate bridge_encounter_procedure: %w", err)
	}
	procedures = tag.RowsAffected()

	tag, err = conn.Exec(ctx, embedsql.PopulateBridgeDiagnosis)
	if err != nil {
		return 0, 0, fmt.Errorf("populate bridge_encounter_diagnosis: %w", err)
	}
	diagnoses = tag.RowsAffected()

	log.Info().
		Int64("procedures", procedures).
		Int64("diagnoses", diagnoses).
		Dur("duration", time.Since(start)).
		Msg("bridges populated")

	return procedures, diagnoses, nil
}
