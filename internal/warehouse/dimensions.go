package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/model"
	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

// BuildDimensions populates dim_time and the four entity dimensions from
// production. Dimensions are insert-only: a business key already present
// keeps its original attributes even if the production row has changed.
func BuildDimensions(ctx context.Context, conn db.Conn, log zerolog.Logger, cfg *config.Config, today time.Time) (model.DimensionCounts, error) {
	start := time.Now()
	var counts model.DimensionCounts

	n, err := BuildTime(ctx, conn, log, cfg.TimeWindow, today)
	if err != nil {
		return counts, err
	}
	counts.Time = n

	mins, maxes, labels := config.AgeGroupArrays(cfg.AgeGroups)
	tag, err := conn.Exec(ctx, embedsql.PopulateDimPatient, mins, maxes, labels, config.UnknownAgeGroup)
	if err != nil {
		return counts, fmt.Errorf("populate dim_patient: %w", err)
	}
	counts.Patient = tag.RowsAffected()

	tag, err = conn.Exec(ctx, embedsql.PopulateDimFacility)
	if err != nil {
		return counts, fmt.Errorf("populate dim_facility: %w", err)
	}
	counts.Facility = tag.RowsAffected()

	tag, err = conn.Exec(ctx, embedsql.PopulateDimProcedure)
	if err != nil {
		return counts, fmt.Errorf("populate dim_procedure: %w", err)
	}
	counts.Procedure = tag.RowsAffected()

	tag, err = conn.Exec(ctx, embedsql.PopulateDimDiagnosis)
	if err != nil {
		return counts, fmt.Errorf("populate dim_diagnosis: %w", err)
	}
	counts.Diagnosis = tag.RowsAffected()

	log.Info().
		Int64("time", counts.Time).
		Int64("patient", counts.Patient).
		Int64("facility", counts.Facility).
		Int64("procedure", counts.Procedure).
		Int64("diagnosis", counts.Diagnosis).
		Dur("duration", time.Since(start)).
		Msg("dimensions populated")

	return counts, nil
}
