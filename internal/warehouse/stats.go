package warehouse

import (
	"context"
	"fmt"

	"github.com/gyeh/radwarehouse/internal/db"
)

// Stats are row counts of the warehouse tables.
type Stats struct {
	DimTime          int64 `json:"dim_time"`
	DimPatient       int64 `json:"dim_patient"`
	DimFacility      int64 `json:"dim_facility"`
	DimProcedure     int64 `json:"dim_procedure"`
	DimDiagnosis     int64 `json:"dim_diagnosis"`
	FactEncounters   int64 `json:"fact_encounters"`
	BridgeProcedures int64 `json:"bridge_encounter_procedure"`
	BridgeDiagnoses  int64 `json:"bridge_encounter_diagnosis"`
}

const statsQuery = `
SELECT (SELECT count(*) FROM dim_time),
       (SELECT count(*) FROM dim_patient),
       (SELECT count(*) FROM dim_facility),
       (SELECT count(*) FROM dim_procedure),
       (SELECT count(*) FROM dim_diagnosis),
       (SELECT count(*) FROM fact_encounters),
       (SELECT count(*) FROM bridge_encounter_procedure),
       (SELECT count(*) FROM bridge_encounter_diagnosis)`

// CollectStats counts the rows in each warehouse table.
func CollectStats(ctx context.Context, conn db.Conn) (*Stats, error) {
	var s Stats
	err := conn.QueryRow(ctx, statsQuery).Scan(
		&s.DimTime, &s.DimPatient, &s.DimFacility, &s.DimProcedure, &s.DimDiagnosis,
		&s.FactEncounters, &s.BridgeProcedures, &s.BridgeDiagnoses,
	)
	if err != nil {
		return nil, fmt.Errorf("warehouse stats: %w", err)
	}
	return &s, nil
}
