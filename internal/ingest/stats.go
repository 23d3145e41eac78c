package ingest

import (
	"context"
	"fmt"

	"github.com/gyeh/radwarehouse/internal/db"
)

// Stats are row counts of the staging and production tables.
type Stats struct {
	StagingTotal       int64 `json:"staging_total"`
	StagingProcessed   int64 `json:"staging_processed"`
	StagingUnprocessed int64 `json:"staging_unprocessed"`
	Patients           int64 `json:"patients"`
	Facilities         int64 `json:"facilities"`
	Encounters         int64 `json:"encounters"`
	Procedures         int64 `json:"procedures"`
	Diagnoses          int64 `json:"diagnoses"`
	Reports            int64 `json:"reports"`
}

const statsQuery = `
SELECT (SELECT count(*) FROM staging_records),
       (SELECT count(*) FROM staging_records WHERE processed),
       (SELECT count(*) FROM staging_records WHERE NOT processed),
       (SELECT count(*) FROM patients),
       (SELECT count(*) FROM facilities),
       (SELECT count(*) FROM encounters),
       (SELECT count(*) FROM procedures),
       (SELECT count(*) FROM diagnoses),
       (SELECT count(*) FROM reports)`

// CollectStats counts staging rows by processed state and the rows in each
// production table.
func CollectStats(ctx context.Context, conn db.Conn) (*Stats, error) {
	var s Stats
	err := conn.QueryRow(ctx, statsQuery).Scan(
		&s.StagingTotal, &s.StagingProcessed, &s.StagingUnprocessed,
		&s.Patients, &s.Facilities, &s.Encounters, &s.Procedures, &s.Diagnoses, &s.Reports,
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline stats: %w", err)
	}
	return &s, nil
}
