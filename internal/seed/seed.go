// Package seed generates a synthetic operational data set: facilities,
// diagnosis codes, patients and their historical encounters. Promotion needs
// patients and facilities to attach staged studies to.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/model"
	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

// DiagnosisCodes are the ICD-10 codes common in chest radiology.
var DiagnosisCodes = []model.DiagnosisCode{
	{Code: "J18.9", Description: "Pneumonia, unspecified organism", CodeSystem: "ICD-10"},
	{Code: "J98.11", Description: "Atelectasis", CodeSystem: "ICD-10"},
	{Code: "I50.9", Description: "Heart failure, unspecified", CodeSystem: "ICD-10"},
	{Code: "J81.0", Description: "Acute pulmonary edema", CodeSystem: "ICD-10"},
	{Code: "J44.1", Description: "Chronic obstructive pulmonary disease with acute exacerbation", CodeSystem: "ICD-10"},
	{Code: "R91.8", Description: "Other nonspecific abnormal finding of lung field", CodeSystem: "ICD-10"},
	{Code: "J96.00", Description: "Acute respiratory failure", CodeSystem: "ICD-10"},
	{Code: "J18.1", Description: "Lobar pneumonia", CodeSystem: "ICD-10"},
	{Code: "I27.20", Description: "Pulmonary hypertension, unspecified", CodeSystem: "ICD-10"},
	{Code: "J84.10", Description: "Pulmonary fibrosis, unspecified", CodeSystem: "ICD-10"},
}

var (
	facilityTypes  = []string{"Hospital", "Clinic", "Medical Center", "Urgent Care"}
	facilityNames  = []string{"Riverside", "Summit", "Lakeview", "Northgate", "St. Anne", "Harbor", "Cedar Valley", "Mercy"}
	cities         = []string{"Boston, MA", "Denver, CO", "Austin, TX", "Portland, OR", "Madison, WI", "Raleigh, NC", "Tucson, AZ"}
	sexes          = []string{"Male", "Female", "Other"}
	encounterTypes = []string{"Inpatient", "Outpatient", "Emergency"}
	modalities     = []string{"X-Ray", "CT", "MRI", "Ultrasound"}
	projections    = []string{"PA", "AP", "Lateral", "Oblique"}
)

// historyDays is how far back seeded encounters are dated.
const historyDays = 730

// encounterFlushSize bounds the number of encounters whose children are
// queued in one batch.
const encounterFlushSize = 500

// Result holds the number of rows written per table.
type Result struct {
	Facilities     int64
	DiagnosisCodes int64
	Patients       int64
	Encounters     int64
	Procedures     int64
	Diagnoses      int64
	Duration       time.Duration
}

// Run writes the synthetic data set in a single transaction. rng drives
// every random choice, so a fixed seed reproduces the same data.
func Run(ctx context.Context, conn db.Conn, log zerolog.Logger, cfg config.SeedConfig, rng *rand.Rand, today time.Time) (*Result, error) {
	start := time.Now()
	res := &Result{}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	facilityIDs, err := seedFacilities(ctx, tx, cfg.Facilities, rng)
	if err != nil {
		return nil, err
	}
	res.Facilities = int64(len(facilityIDs))

	codeIDs, added, err := seedDiagnosisCodes(ctx, tx)
	if err != nil {
		return nil, err
	}
	res.DiagnosisCodes = added

	patientIDs, err := seedPatients(ctx, tx, cfg.Patients, rng)
	if err != nil {
		return nil, err
	}
	res.Patients = int64(len(patientIDs))
	log.Info().
		Int64("facilities", res.Facilities).
		Int64("diagnosis_codes", res.DiagnosisCodes).
		Int64("patients", res.Patients).
		Msg("reference data seeded")

	if err := seedEncounters(ctx, tx, log, cfg, rng, today, patientIDs, facilityIDs, codeIDs, res); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("seed commit: %w", err)
	}

	res.Duration = time.Since(start)
	log.Info().
		Int64("encounters", res.Encounters).
		Int64("procedures", res.Procedures).
		Int64("diagnoses", res.Diagnoses).
		Str("duration", res.Duration.String()).
		Msg("seed complete")

	return res, nil
}

func seedFacilities(ctx context.Context, tx pgx.Tx, n int, rng *rand.Rand) ([]int64, error) {
	rows := make([]model.Facility, n)
	for i := range rows {
		typ := pick(rng, facilityTypes)
		rows[i] = model.Facility{
			Name:     pick(rng, facilityNames) + " " + typ,
			Type:     typ,
			Location: pick(rng, cities),
		}
	}
	return copyAndCollect(ctx, tx, "facilities", "facility_id", model.FacilityColumns(), rows)
}

func seedPatients(ctx context.Context, tx pgx.Tx, n int, rng *rand.Rand) ([]int64, error) {
	rows := make([]model.Patient, n)
	for i := range rows {
		rows[i] = model.Patient{
			Age:      int32(18 + rng.IntN(73)),
			Sex:      pick(rng, sexes),
			Location: pick(rng, cities),
		}
	}
	return copyAndCollect(ctx, tx, "patients", "patient_id", model.PatientColumns(), rows)
}

// copyAndCollect COPYs rows into table and returns the ids they were
// assigned. There are no concurrent writers, so the new rows hold the
// highest ids.
func copyAndCollect[T db.CopyRow](ctx context.Context, tx pgx.Tx, table, idColumn string, columns []string, rows []T) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, db.NewSliceSource(rows))
	if err != nil {
		return nil, fmt.Errorf("copy %s: %w", table, err)
	}

	id := pgx.Identifier{idColumn}.Sanitize()
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT $1", id, pgx.Identifier{table}.Sanitize(), id)
	result, err := tx.Query(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("collect %s ids: %w", table, err)
	}
	ids, err := pgx.CollectRows(result, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect %s ids: %w", table, err)
	}
	return ids, nil
}

func seedDiagnosisCodes(ctx context.Context, tx pgx.Tx) ([]int64, int64, error) {
	batch := &pgx.Batch{}
	for _, c := range DiagnosisCodes {
		batch.Queue(embedsql.InsertDiagnosisCode, c.Code, c.Description, c.CodeSystem)
	}
	br := tx.SendBatch(ctx, batch)
	var added int64
	for _, c := range DiagnosisCodes {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return nil, 0, fmt.Errorf("insert diagnosis code %s: %w", c.Code, err)
		}
		added += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return nil, 0, fmt.Errorf("insert diagnosis codes: %w", err)
	}

	rows, err := tx.Query(ctx, "SELECT code_id FROM diagnosis_codes ORDER BY code_id")
	if err != nil {
		return nil, 0, fmt.Errorf("select diagnosis codes: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, 0, fmt.Errorf("select diagnosis codes: %w", err)
	}
	return ids, added, nil
}

func seedEncounters(ctx context.Context, tx pgx.Tx, log zerolog.Logger, cfg config.SeedConfig, rng *rand.Rand, today time.Time,
	patientIDs, facilityIDs, codeIDs []int64, res *Result) error {
	if len(patientIDs) == 0 {
		return nil
	}
	if len(facilityIDs) == 0 {
		return fmt.Errorf("seed encounters: no facilities")
	}

	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	children := &pgx.Batch{}
	pending := 0

	flush := func() error {
		if children.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, children).Close(); err != nil {
			return fmt.Errorf("insert procedures and diagnoses: %w", err)
		}
		children = &pgx.Batch{}
		pending = 0
		log.Debug().Int64("encounters", res.Encounters).Msg("seed progress")
		return nil
	}

	for _, patientID := range patientIDs {
		numEncounters := between(rng, cfg.MinEncountersPerPatient, cfg.MaxEncountersPerPatient)
		for range numEncounters {
			facilityID := facilityIDs[rng.IntN(len(facilityIDs))]
			enc := model.EncounterDraft{
				PatientID:  patientID,
				FacilityID: &facilityID,
				Date:       today.AddDate(0, 0, -rng.IntN(historyDays+1)),
				Type:       pick(rng, encounterTypes),
				Status:     model.EncounterStatusComplete,
			}

			var encounterID int64
			if err := tx.QueryRow(ctx, embedsql.InsertEncounter,
				enc.PatientID, enc.FacilityID, enc.Date, enc.Type, enc.Status, enc.SourceImageID,
			).Scan(&encounterID); err != nil {
				return fmt.Errorf("insert encounter: %w", err)
			}
			res.Encounters++

			for range between(rng, cfg.MinProceduresPerEncounter, cfg.MaxProceduresPerEncounter) {
				modality, projection := pick(rng, modalities), pick(rng, projections)
				children.Queue(embedsql.InsertProcedure,
					encounterID, fmt.Sprintf("%s %s Chest", modality, projection), modality, projection, enc.Date)
				res.Procedures++
			}

			for i, codeID := range sample(rng, codeIDs, 1+rng.IntN(2)) {
				children.Queue(embedsql.InsertDiagnosis, encounterID, codeID, enc.Date, i == 0)
				res.Diagnoses++
			}

			pending++
			if pending >= encounterFlushSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.IntN(len(values))]
}

// between returns a uniform int in [lo, hi].
func between(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}

// sample returns up to k distinct elements of ids.
func sample(rng *rand.Rand, ids []int64, k int) []int64 {
	k = min(k, len(ids))
	perm := rng.Perm(len(ids))
	out := make([]int64, k)
	for i := range out {
		out[i] = ids[perm[i]]
	}
	return out
}
