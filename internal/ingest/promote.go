package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/model"
	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

var (
	// ErrEmptyPool fails a row when there is no patient or facility to
	// attach its encounter to.
	ErrEmptyPool = errors.New("empty pool")

	// ErrAlreadyProcessed fails a row whose staging record was marked
	// processed after it was selected.
	ErrAlreadyProcessed = errors.New("staging row already processed")
)

// PromoteResult holds metrics from the promotion phase.
type PromoteResult struct {
	RowsSelected int64
	RowsPromoted int64
	RowsFailed   int64
	Duration     time.Duration
}

// Promote moves up to cfg.PromoteBatchSize unprocessed staging rows into
// production. Each row becomes an encounter with one procedure and one
// report, attached to a patient and facility chosen by picker from randomly
// sampled pools. The production inserts and the processed flag for a row
// share one savepoint, so a row is either fully promoted or left
// unprocessed for the next run. today dates encounters whose study date is
// unknown.
func Promote(ctx context.Context, conn db.Conn, log zerolog.Logger, cfg *config.Config, picker Picker, today time.Time) (*PromoteResult, error) {
	start := time.Now()
	res := &PromoteResult{}

	rows, err := selectUnprocessed(ctx, conn, cfg.PromoteBatchSize)
	if err != nil {
		return nil, err
	}
	res.RowsSelected = int64(len(rows))
	if len(rows) == 0 {
		res.Duration = time.Since(start)
		log.Info().Msg("no unprocessed staging rows")
		return res, nil
	}

	patients, err := samplePool(ctx, conn, embedsql.SamplePatients, cfg.PatientPoolSize)
	if err != nil {
		return nil, fmt.Errorf("sample patients: %w", err)
	}
	facilities, err := samplePool(ctx, conn, embedsql.SampleFacilities, cfg.FacilityPoolSize)
	if err != nil {
		return nil, fmt.Errorf("sample facilities: %w", err)
	}
	log.Info().
		Int("rows", len(rows)).
		Int("patient_pool", len(patients)).
		Int("facility_pool", len(facilities)).
		Msg("promoting staging rows")

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("promote begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	today = dateOnly(today)
	pending := 0
	for i := range rows {
		row := &rows[i]

		err := promoteRow(ctx, tx, row, patients, facilities, picker, today)
		if err != nil {
			if !errors.Is(err, ErrEmptyPool) && !errors.Is(err, ErrAlreadyProcessed) && !isRowError(err) {
				return nil, fmt.Errorf("promote %s: %w", row.ImageID, err)
			}
			res.RowsFailed++
			log.Warn().Err(err).Int64("staging_id", row.StagingID).Str("image_id", row.ImageID).Msg("promotion failed")
			continue
		}

		res.RowsPromoted++
		pending++
		if pending >= cfg.PromoteCommitSize {
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("promote commit: %w", err)
			}
			log.Debug().Int64("rows_promoted", res.RowsPromoted).Msg("promotion batch committed")

			next, err := conn.Begin(ctx)
			if err != nil {
				return nil, fmt.Errorf("promote begin: %w", err)
			}
			tx = next
			pending = 0
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("promote commit: %w", err)
	}

	res.Duration = time.Since(start)
	log.Info().
		Int64("rows_selected", res.RowsSelected).
		Int64("rows_promoted", res.RowsPromoted).
		Int64("rows_failed", res.RowsFailed).
		Str("duration", res.Duration.String()).
		Msg("promotion complete")

	return res, nil
}

func promoteRow(ctx context.Context, tx pgx.Tx, row *model.UnprocessedRecord, patients, facilities []int64, picker Picker, today time.Time) error {
	if len(patients) == 0 {
		return fmt.Errorf("patients: %w", ErrEmptyPool)
	}
	if len(facilities) == 0 {
		return fmt.Errorf("facilities: %w", ErrEmptyPool)
	}

	date := today
	if row.StudyDate != nil {
		date = *row.StudyDate
	}
	facilityID := facilities[picker.Pick(len(facilities))]
	imageID := row.ImageID
	enc := model.EncounterDraft{
		PatientID:     patients[picker.Pick(len(patients))],
		FacilityID:    &facilityID,
		Date:          date,
		Type:          model.EncounterTypeOutpatient,
		Status:        model.EncounterStatusComplete,
		SourceImageID: &imageID,
	}
	proc := model.ProcedureDraft{
		Name:       model.ProcedureName(row.Modality),
		Modality:   row.Modality,
		Projection: row.Projection,
		Date:       date,
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sp.Rollback(ctx) }()

	encounterID, err := insertEncounter(ctx, sp, &enc)
	if err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	if err := insertProcedure(ctx, sp, encounterID, &proc); err != nil {
		return fmt.Errorf("insert procedure: %w", err)
	}
	if _, err := sp.Exec(ctx, embedsql.InsertReport,
		encounterID, model.ReportTypeRadiology, row.ReportText, model.ReportLanguageEnglish,
	); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	tag, err := sp.Exec(ctx, embedsql.MarkProcessed, row.StagingID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrAlreadyProcessed
	}

	return sp.Commit(ctx)
}

func insertEncounter(ctx context.Context, conn db.Conn, e *model.EncounterDraft) (int64, error) {
	var id int64
	err := conn.QueryRow(ctx, embedsql.InsertEncounter,
		e.PatientID, e.FacilityID, e.Date, e.Type, e.Status, e.SourceImageID,
	).Scan(&id)
	return id, err
}

func insertProcedure(ctx context.Context, conn db.Conn, encounterID int64, p *model.ProcedureDraft) error {
	_, err := conn.Exec(ctx, embedsql.InsertProcedure,
		encounterID, p.Name, p.Modality, p.Projection, p.Date,
	)
	return err
}

func selectUnprocessed(ctx context.Context, conn db.Conn, limit int) ([]model.UnprocessedRecord, error) {
	rows, err := conn.Query(ctx, embedsql.SelectUnprocessed, limit)
	if err != nil {
		return nil, fmt.Errorf("select unprocessed: %w", err)
	}
	defer rows.Close()

	var out []model.UnprocessedRecord
	for rows.Next() {
		var r model.UnprocessedRecord
		if err := rows.Scan(
			&r.StagingID, &r.ImageID, &r.PatientAge, &r.PatientSex, &r.StudyDate,
			&r.Projection, &r.Modality, &r.Labels, &r.ReportText,
		); err != nil {
			return nil, fmt.Errorf("scan unprocessed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select unprocessed: %w", err)
	}
	return out, nil
}

func samplePool(ctx context.Context, conn db.Conn, query string, size int) ([]int64, error) {
	rows, err := conn.Query(ctx, query, size)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
