package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/model"
	"github.com/gyeh/radwarehouse/internal/normalize"
	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

// StageResult holds metrics from the staging phase.
type StageResult struct {
	RowsRead      int64
	RowsInserted  int64
	RowsDuplicate int64
	RowsRejected  int64
	Duration      time.Duration
}

// Stage coerces records and inserts them into staging_records, skipping
// image ids that are already staged. Each row runs in its own savepoint so a
// bad row is rolled back and logged without losing the rest of the batch.
// The transaction is committed every cfg.StagingCommitSize inserted rows and
// once at the end.
func Stage(ctx context.Context, conn db.Conn, log zerolog.Logger, cfg *config.Config, records []model.SourceRecord, batchID uuid.UUID) (*StageResult, error) {
	start := time.Now()
	res := &StageResult{}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("stage begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pending := 0
	for i, rec := range records {
		rowNum := int64(i + 1)
		res.RowsRead++

		staged, err := normalize.ToStagingRecord(rec, batchID, rowNum)
		if err != nil {
			res.RowsRejected++
			log.Warn().Err(err).Int64("row", rowNum).Msg("row rejected")
			continue
		}

		inserted, err := insertStaging(ctx, tx, staged)
		if err != nil {
			if !isRowError(err) {
				return nil, fmt.Errorf("stage row %d (%s): %w", rowNum, staged.ImageID, err)
			}
			res.RowsRejected++
			log.Warn().Err(err).Int64("row", rowNum).Str("image_id", staged.ImageID).Msg("row rejected")
			continue
		}
		if !inserted {
			res.RowsDuplicate++
			continue
		}

		res.RowsInserted++
		pending++
		if pending >= cfg.StagingCommitSize {
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("stage commit: %w", err)
			}
			log.Debug().Int64("rows_inserted", res.RowsInserted).Msg("staging batch committed")

			next, err := conn.Begin(ctx)
			if err != nil {
				return nil, fmt.Errorf("stage begin: %w", err)
			}
			tx = next
			pending = 0
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("stage commit: %w", err)
	}

	res.Duration = time.Since(start)
	log.Info().
		Int64("rows_read", res.RowsRead).
		Int64("rows_inserted", res.RowsInserted).
		Int64("rows_duplicate", res.RowsDuplicate).
		Int64("rows_rejected", res.RowsRejected).
		Str("duration", res.Duration.String()).
		Msg("staging complete")

	return res, nil
}

// insertStaging writes one row inside a savepoint. It reports false when the
// image id was already staged.
func insertStaging(ctx context.Context, tx pgx.Tx, r *model.StagingRecord) (bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return false, err
	}

	tag, err := sp.Exec(ctx, embedsql.InsertStagingRecord, r.InsertArgs()...)
	if err != nil {
		_ = sp.Rollback(ctx)
		return false, err
	}
	if err := sp.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
