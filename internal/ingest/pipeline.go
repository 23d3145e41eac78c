// Package ingest lands extracted imaging records in staging and promotes
// them into the production schema, then hands off to the warehouse build.
package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/extract"
	"github.com/gyeh/radwarehouse/internal/model"
	"github.com/gyeh/radwarehouse/internal/warehouse"
)

// Pipeline wires the collaborators of one invocation. Source may be nil, in
// which case Synth supplies every record.
type Pipeline struct {
	Conn      db.Conn
	Log       zerolog.Logger
	Config    *config.Config
	Source    extract.Source
	Synth     *extract.Synthesizer
	Picker    Picker
	Refresher warehouse.Refresher
	// Now dates the calendar window and undated encounters. Defaults to time.Now.
	Now func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// RunIngest executes preflight → extract → stage.
func (p *Pipeline) RunIngest(ctx context.Context) (*model.IngestSummary, error) {
	totalStart := time.Now()
	log := p.Log

	log.Info().Msg("starting preflight")
	pf, err := Preflight(ctx, p.Conn, log)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePreflight, Err: err}
	}

	log.Info().Int("sample_size", p.Config.SampleSize).Msg("starting extraction")
	ext := extract.Extract(ctx, log, p.Source, p.Config.SampleSize, p.Synth)
	if err := ctx.Err(); err != nil {
		return nil, &PipelineError{Phase: PhaseExtract, Err: err}
	}

	log.Info().Msg("starting staging")
	stage, err := Stage(ctx, p.Conn, log, p.Config, ext.Records, pf.IngestBatchID)
	if err != nil {
		return nil, &PipelineError{Phase: PhaseStage, Err: err}
	}

	summary := &model.IngestSummary{
		IngestBatchID: pf.IngestBatchID.String(),
		Source:        ext.Source,
		UsedFallback:  ext.UsedFallback,
		RowsExtracted: int64(len(ext.Records)),
		RowsInserted:  stage.RowsInserted,
		RowsDuplicate: stage.RowsDuplicate,
		RowsRejected:  stage.RowsRejected,
		DurationTotal: time.Since(totalStart),
	}

	log.Info().
		Str("source", summary.Source).
		Int64("rows_extracted", summary.RowsExtracted).
		Int64("rows_inserted", summary.RowsInserted).
		Int64("rows_duplicate", summary.RowsDuplicate).
		Int64("rows_rejected", summary.RowsRejected).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("ingest pipeline complete")

	return summary, nil
}

// RunPromote executes preflight → promote → warehouse build → view refresh.
// The warehouse is rebuilt even when no staging rows were promoted. A
// refresh failure returns the summary together with a PipelineError for the
// refresh phase; the warehouse writes stay committed.
func (p *Pipeline) RunPromote(ctx context.Context) (*model.PromoteSummary, error) {
	totalStart := time.Now()
	log := p.Log
	today := p.now()

	if _, err := Preflight(ctx, p.Conn, log); err != nil {
		return nil, &PipelineError{Phase: PhasePreflight, Err: err}
	}

	log.Info().Msg("starting promotion")
	promo, err := Promote(ctx, p.Conn, log, p.Config, p.Picker, today)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePromote, Err: err}
	}

	summary := &model.PromoteSummary{
		RowsSelected: promo.RowsSelected,
		RowsPromoted: promo.RowsPromoted,
		RowsFailed:   promo.RowsFailed,
	}

	if err := p.buildWarehouse(ctx, summary, today); err != nil {
		return summary, err
	}

	summary.DurationTotal = time.Since(totalStart)
	log.Info().
		Int64("rows_promoted", summary.RowsPromoted).
		Int64("rows_failed", summary.RowsFailed).
		Int64("facts_inserted", summary.Warehouse.FactsInserted).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("promote pipeline complete")

	return summary, nil
}

// RunWarehouse rebuilds the warehouse and refreshes views without promoting.
func (p *Pipeline) RunWarehouse(ctx context.Context) (*model.PromoteSummary, error) {
	totalStart := time.Now()
	if _, err := Preflight(ctx, p.Conn, p.Log); err != nil {
		return nil, &PipelineError{Phase: PhasePreflight, Err: err}
	}

	summary := &model.PromoteSummary{}
	if err := p.buildWarehouse(ctx, summary, p.now()); err != nil {
		return summary, err
	}
	summary.DurationTotal = time.Since(totalStart)
	return summary, nil
}

func (p *Pipeline) buildWarehouse(ctx context.Context, summary *model.PromoteSummary, today time.Time) error {
	log := p.Log

	log.Info().Msg("building warehouse")
	wh, err := warehouse.Build(ctx, p.Conn, log, p.Config, today)
	if err != nil {
		return &PipelineError{Phase: PhaseWarehouse, Err: err}
	}
	summary.Warehouse = wh

	log.Info().Msg("refreshing views")
	if err := p.Refresher.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("view refresh failed; warehouse writes are committed")
		return &PipelineError{Phase: PhaseRefresh, Err: err}
	}
	summary.ViewsRefreshed = true
	return nil
}

// Run executes RunIngest followed by RunPromote. The returned summary holds
// whatever phases completed.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	out := &model.RunSummary{}

	ing, err := p.RunIngest(ctx)
	if err != nil {
		return out, err
	}
	out.Ingest = ing

	promo, err := p.RunPromote(ctx)
	out.Promote = promo
	return out, err
}
