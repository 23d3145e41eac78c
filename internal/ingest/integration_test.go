package ingest_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/extract"
	"github.com/gyeh/radwarehouse/internal/ingest"
	"github.com/gyeh/radwarehouse/internal/model"
	"github.com/gyeh/radwarehouse/internal/pgtest"
	"github.com/gyeh/radwarehouse/internal/warehouse"
)

const testPort = 15433

var (
	srv      *pgtest.Server
	fixedNow = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
)

func TestMain(m *testing.M) {
	pgtest.Main(m, testPort, &srv)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Source.Kind = config.SourceSynthetic
	return &cfg
}

// seedProduction inserts patients and facilities for promotion to pick from.
func seedProduction(t *testing.T, pool *pgxpool.Pool, patients, facilities int) {
	t.Helper()
	ctx := context.Background()
	if _, err := pool.Exec(ctx,
		"INSERT INTO patients (age, sex, location) SELECT 20 + g, 'Female', 'Boston' FROM generate_series(1, $1) g",
		patients); err != nil {
		t.Fatalf("seed patients: %v", err)
	}
	if _, err := pool.Exec(ctx,
		"INSERT INTO facilities (facility_name, facility_type, location) SELECT 'Facility ' || g, 'Hospital', 'Boston' FROM generate_series(1, $1) g",
		facilities); err != nil {
		t.Fatalf("seed facilities: %v", err)
	}
}

func record(id, date string) model.SourceRecord {
	return model.SourceRecord{
		model.FieldImageID:    id,
		model.FieldPatientAge: 45,
		model.FieldPatientSex: "M",
		model.FieldStudyDate:  date,
		model.FieldProjection: "PA",
		model.FieldModality:   "DX",
		model.FieldLabels:     "normal",
		model.FieldReportText: "Chest X-ray shows normal",
	}
}

func stage(t *testing.T, pool *pgxpool.Pool, cfg *config.Config, records ...model.SourceRecord) *ingest.StageResult {
	t.Helper()
	res, err := ingest.Stage(context.Background(), pool, zerolog.Nop(), cfg, records, uuid.New())
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	return res
}

func firstPicker() ingest.Picker {
	return ingest.PickerFunc(func(int) int { return 0 })
}

// ---------- migrations ----------

func TestMigrations_Idempotent(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()

	if err := db.ApplyMigrations(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("second migration run should be idempotent: %v", err)
	}
	if _, err := ingest.Preflight(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("preflight after migrations: %v", err)
	}
}

func TestPreflight_MissingSchema(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, "DROP TABLE bridge_encounter_diagnosis CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_, err := ingest.Preflight(ctx, pool, zerolog.Nop())
	if !errors.Is(err, ingest.ErrSchemaMissing) {
		t.Fatalf("expected ErrSchemaMissing, got %v", err)
	}
}

// ---------- staging ----------

func TestStage_DuplicateImageIDs(t *testing.T) {
	pool := srv.Setup(t)
	cfg := testConfig()

	res := stage(t, pool, cfg,
		record("IMG_1", "20240101"),
		record("IMG_2", "20240102"),
		record("IMG_1", "20240103"),
	)

	if res.RowsRead != 3 || res.RowsInserted != 2 || res.RowsDuplicate != 1 || res.RowsRejected != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if n := pgtest.Count(t, pool, "staging_records"); n != 2 {
		t.Errorf("staging rows: got %d, want 2", n)
	}

	for id, want := range map[string]int64{"IMG_1": 1, "IMG_2": 2} {
		var row int64
		if err := pool.QueryRow(context.Background(),
			"SELECT source_row FROM staging_records WHERE image_id = $1", id).Scan(&row); err != nil {
			t.Fatalf("query %s: %v", id, err)
		}
		if row != want {
			t.Errorf("%s source_row: got %d, want %d", id, row, want)
		}
	}
}

func TestStage_Idempotent(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	cfg.StagingCommitSize = 2

	batch := []model.SourceRecord{
		record("A", "20240101"), record("B", "20240102"), record("C", "20240103"),
		record("D", "20240104"), record("E", "20240105"),
	}
	first := stage(t, pool, cfg, batch...)
	if first.RowsInserted != 5 {
		t.Fatalf("first run inserted %d, want 5", first.RowsInserted)
	}

	changed := record("A", "20240101")
	changed[model.FieldPatientSex] = "F"
	second := stage(t, pool, cfg, append(batch, changed)...)
	if second.RowsInserted != 0 || second.RowsDuplicate != 6 {
		t.Errorf("second run: %+v", second)
	}
	if n := pgtest.Count(t, pool, "staging_records"); n != 5 {
		t.Errorf("staging rows: got %d, want 5", n)
	}

	var sex string
	if err := pool.QueryRow(ctx, "SELECT patient_sex FROM staging_records WHERE image_id = 'A'").Scan(&sex); err != nil {
		t.Fatalf("query: %v", err)
	}
	if sex != "M" {
		t.Errorf("staged row was overwritten: sex=%q", sex)
	}
}

func TestStage_RowErrorsSkipped(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()

	bad := record("BAD", "20240101")
	bad[model.FieldReportText] = "nul\x00byte"
	noID := record("", "20240101")

	res := stage(t, pool, cfg, record("OK1", "20240101"), bad, noID, record("OK2", "20240102"))

	if res.RowsInserted != 2 || res.RowsRejected != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	var ids []string
	rows, err := pool.Query(ctx, "SELECT image_id FROM staging_records ORDER BY image_id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) != 2 || ids[0] != "OK1" || ids[1] != "OK2" {
		t.Errorf("staged ids: %v", ids)
	}
}

func TestStage_CoercedValues(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()

	stage(t, pool, testConfig(), model.SourceRecord{
		model.FieldImageID:    "RAW",
		model.FieldPatientAge: "abc",
		model.FieldStudyDate:  "not-a-date",
	})

	var (
		age                       *int32
		date                      *time.Time
		sex, projection, modality string
		batch                     uuid.UUID
		processed                 bool
	)
	err := pool.QueryRow(ctx,
		"SELECT patient_age, study_date, patient_sex, projection, modality, ingest_batch_id, processed FROM staging_records WHERE image_id = 'RAW'",
	).Scan(&age, &date, &sex, &projection, &modality, &batch, &processed)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if age != nil || date != nil {
		t.Errorf("invalid age/date should be NULL, got %v %v", age, date)
	}
	if sex != "Unknown" || projection != "PA" || modality != "DX" {
		t.Errorf("defaults: sex=%q projection=%q modality=%q", sex, projection, modality)
	}
	if batch == uuid.Nil || processed {
		t.Errorf("batch=%v processed=%v", batch, processed)
	}
}

// ---------- promotion ----------

func TestPromote_AtMostOnce(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	cfg.PromoteCommitSize = 2
	seedProduction(t, pool, 3, 2)

	stage(t, pool, cfg,
		record("P1", "20240101"), record("P2", "20240102"),
		record("P3", "20240103"), record("P4", "20240104"),
	)

	res, err := ingest.Promote(ctx, pool, zerolog.Nop(), cfg, ingest.NewRandomPicker(rand.New(rand.NewPCG(1, 2))), fixedNow)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.RowsSelected != 4 || res.RowsPromoted != 4 || res.RowsFailed != 0 {
		t.Errorf("first run: %+v", res)
	}

	for table, want := range map[string]int64{"encounters": 4, "procedures": 4, "reports": 4} {
		if n := pgtest.Count(t, pool, table); n != want {
			t.Errorf("%s: got %d, want %d", table, n, want)
		}
	}

	again, err := ingest.Promote(ctx, pool, zerolog.Nop(), cfg, firstPicker(), fixedNow)
	if err != nil {
		t.Fatalf("second Promote: %v", err)
	}
	if again.RowsSelected != 0 || again.RowsPromoted != 0 {
		t.Errorf("second run should promote nothing: %+v", again)
	}
	if n := pgtest.Count(t, pool, "encounters"); n != 4 {
		t.Errorf("encounters after re-run: got %d, want 4", n)
	}

	stats, err := ingest.CollectStats(ctx, pool)
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}
	if stats.StagingProcessed != 4 || stats.StagingUnprocessed != 0 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestPromote_EmptyPatientPool(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	seedProduction(t, pool, 0, 2)

	stage(t, pool, cfg, record("LONELY", "20240101"))

	res, err := ingest.Promote(ctx, pool, zerolog.Nop(), cfg, firstPicker(), fixedNow)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.RowsPromoted != 0 || res.RowsFailed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	var processed bool
	if err := pool.QueryRow(ctx, "SELECT processed FROM staging_records WHERE image_id = 'LONELY'").Scan(&processed); err != nil {
		t.Fatalf("query: %v", err)
	}
	if processed {
		t.Error("failed row must stay unprocessed")
	}
	if n := pgtest.Count(t, pool, "encounters"); n != 0 {
		t.Errorf("encounters: got %d, want 0", n)
	}
}

func TestPromote_PartialRowRolledBack(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	cfg.PromoteCommitSize = 10
	seedProduction(t, pool, 2, 1)

	bad := record("B", "20240102")
	bad[model.FieldModality] = "CT"
	stage(t, pool, cfg, record("A", "20240101"), bad, record("C", "20240103"))

	// Encounter insert succeeds for B, then its procedure insert raises.
	if _, err := pool.Exec(ctx, `
CREATE FUNCTION reject_ct() RETURNS trigger AS $$
BEGIN
    IF NEW.modality = 'CT' THEN
        RAISE EXCEPTION 'CT not accepted' USING ERRCODE = 'check_violation';
    END IF;
    RETURN NEW;
END
$$ LANGUAGE plpgsql;
CREATE TRIGGER procedures_reject_ct BEFORE INSERT ON procedures
    FOR EACH ROW EXECUTE FUNCTION reject_ct();`); err != nil {
		t.Fatalf("install trigger: %v", err)
	}

	res, err := ingest.Promote(ctx, pool, zerolog.Nop(), cfg, firstPicker(), fixedNow)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.RowsSelected != 3 || res.RowsPromoted != 2 || res.RowsFailed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	for _, table := range []string{"encounters", "procedures", "reports"} {
		if n := pgtest.Count(t, pool, table); n != 2 {
			t.Errorf("%s: got %d, want 2", table, n)
		}
	}

	var orphans int64
	if err := pool.QueryRow(ctx,
		"SELECT count(*) FROM encounters e WHERE NOT EXISTS (SELECT 1 FROM procedures p WHERE p.encounter_id = e.encounter_id)",
	).Scan(&orphans); err != nil {
		t.Fatalf("query: %v", err)
	}
	if orphans != 0 {
		t.Errorf("encounters without procedures: %d", orphans)
	}

	for id, want := range map[string]bool{"A": true, "B": false, "C": true} {
		var processed bool
		if err := pool.QueryRow(ctx, "SELECT processed FROM staging_records WHERE image_id = $1", id).Scan(&processed); err != nil {
			t.Fatalf("query %s: %v", id, err)
		}
		if processed != want {
			t.Errorf("%s processed = %v, want %v", id, processed, want)
		}
	}
}

func TestPromote_RowValues(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	seedProduction(t, pool, 2, 2)

	undated := record("UNDATED", "")
	delete(undated, model.FieldStudyDate)
	ct := record("CT1", "20240310")
	ct[model.FieldModality] = "CT"
	ct[model.FieldProjection] = "AP"
	stage(t, pool, cfg, ct, undated)

	if _, err := ingest.Promote(ctx, pool, zerolog.Nop(), cfg, firstPicker(), fixedNow); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	t.Run("dated_row", func(t *testing.T) {
		var (
			encDate, procDate           time.Time
			encType, status, procName   string
			modality, projection, rtype string
		)
		err := pool.QueryRow(ctx, `
			SELECT e.encounter_date, e.encounter_type, e.status,
			       p.procedure_name, p.modality, p.projection, p.procedure_date,
			       r.report_type
			FROM encounters e
			JOIN procedures p ON p.encounter_id = e.encounter_id
			JOIN reports r    ON r.encounter_id = e.encounter_id
			WHERE e.source_image_id = 'CT1'`,
		).Scan(&encDate, &encType, &status, &procName, &modality, &projection, &procDate, &rtype)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		want := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		if !encDate.Equal(want) || !procDate.Equal(want) {
			t.Errorf("dates: encounter=%v procedure=%v, want %v", encDate, procDate, want)
		}
		if encType != model.EncounterTypeOutpatient || status != model.EncounterStatusComplete {
			t.Errorf("type=%q status=%q", encType, status)
		}
		if procName != "CT Chest Imaging" || modality != "CT" || projection != "AP" {
			t.Errorf("procedure: %q %q %q", procName, modality, projection)
		}
		if rtype != model.ReportTypeRadiology {
			t.Errorf("report type: %q", rtype)
		}
	})

	t.Run("undated_row_uses_today", func(t *testing.T) {
		var encDate time.Time
		err := pool.QueryRow(ctx, "SELECT encounter_date FROM encounters WHERE source_image_id = 'UNDATED'").Scan(&encDate)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if encDate.Format("2006-01-02") != "2025-06-15" {
			t.Errorf("encounter date: got %v, want 2025-06-15", encDate)
		}
	})

	t.Run("processed_at_set", func(t *testing.T) {
		var n int64
		if err := pool.QueryRow(ctx, "SELECT count(*) FROM staging_records WHERE processed AND processed_at IS NOT NULL").Scan(&n); err != nil {
			t.Fatalf("query: %v", err)
		}
		if n != 2 {
			t.Errorf("processed rows with timestamp: got %d, want 2", n)
		}
	})
}

func TestPromote_BatchSizeNewestFirst(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	cfg.PromoteBatchSize = 2
	seedProduction(t, pool, 1, 1)

	stage(t, pool, cfg, record("OLD", "20230101"), record("NEW", "20240601"), record("MID", "20231201"))

	res, err := ingest.Promote(ctx, pool, zerolog.Nop(), cfg, firstPicker(), fixedNow)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.RowsSelected != 2 || res.RowsPromoted != 2 {
		t.Errorf("unexpected result: %+v", res)
	}

	var remaining string
	if err := pool.QueryRow(ctx, "SELECT image_id FROM staging_records WHERE NOT processed").Scan(&remaining); err != nil {
		t.Fatalf("query: %v", err)
	}
	if remaining != "OLD" {
		t.Errorf("oldest row should remain unprocessed, got %q", remaining)
	}
}

func TestProcessedFlag_Monotonic(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	seedProduction(t, pool, 1, 1)

	stage(t, pool, cfg, record("ONCE", "20240101"))
	if _, err := ingest.Promote(ctx, pool, zerolog.Nop(), cfg, firstPicker(), fixedNow); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	_, err := pool.Exec(ctx, "UPDATE staging_records SET processed = FALSE WHERE image_id = 'ONCE'")
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23514" {
		t.Fatalf("expected check_violation reverting processed, got %v", err)
	}
}

// ---------- pipeline ----------

type failingRefresher struct{}

func (failingRefresher) Refresh(context.Context) error { return errors.New("refresh exploded") }

func newPipeline(pool *pgxpool.Pool, cfg *config.Config) *ingest.Pipeline {
	return &ingest.Pipeline{
		Conn:      pool,
		Log:       zerolog.Nop(),
		Config:    cfg,
		Synth:     extract.NewSynthesizer(rand.New(rand.NewPCG(42, 42)), func() time.Time { return fixedNow }),
		Picker:    ingest.NewRandomPicker(rand.New(rand.NewPCG(7, 7))),
		Refresher: &warehouse.SQLRefresher{Conn: pool},
		Now:       func() time.Time { return fixedNow },
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	cfg.SampleSize = 60
	cfg.StagingCommitSize = 25
	cfg.PromoteCommitSize = 25
	seedProduction(t, pool, 20, 3)

	p := newPipeline(pool, cfg)
	summary, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	t.Run("ingest_summary", func(t *testing.T) {
		s := summary.Ingest
		if s.RowsExtracted != 60 || s.RowsInserted != 60 || s.RowsDuplicate != 0 {
			t.Errorf("ingest: %+v", s)
		}
		if s.Source != config.SourceSynthetic || s.UsedFallback {
			t.Errorf("source=%q fallback=%v", s.Source, s.UsedFallback)
		}
		if _, err := uuid.Parse(s.IngestBatchID); err != nil {
			t.Errorf("batch id %q: %v", s.IngestBatchID, err)
		}
	})

	t.Run("promote_summary", func(t *testing.T) {
		s := summary.Promote
		if s.RowsPromoted != 60 || s.RowsFailed != 0 || !s.ViewsRefreshed {
			t.Errorf("promote: %+v", s)
		}
		if s.Warehouse == nil || s.Warehouse.FactsInserted != 60 || s.Warehouse.BridgeProcedures != 60 {
			t.Errorf("warehouse: %+v", s.Warehouse)
		}
	})

	t.Run("rerun_is_noop", func(t *testing.T) {
		again, err := newPipeline(pool, cfg).Run(ctx)
		if err != nil {
			t.Fatalf("second Run: %v", err)
		}
		if again.Ingest.RowsInserted != 0 || again.Ingest.RowsDuplicate != 60 {
			t.Errorf("ingest re-run: %+v", again.Ingest)
		}
		if again.Promote.RowsPromoted != 0 || again.Promote.Warehouse.FactsInserted != 0 {
			t.Errorf("promote re-run: %+v", again.Promote)
		}
		if n := pgtest.Count(t, pool, "fact_encounters"); n != 60 {
			t.Errorf("fact rows: got %d, want 60", n)
		}
	})

	t.Run("views_populated", func(t *testing.T) {
		var total int64
		if err := pool.QueryRow(ctx, "SELECT coalesce(sum(total_encounters), 0)::bigint FROM mv_monthly_encounters").Scan(&total); err != nil {
			t.Fatalf("query: %v", err)
		}
		if total != 60 {
			t.Errorf("mv_monthly_encounters total: got %d, want 60", total)
		}
	})
}

func TestPipeline_RefreshFailureKeepsWarehouse(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	seedProduction(t, pool, 2, 1)
	stage(t, pool, cfg, record("R1", "20250101"))

	p := newPipeline(pool, cfg)
	p.Refresher = failingRefresher{}

	summary, err := p.RunPromote(ctx)
	var pe *ingest.PipelineError
	if !errors.As(err, &pe) || pe.Phase != ingest.PhaseRefresh {
		t.Fatalf("expected refresh PipelineError, got %v", err)
	}
	if summary == nil || summary.RowsPromoted != 1 || summary.ViewsRefreshed {
		t.Errorf("summary: %+v", summary)
	}
	if n := pgtest.Count(t, pool, "fact_encounters"); n != 1 {
		t.Errorf("fact rows should stay committed: got %d", n)
	}
}

func TestPipeline_PromoteWithoutPatients(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	stage(t, pool, cfg, record("X1", "20250101"))

	_, err := newPipeline(pool, cfg).RunPromote(ctx)
	var pe *ingest.PipelineError
	if !errors.As(err, &pe) || pe.Phase != ingest.PhaseWarehouse {
		t.Fatalf("expected warehouse PipelineError, got %v", err)
	}
	var pre *warehouse.PrerequisiteError
	if !errors.As(err, &pre) || pre.Table != "dim_patient" {
		t.Errorf("expected dim_patient prerequisite failure, got %v", err)
	}
}

func TestPipeline_WarehouseOnly(t *testing.T) {
	pool := srv.Setup(t)
	ctx := context.Background()
	cfg := testConfig()
	seedProduction(t, pool, 3, 1)
	stage(t, pool, cfg, record("W1", "20250101"), record("W2", "20250102"))

	promo, err := ingest.Promote(ctx, pool, zerolog.Nop(), cfg, firstPicker(), fixedNow)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if promo.RowsPromoted != 2 {
		t.Fatalf("promoted: got %d, want 2", promo.RowsPromoted)
	}
	if n := pgtest.Count(t, pool, "fact_encounters"); n != 0 {
		t.Fatalf("facts before warehouse build: got %d", n)
	}

	p := newPipeline(pool, cfg)
	summary, err := p.RunWarehouse(ctx)
	if err != nil {
		t.Fatalf("RunWarehouse: %v", err)
	}
	if summary.RowsPromoted != 0 || !summary.ViewsRefreshed || summary.Warehouse.FactsInserted != 2 {
		t.Errorf("summary: %+v warehouse: %+v", summary, summary.Warehouse)
	}

	again, err := p.RunWarehouse(ctx)
	if err != nil {
		t.Fatalf("second RunWarehouse: %v", err)
	}
	if again.Warehouse.FactsInserted != 0 {
		t.Errorf("rebuild inserted %d facts, want 0", again.Warehouse.FactsInserted)
	}
	if n := pgtest.Count(t, pool, "fact_encounters"); n != 2 {
		t.Errorf("fact rows: got %d, want 2", n)
	}
}
