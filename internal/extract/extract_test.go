package extract

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/model"
	"github.com/gyeh/radwarehouse/internal/normalize"
	"github.com/gyeh/radwarehouse/internal/parquetread"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newSynth(seed uint64) *Synthesizer {
	return NewSynthesizer(rand.New(rand.NewPCG(seed, seed)), func() time.Time { return fixedNow })
}

type stubSource struct {
	records []model.SourceRecord
	err     error
	calls   int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(ctx context.Context, n int) ([]model.SourceRecord, error) {
	s.calls++
	return s.records, s.err
}

func TestSynthesizer_Generate(t *testing.T) {
	records := newSynth(1).Generate(200)
	if len(records) != 200 {
		t.Fatalf("got %d records, want 200", len(records))
	}

	earliest := fixedNow.AddDate(0, 0, -syntheticLookbackDays).Format(normalize.StudyDateLayout)
	latest := fixedNow.Format(normalize.StudyDateLayout)
	seen := make(map[string]bool)

	for i, rec := range records {
		id := rec[model.FieldImageID].(string)
		if id != fmt.Sprintf("IMG_%06d", i) {
			t.Errorf("record %d id: got %q", i, id)
		}
		seen[id] = true

		age := rec[model.FieldPatientAge].(int)
		if age < 20 || age > 85 {
			t.Errorf("record %d age out of range: %d", i, age)
		}
		date := rec[model.FieldStudyDate].(string)
		if date < earliest || date > latest {
			t.Errorf("record %d study date %s outside [%s, %s]", i, date, earliest, latest)
		}
		if rec[model.FieldModality] != "DX" {
			t.Errorf("record %d modality: got %v", i, rec[model.FieldModality])
		}
		if normalize.ParseStudyDate(date) == nil {
			t.Errorf("record %d study date %q does not parse", i, date)
		}
	}
	if len(seen) != 200 {
		t.Errorf("expected unique ids, got %d distinct", len(seen))
	}
}

func TestSynthesizer_Deterministic(t *testing.T) {
	a := newSynth(7).Generate(20)
	b := newSynth(7).Generate(20)
	for i := range a {
		if fmt.Sprint(a[i]) != fmt.Sprint(b[i]) {
			t.Fatalf("record %d differs between identical seeds", i)
		}
	}
}

func TestExtract_Fallback(t *testing.T) {
	log := zerolog.Nop()
	ctx := context.Background()

	t.Run("fetch_error", func(t *testing.T) {
		src := &stubSource{err: errors.New("network unreachable")}
		res := Extract(ctx, log, src, 5, newSynth(1))
		if !res.UsedFallback || len(res.Records) != 5 {
			t.Fatalf("expected 5 fallback records, got fallback=%v n=%d", res.UsedFallback, len(res.Records))
		}
		if res.Source != config.SourceSynthetic {
			t.Errorf("source: got %q", res.Source)
		}
	})

	t.Run("empty_result", func(t *testing.T) {
		res := Extract(ctx, log, &stubSource{}, 3, newSynth(1))
		if !res.UsedFallback || len(res.Records) != 3 {
			t.Fatalf("expected fallback, got %+v", res)
		}
	})

	t.Run("nil_source", func(t *testing.T) {
		res := Extract(ctx, log, nil, 4, newSynth(1))
		if res.UsedFallback {
			t.Error("synthetic-only run is not a fallback")
		}
		if len(res.Records) != 4 {
			t.Errorf("got %d records", len(res.Records))
		}
	})

	t.Run("source_ok_truncated", func(t *testing.T) {
		src := &stubSource{records: []model.SourceRecord{
			{model.FieldImageID: "a"}, {model.FieldImageID: "b"}, {model.FieldImageID: "c"},
		}}
		res := Extract(ctx, log, src, 2, newSynth(1))
		if res.UsedFallback || len(res.Records) != 2 || res.Source != "stub" {
			t.Fatalf("unexpected result: %+v", res)
		}
	})
}

func TestParquetSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.parquet")
	age := int32(52)
	date := "20240301"
	rows := []model.ImageRecordRow{
		{ImageID: "P1", PatientAge: &age, StudyDate: &date},
		{ImageID: "P2"},
	}
	if err := parquetread.WriteFile(path, rows); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := &ParquetSource{Path: path}
	records, err := src.Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0][model.FieldPatientAge] != 52 || records[0][model.FieldStudyDate] != "20240301" {
		t.Errorf("record 0: %v", records[0])
	}
}

func TestParquetSource_MissingFile(t *testing.T) {
	src := &ParquetSource{Path: filepath.Join(t.TempDir(), "absent.parquet")}
	if _, err := src.Fetch(context.Background(), 10); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func mustElement(t *testing.T, tg tag.Tag, v []string) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, v)
	if err != nil {
		t.Fatalf("new element %v: %v", tg, err)
	}
	return el
}

func TestRecordFromDataset(t *testing.T) {
	ds := &dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.SOPInstanceUID, []string{"1.2.840.1"}),
		mustElement(t, tag.PatientAge, []string{"063Y"}),
		mustElement(t, tag.PatientSex, []string{"F"}),
		mustElement(t, tag.StudyDate, []string{"20231105"}),
		mustElement(t, tag.ViewPosition, []string{"AP"}),
		mustElement(t, tag.Modality, []string{"CR"}),
	}}

	rec := recordFromDataset(ds)
	if rec == nil {
		t.Fatal("expected record")
	}
	want := map[string]string{
		model.FieldImageID:    "1.2.840.1",
		model.FieldPatientAge: "063Y",
		model.FieldPatientSex: "F",
		model.FieldStudyDate:  "20231105",
		model.FieldProjection: "AP",
		model.FieldModality:   "CR",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s: got %v, want %q", k, rec[k], v)
		}
	}
	if _, ok := rec[model.FieldReportText]; ok {
		t.Error("absent ImageComments should leave ReportText unset")
	}

	staged, err := normalize.ToStagingRecord(rec, uuid.New(), 1)
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if staged.PatientAge == nil || *staged.PatientAge != 63 {
		t.Errorf("DICOM age not coerced: %v", staged.PatientAge)
	}
}

func TestRecordFromDataset_NoUID(t *testing.T) {
	ds := &dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.Modality, []string{"DX"}),
	}}
	if rec := recordFromDataset(ds); rec != nil {
		t.Errorf("expected nil record without SOPInstanceUID, got %v", rec)
	}
}

func TestDICOMSource_EmptyDir(t *testing.T) {
	src := &DICOMSource{Root: t.TempDir()}
	records, err := src.Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records from empty dir", len(records))
	}
}

func TestHubSource_Paging(t *testing.T) {
	const total = 250
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		length, _ := strconv.Atoi(r.URL.Query().Get("length"))
		if r.URL.Path != "/rows" || r.URL.Query().Get("dataset") != "org/cxr" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"num_rows_total": %d, "rows": [`, total)
		for i := offset; i < offset+length && i < total; i++ {
			if i > offset {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"row_idx": %d, "row": {"ImageID": "H%d", "PatientAge": 40, "Labels": ["edema", "normal"], "Extra": 1}}`, i, i)
		}
		fmt.Fprint(w, "]}")
	}))
	defer srv.Close()

	src := NewHubSource(srv.URL, "org/cxr", "train")
	records, err := src.Fetch(context.Background(), 230)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 230 {
		t.Fatalf("got %d records, want 230", len(records))
	}
	if requests != 3 {
		t.Errorf("expected 3 page requests, got %d", requests)
	}
	if records[229][model.FieldImageID] != "H229" {
		t.Errorf("last record: %v", records[229])
	}
	if _, ok := records[0]["Extra"]; ok {
		t.Error("unknown fields should be dropped")
	}

	staged, err := normalize.ToStagingRecord(records[0], uuid.New(), 1)
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if staged.Labels != "edema, normal" || staged.PatientAge == nil || *staged.PatientAge != 40 {
		t.Errorf("unexpected coercion: %+v", staged)
	}
}

func TestHubSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "dataset not found", http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewHubSource(srv.URL, "missing/ds", "train")
	if _, err := src.Fetch(context.Background(), 10); err == nil {
		t.Fatal("expected error on 404")
	}

	res := Extract(context.Background(), zerolog.Nop(), src, 10, newSynth(3))
	if !res.UsedFallback || len(res.Records) != 10 {
		t.Errorf("expected synthetic fallback, got %+v", res)
	}
}

func TestHubSource_RowsWithoutImageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"num_rows_total": 3, "rows": [
			{"row_idx": 0, "row": {"image": "x.png", "text": "normal"}},
			{"row_idx": 1, "row": {"ImageID": "", "text": "edema"}},
			{"row_idx": 2, "row": {"image": "y.png", "text": "normal"}}]}`)
	}))
	defer srv.Close()

	src := NewHubSource(srv.URL, "org/cxr", "train")
	records, err := src.Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0: %v", len(records), records)
	}

	res := Extract(context.Background(), zerolog.Nop(), src, 4, newSynth(5))
	if !res.UsedFallback || len(res.Records) != 4 {
		t.Errorf("expected synthetic fallback, got %+v", res)
	}
	for _, rec := range res.Records {
		if rec[model.FieldImageID] == nil {
			t.Errorf("fallback record without image id: %v", rec)
		}
	}
}

func TestHubSource_MixedRowsKeepUsable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"num_rows_total": 3, "rows": [
			{"row_idx": 0, "row": {"ImageID": "K0", "Modality": "DX"}},
			{"row_idx": 1, "row": {"image": "x.png"}},
			{"row_idx": 2, "row": {"ImageID": "K2"}}]}`)
	}))
	defer srv.Close()

	records, err := NewHubSource(srv.URL, "org/cxr", "train").Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 || records[0][model.FieldImageID] != "K0" || records[1][model.FieldImageID] != "K2" {
		t.Errorf("records: %v", records)
	}
}

func TestNewSource(t *testing.T) {
	for kind, wantNil := range map[string]bool{
		config.SourceSynthetic: true,
		config.SourceParquet:   false,
		config.SourceDICOM:     false,
		config.SourceHub:       false,
	} {
		src, err := NewSource(config.SourceConfig{Kind: kind, Path: "x"})
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if (src == nil) != wantNil {
			t.Errorf("%s: nil=%v", kind, src == nil)
		}
	}
	if _, err := NewSource(config.SourceConfig{Kind: "ftp"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
