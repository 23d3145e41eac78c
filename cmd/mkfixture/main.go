// mkfixture writes a synthetic chest imaging Parquet file usable as a
// --source parquet input. A fraction of rows can be made dirty (missing age,
// unparseable date, repeated image id) to exercise staging coercion.
// Usage: go run ./cmd/mkfixture --out testdata/imaging-small.parquet --rows 200 --dirty 0.1
package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/gyeh/radwarehouse/internal/extract"
	"github.com/gyeh/radwarehouse/internal/model"
	"github.com/gyeh/radwarehouse/internal/parquetread"
)

func main() {
	out := flag.String("out", "testdata/imaging-small.parquet", "output parquet")
	rows := flag.Int("rows", 200, "rows to write")
	dirty := flag.Float64("dirty", 0, "fraction of rows to corrupt (0..1)")
	seed := flag.Uint64("seed", 42, "random seed")
	check := flag.String("check", "", "only print stats for an existing parquet file")
	flag.Parse()

	if *check != "" {
		if err := printStats(*check); err != nil {
			fmt.Fprintf(os.Stderr, "check: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	synth := extract.NewSynthesizer(rng, time.Now)
	records := synth.Generate(*rows)

	outRows := make([]model.ImageRecordRow, len(records))
	corrupted := 0
	for i, rec := range records {
		outRows[i] = toRow(rec)
		if *dirty > 0 && rng.Float64() < *dirty {
			corrupt(rng, outRows, i)
			corrupted++
		}
	}

	if err := parquetread.WriteFile(*out, outRows); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d rows (%d corrupted) to %s\n", len(outRows), corrupted, *out)
}

func toRow(rec model.SourceRecord) model.ImageRecordRow {
	str := func(field string) *string {
		if v, ok := rec[field].(string); ok {
			return &v
		}
		return nil
	}
	row := model.ImageRecordRow{
		ImageID:    rec[model.FieldImageID].(string),
		PatientSex: str(model.FieldPatientSex),
		StudyDate:  str(model.FieldStudyDate),
		Projection: str(model.FieldProjection),
		Modality:   str(model.FieldModality),
		Labels:     str(model.FieldLabels),
		ReportText: str(model.FieldReportText),
	}
	if age, ok := rec[model.FieldPatientAge].(int); ok {
		a := int32(age)
		row.PatientAge = &a
	}
	return row
}

func corrupt(rng *rand.Rand, rows []model.ImageRecordRow, i int) {
	switch rng.IntN(3) {
	case 0:
		rows[i].PatientAge = nil
	case 1:
		bad := "2024-13-45"
		rows[i].StudyDate = &bad
	case 2:
		if i > 0 {
			rows[i].ImageID = rows[rng.IntN(i)].ImageID
		}
	}
}

func printStats(path string) error {
	reader, err := parquetread.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	buf := make([]model.ImageRecordRow, 1024)
	ids := make(map[string]int)
	var total, nullAge, nullDate int
	for {
		n, readErr := reader.Read(buf)
		for i := 0; i < n; i++ {
			total++
			ids[buf[i].ImageID]++
			if buf[i].PatientAge == nil {
				nullAge++
			}
			if buf[i].StudyDate == nil {
				nullDate++
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	fmt.Printf("Total: %d, distinct ids: %d, null age: %d, null date: %d\n",
		total, len(ids), nullAge, nullDate)
	return nil
}
