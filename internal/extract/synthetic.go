package extract

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gyeh/radwarehouse/internal/model"
	"github.com/gyeh/radwarehouse/internal/normalize"
)

var (
	syntheticLabels      = []string{"pneumonia", "edema", "atelectasis", "normal", "pleural effusion"}
	syntheticProjections = []string{"PA", "AP", "L"}
	syntheticSexes       = []string{"M", "F"}
)

const syntheticLookbackDays = 730

// Synthesizer generates plausible chest X-ray records.
type Synthesizer struct {
	rng *rand.Rand
	now func() time.Time
}

// NewSynthesizer returns a Synthesizer drawing from rng and dating studies
// relative to now. A nil now uses time.Now.
func NewSynthesizer(rng *rand.Rand, now func() time.Time) *Synthesizer {
	if now == nil {
		now = time.Now
	}
	return &Synthesizer{rng: rng, now: now}
}

// Generate returns n records with ids IMG_000000 .. IMG_<n-1>.
func (s *Synthesizer) Generate(n int) []model.SourceRecord {
	today := s.now()
	records := make([]model.SourceRecord, n)
	for i := range records {
		studyDate := today.AddDate(0, 0, -s.rng.IntN(syntheticLookbackDays+1))
		records[i] = model.SourceRecord{
			model.FieldImageID:    fmt.Sprintf("IMG_%06d", i),
			model.FieldPatientAge: 20 + s.rng.IntN(66),
			model.FieldPatientSex: pick(s.rng, syntheticSexes),
			model.FieldStudyDate:  studyDate.Format(normalize.StudyDateLayout),
			model.FieldProjection: pick(s.rng, syntheticProjections),
			model.FieldModality:   normalize.DefaultModality,
			model.FieldLabels:     pick(s.rng, syntheticLabels),
			model.FieldReportText: "Chest X-ray shows " + pick(s.rng, syntheticLabels),
		}
	}
	return records
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.IntN(len(values))]
}
