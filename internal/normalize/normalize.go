package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gyeh/radwarehouse/internal/model"
)

// Defaults applied to missing string fields.
const (
	DefaultPatientSex = "Unknown"
	DefaultProjection = "PA"
	DefaultModality   = "DX"
	DefaultLabels     = ""
	DefaultReportText = ""
)

// ErrMissingImageID rejects a record without a natural key.
var ErrMissingImageID = errors.New("missing image id")

// ToStagingRecord coerces a loosely typed SourceRecord into a StagingRecord.
// Age and study date degrade to NULL when invalid; only a missing image id
// rejects the row.
func ToStagingRecord(rec model.SourceRecord, batchID uuid.UUID, rowNum int64) (*model.StagingRecord, error) {
	imageID := strings.TrimSpace(stringField(rec, model.FieldImageID, ""))
	if imageID == "" {
		return nil, fmt.Errorf("row %d: %w", rowNum, ErrMissingImageID)
	}

	return &model.StagingRecord{
		IngestBatchID:   batchID,
		SourceRowNumber: rowNum,

		ImageID:    imageID,
		PatientAge: ParseAge(rec[model.FieldPatientAge]),
		PatientSex: stringField(rec, model.FieldPatientSex, DefaultPatientSex),
		StudyDate:  coerceDate(rec[model.FieldStudyDate]),
		Projection: stringField(rec, model.FieldProjection, DefaultProjection),
		Modality:   stringField(rec, model.FieldModality, DefaultModality),
		Labels:     stringField(rec, model.FieldLabels, DefaultLabels),
		ReportText: stringField(rec, model.FieldReportText, DefaultReportText),
	}, nil
}

// stringField renders rec[field] as a string, falling back to def when the
// field is absent or null.
func stringField(rec model.SourceRecord, field, def string) string {
	v, ok := rec[field]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s == nil {
			return def
		}
		return *s
	case []string:
		return strings.Join(s, ", ")
	case []any:
		parts := make([]string, len(s))
		for i, e := range s {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, ", ")
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
