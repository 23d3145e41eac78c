package model

import (
	"time"

	"github.com/google/uuid"
)

// StagingRecord is the coerced, DB-ready form of a SourceRecord.
// SourceRowNumber is the 1-based position within the extracted batch.
type StagingRecord struct {
	IngestBatchID   uuid.UUID
	SourceRowNumber int64

	ImageID    string
	PatientAge *int32
	PatientSex string
	StudyDate  *time.Time
	Projection string
	Modality   string
	Labels     string
	ReportText string
}

// InsertArgs returns the positional arguments for the staging insert, in
// the order the insert statement declares its columns.
func (r *StagingRecord) InsertArgs() []any {
	return []any{
		r.ImageID,
		r.IngestBatchID,
		r.SourceRowNumber,
		r.PatientAge,
		r.PatientSex,
		r.StudyDate,
		r.Projection,
		r.Modality,
		r.Labels,
		r.ReportText,
	}
}

// UnprocessedRecord is a staging row awaiting promotion.
type UnprocessedRecord struct {
	StagingID  int64
	ImageID    string
	PatientAge *int32
	PatientSex string
	StudyDate  *time.Time
	Projection string
	Modality   string
	Labels     string
	ReportText string
}
