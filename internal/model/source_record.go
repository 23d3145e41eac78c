package model

// Field names of an extracted source record. They follow the PadChest column
// names the upstream datasets publish.
const (
	FieldImageID    = "ImageID"
	FieldPatientAge = "PatientAge"
	FieldPatientSex = "PatientSex"
	FieldStudyDate  = "StudyDate"
	FieldProjection = "Projection"
	FieldModality   = "Modality"
	FieldLabels     = "Labels"
	FieldReportText = "ReportText"
)

// SourceFields lists every field a SourceRecord may carry, in canonical order.
var SourceFields = []string{
	FieldImageID,
	FieldPatientAge,
	FieldPatientSex,
	FieldStudyDate,
	FieldProjection,
	FieldModality,
	FieldLabels,
	FieldReportText,
}

// SourceRecord is one loosely typed row as produced by an extractor. Values
// may be strings, numbers, or absent; the staging loader coerces them.
type SourceRecord map[string]any

// ImageRecordRow mirrors the Parquet schema for an imaging record file.
type ImageRecordRow struct {
	ImageID    string  `parquet:"image_id"`
	PatientAge *int32  `parquet:"patient_age,optional"`
	PatientSex *string `parquet:"patient_sex,optional"`
	StudyDate  *string `parquet:"study_date,optional"` // YYYYMMDD
	Projection *string `parquet:"projection,optional"`
	Modality   *string `parquet:"modality,optional"`
	Labels     *string `parquet:"labels,optional"`
	ReportText *string `parquet:"report_text,optional"`
}

// Record converts the Parquet row into a SourceRecord, omitting null columns.
func (r *ImageRecordRow) Record() SourceRecord {
	rec := SourceRecord{FieldImageID: r.ImageID}
	if r.PatientAge != nil {
		rec[FieldPatientAge] = int(*r.PatientAge)
	}
	putOpt(rec, FieldPatientSex, r.PatientSex)
	putOpt(rec, FieldStudyDate, r.StudyDate)
	putOpt(rec, FieldProjection, r.Projection)
	putOpt(rec, FieldModality, r.Modality)
	putOpt(rec, FieldLabels, r.Labels)
	putOpt(rec, FieldReportText, r.ReportText)
	return rec
}

func putOpt(rec SourceRecord, field string, v *string) {
	if v != nil {
		rec[field] = *v
	}
}
