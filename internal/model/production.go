package model

import "time"

// Encounter types and statuses used by promotion.
const (
	EncounterTypeOutpatient = "Outpatient"
	EncounterStatusComplete = "completed"
	ReportTypeRadiology     = "radiology"
	ReportLanguageEnglish   = "en"
)

// Patient is a production patient row prior to insertion.
type Patient struct {
	Age      int32
	Sex      string
	Location string
}

// PatientColumns returns the COPY column order for patients.
func PatientColumns() []string {
	return []string{"age", "sex", "location"}
}

// CopyValues returns the row values in PatientColumns order.
func (p Patient) CopyValues() []any {
	return []any{p.Age, p.Sex, p.Location}
}

// Facility is a production facility row prior to insertion.
type Facility struct {
	Name     string
	Type     string
	Location string
}

// FacilityColumns returns the COPY column order for facilities.
func FacilityColumns() []string {
	return []string{"facility_name", "facility_type", "location"}
}

// CopyValues returns the row values in FacilityColumns order.
func (f Facility) CopyValues() []any {
	return []any{f.Name, f.Type, f.Location}
}

// DiagnosisCode is a coded diagnosis in the reference vocabulary.
type DiagnosisCode struct {
	Code        string
	Description string
	CodeSystem  string
}

// EncounterDraft describes an encounter to be written with its children.
type EncounterDraft struct {
	PatientID  int64
	FacilityID *int64
	Date       time.Time
	Type       string
	Status     string
	// SourceImageID links a promoted encounter back to its staging row.
	SourceImageID *string
}

// ProcedureDraft is one imaging procedure performed during an encounter.
type ProcedureDraft struct {
	Name       string
	Modality   string
	Projection string
	Date       time.Time
}

// ProcedureName returns the display name promotion uses for a modality.
func ProcedureName(modality string) string {
	return modality + " Chest Imaging"
}
