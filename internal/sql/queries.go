package sql

import (
	"embed"
)

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/insert_staging_record.sql
var InsertStagingRecord string

//go:embed queries/select_unprocessed.sql
var SelectUnprocessed string

//go:embed queries/sample_patients.sql
var SamplePatients string

//go:embed queries/sample_facilities.sql
var SampleFacilities string

//go:embed queries/insert_encounter.sql
var InsertEncounter string

//go:embed queries/insert_procedure.sql
var InsertProcedure string

//go:embed queries/insert_report.sql
var InsertReport string

//go:embed queries/mark_processed.sql
var MarkProcessed string

//go:embed queries/insert_dim_time.sql
var InsertDimTime string

//go:embed queries/populate_dim_patient.sql
var PopulateDimPatient string

//go:embed queries/populate_dim_facility.sql
var PopulateDimFacility string

//go:embed queries/populate_dim_procedure.sql
var PopulateDimProcedure string

//go:embed queries/populate_dim_diagnosis.sql
var PopulateDimDiagnosis string

//go:embed queries/populate_fact_encounters.sql
var PopulateFactEncounters string

//go:embed queries/update_fact_num_procedures.sql
var UpdateFactNumProcedures string

//go:embed queries/update_fact_num_diagnoses.sql
var UpdateFactNumDiagnoses string

//go:embed queries/update_fact_has_report.sql
var UpdateFactHasReport string

//go:embed queries/populate_bridge_procedure.sql
var PopulateBridgeProcedure string

//go:embed queries/populate_bridge_diagnosis.sql
var PopulateBridgeDiagnosis string

//go:embed queries/refresh_views.sql
var RefreshViews string

//go:embed queries/analyze_warehouse.sql
var AnalyzeWarehouse string

//go:embed queries/insert_diagnosis.sql
var InsertDiagnosis string

//go:embed queries/insert_diagnosis_code.sql
var InsertDiagnosisCode string
