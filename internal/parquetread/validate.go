package parquetread

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ValidateSchema checks that the Parquet schema carries the natural key and
// at least one descriptive column.
func ValidateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}

	if !columns["image_id"] {
		return fmt.Errorf("missing required column: image_id")
	}

	descriptive := []string{"patient_age", "patient_sex", "study_date", "modality", "report_text"}
	for _, col := range descriptive {
		if columns[col] {
			return nil
		}
	}
	return fmt.Errorf("no descriptive columns found; need at least one of: %s",
		strings.Join(descriptive, ", "))
}
