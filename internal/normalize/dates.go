package normalize

import (
	"strings"
	"time"
)

// StudyDateLayout is the fixed layout of study dates in source records (DICOM DA).
const StudyDateLayout = "20060102"

// ParseStudyDate parses a YYYYMMDD date. Returns nil if the input is empty
// or unparseable.
func ParseStudyDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(StudyDateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// coerceDate accepts a YYYYMMDD string or a time value.
func coerceDate(v any) *time.Time {
	switch d := v.(type) {
	case nil:
		return nil
	case string:
		return ParseStudyDate(d)
	case time.Time:
		if d.IsZero() {
			return nil
		}
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		return &day
	case *time.Time:
		if d == nil {
			return nil
		}
		return coerceDate(*d)
	default:
		return nil
	}
}
