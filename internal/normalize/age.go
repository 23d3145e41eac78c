package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// dicomAge matches the DICOM AS value representation, e.g. "045Y" or "006M".
var dicomAge = regexp.MustCompile(`^(\d{3})([DWMY])$`)

const maxAge = 150

// ParseAge coerces an age value into whole years. Accepts integers, integral
// or fractional floats (truncated), numeric strings and DICOM AS strings.
// Returns nil for missing, negative, implausible or unparseable values.
func ParseAge(v any) *int32 {
	var years float64
	switch a := v.(type) {
	case nil:
		return nil
	case int:
		years = float64(a)
	case int32:
		years = float64(a)
	case int64:
		years = float64(a)
	case *int32:
		if a == nil {
			return nil
		}
		years = float64(*a)
	case float32:
		years = float64(a)
	case float64:
		years = a
	case string:
		y, ok := parseAgeString(a)
		if !ok {
			return nil
		}
		years = y
	default:
		return nil
	}

	if math.IsNaN(years) || math.IsInf(years, 0) || years < 0 || years > maxAge {
		return nil
	}
	age := int32(years)
	return &age
}

func parseAgeString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if m := dicomAge.FindStringSubmatch(strings.ToUpper(s)); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "Y":
			return float64(n), true
		case "M":
			return float64(n) / 12, true
		case "W":
			return float64(n) / 52, true
		default:
			return float64(n) / 365, true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
