package model

import "time"

// TimeRow is one calendar day in dim_time.
type TimeRow struct {
	DateKey    int32
	FullDate   time.Time
	Year       int16
	Quarter    int16
	Month      int16
	MonthName  string
	Week       int16 // ISO 8601 week number
	DayOfMonth int16
	DayOfWeek  int16 // 1 = Monday ... 7 = Sunday
	DayName    string
	IsWeekend  bool
}

// Args returns the insert arguments in dim_time column order.
func (r *TimeRow) Args() []any {
	return []any{
		r.DateKey,
		r.FullDate,
		r.Year,
		r.Quarter,
		r.Month,
		r.MonthName,
		r.Week,
		r.DayOfMonth,
		r.DayOfWeek,
		r.DayName,
		r.IsWeekend,
	}
}

// DimensionCounts holds rows inserted per dimension by one build.
type DimensionCounts struct {
	Time      int64
	Patient   int64
	Facility  int64
	Procedure int64
	Diagnosis int64
}
