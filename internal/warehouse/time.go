package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/model"
	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

// TimeRows returns one row per calendar day in [start, end]. Only the date
// part of start and end is used.
func TimeRows(start, end time.Time) []model.TimeRow {
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return nil
	}

	rows := make([]model.TimeRow, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		rows = append(rows, timeRow(d))
	}
	return rows
}

func timeRow(d time.Time) model.TimeRow {
	_, week := d.ISOWeek()
	wd := d.Weekday()
	dow := int16(wd)
	if wd == time.Sunday {
		dow = 7
	}

	return model.TimeRow{
		DateKey:    int32(d.Year()*10000 + int(d.Month())*100 + d.Day()),
		FullDate:   d,
		Year:       int16(d.Year()),
		Quarter:    int16((int(d.Month())-1)/3 + 1),
		Month:      int16(d.Month()),
		MonthName:  d.Month().String(),
		Week:       int16(week),
		DayOfMonth: int16(d.Day()),
		DayOfWeek:  dow,
		DayName:    wd.String(),
		IsWeekend:  wd == time.Saturday || wd == time.Sunday,
	}
}

// BuildTime inserts the calendar window around today into dim_time. Days
// already present are left untouched. It returns the number of new rows.
func BuildTime(ctx context.Context, conn db.Conn, log zerolog.Logger, window config.TimeWindow, today time.Time) (int64, error) {
	start := time.Now()
	today = dateOnly(today)
	rows := TimeRows(today.AddDate(0, 0, -window.PastDays), today.AddDate(0, 0, window.FutureDays))

	batch := &pgx.Batch{}
	for i := range rows {
		batch.Queue(embedsql.InsertDimTime, rows[i].Args()...)
	}

	br := conn.SendBatch(ctx, batch)
	var inserted int64
	for i := range rows {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert dim_time %d: %w", rows[i].DateKey, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("insert dim_time: %w", err)
	}

	log.Info().
		Int("days", len(rows)).
		Int64("inserted", inserted).
		Dur("duration", time.Since(start)).
		Msg("dim_time populated")

	return inserted, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
