package warehouse

import (
	"context"
	"fmt"

	"github.com/gyeh/radwarehouse/internal/db"
	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

// Refresher rebuilds the materialized analytic views.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SQLRefresher refreshes mv_monthly_encounters, mv_diagnosis_by_age_group
// and mv_procedure_volume through refresh_all_warehouse_views().
type SQLRefresher struct {
	Conn db.Conn
}

func (r *SQLRefresher) Refresh(ctx context.Context) error {
	if _, err := r.Conn.Exec(ctx, embedsql.RefreshViews); err != nil {
		return fmt.Errorf("refresh views: %w", err)
	}
	return nil
}
