package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/db"
	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

// Finalize refreshes planner statistics on the warehouse tables.
func Finalize(ctx context.Context, conn db.Conn, log zerolog.Logger) (time.Duration, error) {
	start := time.Now()

	if _, err := conn.Exec(ctx, embedsql.AnalyzeWarehouse); err != nil {
		return 0, fmt.Errorf("analyze warehouse: %w", err)
	}
	log.Info().Msg("ANALYZE complete")

	return time.Since(start), nil
}
