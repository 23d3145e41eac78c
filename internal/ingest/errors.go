package ingest

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Phase names carried by PipelineError.
const (
	PhasePreflight = "preflight"
	PhaseExtract   = "extract"
	PhaseStage     = "stage"
	PhasePromote   = "promote"
	PhaseWarehouse = "warehouse"
	PhaseRefresh   = "refresh"
)

// isRowError reports whether err is confined to the statement that raised
// it, so the row can be rolled back to its savepoint and skipped. Errors
// that are not from the server, and server errors in the connection,
// resource and operator classes, abort the run.
func isRowError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if len(pgErr.Code) < 2 {
		return true
	}
	switch pgErr.Code[:2] {
	case "08", "53", "57", "58":
		return false
	}
	return true
}
