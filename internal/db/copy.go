package db

import (
	"github.com/jackc/pgx/v5"
)

// CopyRow is implemented by model types that can be bulk-loaded with COPY.
type CopyRow interface {
	CopyValues() []any
}

// SliceSource implements pgx.CopyFromSource over an in-memory slice of rows.
type SliceSource[T CopyRow] struct {
	rows []T
	idx  int
}

// NewSliceSource creates a CopyFromSource backed by rows.
func NewSliceSource[T CopyRow](rows []T) *SliceSource[T] {
	return &SliceSource[T]{rows: rows, idx: -1}
}

// Next advances to the next row. Returns false once the slice is exhausted.
func (s *SliceSource[T]) Next() bool {
	s.idx++
	return s.idx < len(s.rows)
}

// Values returns the current row's values in COPY column order.
func (s *SliceSource[T]) Values() ([]any, error) {
	return s.rows[s.idx].CopyValues(), nil
}

// Err always returns nil; the slice cannot fail mid-iteration.
func (s *SliceSource[T]) Err() error {
	return nil
}

var _ pgx.CopyFromSource = (*SliceSource[CopyRow])(nil)
