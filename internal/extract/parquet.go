package extract

import (
	"context"
	"fmt"

	"github.com/gyeh/radwarehouse/internal/model"
	"github.com/gyeh/radwarehouse/internal/parquetread"
)

// ParquetSource reads records from a local Parquet export.
type ParquetSource struct {
	Path string
}

func (s *ParquetSource) Name() string { return "parquet:" + s.Path }

func (s *ParquetSource) Fetch(ctx context.Context, n int) ([]model.SourceRecord, error) {
	reader, err := parquetread.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if err := parquetread.ValidateSchema(reader.Schema()); err != nil {
		return nil, fmt.Errorf("validate %s: %w", s.Path, err)
	}

	rows, err := reader.ReadN(n)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]model.SourceRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].Record()
	}
	return records, nil
}
