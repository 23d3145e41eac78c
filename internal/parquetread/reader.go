package parquetread

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/radwarehouse/internal/model"
)

// Reader wraps a parquet GenericReader for streaming ImageRecordRow records.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[model.ImageRecordRow]
}

// Open opens a Parquet file and returns a streaming Reader.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	r := parquet.NewGenericReader[model.ImageRecordRow](pf)
	return &Reader{file: f, reader: r}, nil
}

// NumRows returns the total number of rows in the Parquet file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Read reads up to len(rows) records into the provided slice.
// Returns the number of rows read and io.EOF when done.
func (r *Reader) Read(rows []model.ImageRecordRow) (int, error) {
	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("read parquet rows: %w", err)
	}
	return n, err
}

// ReadN reads at most limit records, stopping early at end of file.
func (r *Reader) ReadN(limit int) ([]model.ImageRecordRow, error) {
	out := make([]model.ImageRecordRow, 0, min(limit, int(r.NumRows())))
	buf := make([]model.ImageRecordRow, 256)
	for len(out) < limit {
		want := min(len(buf), limit-len(out))
		n, err := r.Read(buf[:want])
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

// Schema returns the Parquet schema for validation.
func (r *Reader) Schema() *parquet.Schema {
	return r.reader.Schema()
}

// Close releases all resources.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// WriteFile writes rows to a new Parquet file at path.
func WriteFile(path string, rows []model.ImageRecordRow) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write parquet file: %w", err)
	}
	return nil
}
