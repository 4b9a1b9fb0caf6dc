package csvio

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// Writer emits canonical records in a fixed column order.
type Writer struct {
	cw      *csv.Writer
	columns []string
}

// NewWriter writes the header row for columns and returns a Writer.
func NewWriter(w io.Writer, columns []string) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return nil, fmt.Errorf("csvio: write header: %w", err)
	}
	return &Writer{cw: cw, columns: append([]string(nil), columns...)}, nil
}

// Write appends one record. Columns absent from rec are written empty.
func (w *Writer) Write(rec schema.CanonicalRecord) error {
	row := make([]string, len(w.columns))
	for i, name := range w.columns {
		if v, ok := rec.Get(name); ok {
			row[i] = FormatValue(v)
		}
	}
	if err := w.cw.Write(row); err != nil {
		return fmt.Errorf("csvio: write row: %w", err)
	}
	return nil
}

// Close flushes buffered rows. It does not close the underlying writer.
func (w *Writer) Close() error {
	w.cw.Flush()
	return w.cw.Error()
}

// FormatValue renders a canonical value as CSV cell text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		// Shortest form: 12.00 is written as 12.
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
