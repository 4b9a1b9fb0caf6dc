// Package csvio reads bank statement CSV files into raw records and writes
// canonical records back out as CSV.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// Options controls how input files are decoded.
type Options struct {
	// Encoding is a WHATWG label such as "windows-1252" or "iso-8859-1".
	// Empty means UTF-8.
	Encoding string
	// Comma is the field delimiter. Zero means ','.
	Comma rune
}

// ErrHeader is returned by NewReader when the header row is unusable.
var ErrHeader = errors.New("invalid csv header")

// Row is one data row keyed by header name.
type Row struct {
	Line   int
	Record schema.RawRecord
}

// RowError describes a data row that could not be mapped onto the header.
// The reader stays usable after returning one.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Reader yields rows of a single CSV file.
type Reader struct {
	cr     *csv.Reader
	header []string
}

// NewReader wraps r and consumes the header row.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	dec, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(dec)))
	cr.FieldsPerRecord = -1
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	hdr, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: file is empty", ErrHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("csvio: read header: %w", err)
	}

	header := make([]string, len(hdr))
	seen := make(map[string]bool, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if h == "" {
			return nil, fmt.Errorf("%w: column %d has no name", ErrHeader, i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrHeader, h)
		}
		seen[h] = true
		header[i] = h
	}

	return &Reader{cr: cr, header: header}, nil
}

// Header returns the trimmed column names in file order.
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Next returns the next data row, or io.EOF when the file is exhausted.
// A row with the wrong number of cells is reported as *RowError.
func (r *Reader) Next() (Row, error) {
	rec, err := r.cr.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return Row{}, &RowError{Line: pe.StartLine, Err: pe.Err}
		}
		return Row{}, err
	}

	line, _ := r.cr.FieldPos(0)
	if len(rec) != len(r.header) {
		return Row{}, &RowError{
			Line: line,
			Err:  fmt.Errorf("expected %d cells, got %d", len(r.header), len(rec)),
		}
	}

	raw := make(schema.RawRecord, len(rec))
	for i, v := range rec {
		raw[r.header[i]] = strings.TrimSpace(v)
	}
	return Row{Line: line, Record: raw}, nil
}

// decoder maps an encoding label to a transformer. UTF-8 input is passed
// through untouched so invalid bytes reach the schema checks.
func decoder(label string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return encoding.Nop.NewDecoder(), nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("csvio: unsupported encoding %q: %w", label, err)
	}
	return enc.NewDecoder(), nil
}
