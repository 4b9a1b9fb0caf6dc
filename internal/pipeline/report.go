package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/bank-normalizer/internal/csvio"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// RowError is a rejected data row. The rest of the file is still exported.
type RowError struct {
	File    string      `json:"file"`
	Line    int         `json:"line"`
	Kind    schema.Kind `json:"kind"`
	Field   string      `json:"field,omitempty"`
	Column  string      `json:"column,omitempty"`
	Value   string      `json:"value,omitempty"`
	Message string      `json:"message"`
}

// String formats the error as "file:line: kind: message".
func (e RowError) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", e.File, e.Line, e.Kind, e.Message)
}

func newRowError(file string, line int, err error) RowError {
	re := RowError{File: file, Line: line, Message: err.Error()}

	var fe *schema.FieldError
	var ce *csvio.RowError
	switch {
	case errors.As(err, &fe):
		re.Kind = fe.Kind
		re.Field = fe.Field
		re.Column = fe.Column
		re.Value = fe.Value
	case errors.As(err, &ce):
		re.Kind = KindMalformedRow
		re.Line = ce.Line
		re.Message = ce.Err.Error()
	}
	return re
}

// FileReport is the outcome of exporting one input file.
type FileReport struct {
	File     string        `json:"file"`
	Format   string        `json:"format,omitempty"`
	Rows     int           `json:"rows"`
	Written  int           `json:"written"`
	Rejected int           `json:"rejected"`
	Errors   []RowError    `json:"errors,omitempty"`
	Duration time.Duration `json:"duration"`

	// Err is the file-level failure, if any. Nothing from the file is
	// committed when it is set.
	Err error `json:"-"`
}

// Failed reports whether the file as a whole failed.
func (r *FileReport) Failed() bool {
	return r.Err != nil
}

func (r *FileReport) reject(re RowError) {
	r.Rejected++
	r.Errors = append(r.Errors, re)
}

// Summary collects the reports of an export run, ordered by file name.
type Summary struct {
	Files []*FileReport
}

func newSummary(reports []*FileReport) *Summary {
	sort.Slice(reports, func(i, j int) bool { return reports[i].File < reports[j].File })
	return &Summary{Files: reports}
}

// Failed returns the reports of files that failed as a whole.
func (s *Summary) Failed() []*FileReport {
	var out []*FileReport
	for _, f := range s.Files {
		if f.Failed() {
			out = append(out, f)
		}
	}
	return out
}

// RowErrors returns every rejected row across all files.
func (s *Summary) RowErrors() []RowError {
	var out []RowError
	for _, f := range s.Files {
		out = append(out, f.Errors...)
	}
	return out
}

// Totals returns row counts summed over all files.
func (s *Summary) Totals() (rows, written, rejected int) {
	for _, f := range s.Files {
		rows += f.Rows
		written += f.Written
		rejected += f.Rejected
	}
	return rows, written, rejected
}

// Err joins the file-level failures, or returns nil.
func (s *Summary) Err() error {
	failed := s.Failed()
	if len(failed) == 0 {
		return nil
	}
	msgs := make([]string, len(failed))
	for i, f := range failed {
		msgs[i] = fmt.Sprintf("%s: %v", f.File, f.Err)
	}
	return fmt.Errorf("%d of %d files failed: %s", len(failed), len(s.Files), strings.Join(msgs, "; "))
}
