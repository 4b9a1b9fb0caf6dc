package pipeline

import (
	"context"
	"io"

	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// Source provides input files by name.
type Source interface {
	// List returns the names of all input files, sorted.
	List(ctx context.Context) ([]string, error)

	// Open returns a reader for the named file.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Destination accepts normalised output, one writer per input file.
type Destination interface {
	// Create prepares output for the named input file. columns is the
	// canonical column order of every record that will be written.
	Create(ctx context.Context, name string, columns []string) (RecordWriter, error)
}

// RecordWriter receives the canonical records of one input file.
// Nothing is guaranteed to be visible before Close returns nil.
type RecordWriter interface {
	// Write stores one record; line is its line number in the input file.
	Write(ctx context.Context, line int, rec schema.CanonicalRecord) error

	// Close commits the output.
	Close() error
}

// Aborter is implemented by writers that can discard partial output.
// The exporter calls Abort instead of Close when a file fails.
type Aborter interface {
	Abort() error
}
