package pipeline

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/bank-normalizer/internal/csvio"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// DirSource lists the .csv files below a directory, recursively.
// Names are slash-separated and relative to Root.
type DirSource struct {
	Root string
}

// List implements Source.
func (d DirSource) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), InputExtension) {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("DirSource.List: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Open implements Source.
func (d DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(d.Root, filepath.FromSlash(name)))
}

// DirDestination writes one CSV file per input file under Root, keeping the
// input's relative name.
type DirDestination struct {
	Root string
}

// Create implements Destination. Output goes to a temporary file that is
// renamed into place on Close.
func (d DirDestination) Create(ctx context.Context, name string, columns []string) (RecordWriter, error) {
	target := filepath.Join(d.Root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("DirDestination.Create: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return nil, fmt.Errorf("DirDestination.Create: %w", err)
	}

	cw, err := csvio.NewWriter(f, columns)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &fileWriter{f: f, cw: cw, target: target}, nil
}

type fileWriter struct {
	f      *os.File
	cw     *csvio.Writer
	target string
}

func (w *fileWriter) Write(ctx context.Context, line int, rec schema.CanonicalRecord) error {
	return w.cw.Write(rec)
}

func (w *fileWriter) Close() error {
	if err := w.cw.Close(); err != nil {
		w.Abort()
		return err
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())
		return err
	}
	return os.Rename(w.f.Name(), w.target)
}

func (w *fileWriter) Abort() error {
	w.f.Close()
	return os.Remove(w.f.Name())
}

// StreamDestination writes a single CSV stream, e.g. an HTTP response body.
// Only one writer may be created from it.
type StreamDestination struct {
	W io.Writer
}

// Create implements Destination.
func (d StreamDestination) Create(ctx context.Context, name string, columns []string) (RecordWriter, error) {
	cw, err := csvio.NewWriter(d.W, columns)
	if err != nil {
		return nil, err
	}
	return streamWriter{cw: cw}, nil
}

type streamWriter struct {
	cw *csvio.Writer
}

func (w streamWriter) Write(ctx context.Context, line int, rec schema.CanonicalRecord) error {
	return w.cw.Write(rec)
}

func (w streamWriter) Close() error { return w.cw.Close() }

// Collector is an in-memory Destination. It keeps committed records per file.
type Collector struct {
	mu      sync.Mutex
	columns map[string][]string
	records map[string][]schema.CanonicalRecord
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		columns: make(map[string][]string),
		records: make(map[string][]schema.CanonicalRecord),
	}
}

// Create implements Destination.
func (c *Collector) Create(ctx context.Context, name string, columns []string) (RecordWriter, error) {
	return &collectorWriter{c: c, name: name, columns: append([]string(nil), columns...)}, nil
}

// Columns returns the column order committed for name.
func (c *Collector) Columns(name string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.columns[name]
}

// Records returns the records committed for name.
func (c *Collector) Records(name string) []schema.CanonicalRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[name]
}

type collectorWriter struct {
	c       *Collector
	name    string
	columns []string
	buf     []schema.CanonicalRecord
}

func (w *collectorWriter) Write(ctx context.Context, line int, rec schema.CanonicalRecord) error {
	w.buf = append(w.buf, rec)
	return nil
}

func (w *collectorWriter) Close() error {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	w.c.columns[w.name] = w.columns
	w.c.records[w.name] = w.buf
	return nil
}

func (w *collectorWriter) Abort() error {
	w.buf = nil
	return nil
}
