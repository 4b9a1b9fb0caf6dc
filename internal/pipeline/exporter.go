// Package pipeline exports bank statement files into canonical records.
//
// Each input file goes through a fixed sequence of steps: decode the header,
// resolve it to a registered schema, open the destination, transform every
// row and commit. Rows that fail validation are reported and skipped; any
// other failure aborts the file and discards its partial output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-normalizer/internal/csvio"
	"github.com/dvloznov/bank-normalizer/internal/jobs"
	"github.com/dvloznov/bank-normalizer/internal/jobs/inmemory"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// Exporter moves files from a Source into a Destination.
type Exporter struct {
	Registry    *schema.Registry
	Source      Source
	Destination Destination
	Logger      zerolog.Logger
	CSV         csvio.Options

	// Workers bounds concurrent files in ExportAll. Zero means DefaultWorkers.
	Workers int
	// RetryStep is the linear backoff between attempts. Zero means DefaultRetryStep.
	RetryStep time.Duration
	// Store, when set, records the job of every file ExportAll runs.
	Store jobs.JobStore
}

// Normalize runs the export steps over in, writing to dst under name.
// A non-nil error means the file failed as a whole; it is also set on the report.
func (e *Exporter) Normalize(ctx context.Context, name string, in io.Reader, dst Destination) (*FileReport, error) {
	start := time.Now()
	state := &PipelineState{
		Name:   name,
		Input:  in,
		Report: &FileReport{File: name},
	}

	err := NewFileExportPipeline(e.Registry, dst, e.CSV, e.Logger).Execute(ctx, state)
	if err != nil && state.Writer != nil {
		discard(state.Writer)
	}

	rep := state.Report
	rep.Duration = time.Since(start)
	rep.Err = err
	return rep, err
}

// ExportFile opens name from the Source and exports it to the Destination.
func (e *Exporter) ExportFile(ctx context.Context, name string) (*FileReport, error) {
	rc, err := e.Source.Open(ctx, name)
	if err != nil {
		err = fmt.Errorf("open %s: %w", name, err)
		return &FileReport{File: name, Err: err}, err
	}
	defer rc.Close()

	rep, err := e.Normalize(ctx, name, rc, e.Destination)

	log := e.Logger.With().Str("file", name).Logger()
	if err != nil {
		log.Error().Err(err).Msg("export failed")
	} else {
		log.Info().
			Str("format", rep.Format).
			Int("rows", rep.Rows).
			Int("written", rep.Written).
			Int("rejected", rep.Rejected).
			Dur("duration", rep.Duration).
			Msg("export finished")
	}
	return rep, err
}

// RunJob exports the job's file and records the outcome on the job.
// File-level failures that cannot succeed on retry are marked permanent.
func (e *Exporter) RunJob(ctx context.Context, job *jobs.ExportFileJob) (*FileReport, error) {
	rep, err := e.ExportFile(ctx, job.File)

	job.Format = rep.Format
	job.Rows = rep.Rows
	job.Written = rep.Written
	job.Rejected = rep.Rejected

	if err != nil && IsPermanent(err) {
		return rep, jobs.Permanent(err)
	}
	return rep, err
}

// HandleJob adapts RunJob to jobs.JobHandler.
func (e *Exporter) HandleJob(ctx context.Context, job *jobs.ExportFileJob) error {
	_, err := e.RunJob(ctx, job)
	return err
}

// ExportAll exports every file of the Source. Files are independent: one
// failing file does not stop the others. The returned error is non-nil only
// when the run itself could not proceed; see Summary.Err for file failures.
func (e *Exporter) ExportAll(ctx context.Context) (*Summary, error) {
	names, err := e.Source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ExportAll: list source: %w", err)
	}
	if len(names) == 0 {
		return newSummary(nil), nil
	}

	var mu sync.Mutex
	reports := make(map[string]*FileReport, len(names))
	handler := func(ctx context.Context, job *jobs.ExportFileJob) error {
		rep, err := e.RunJob(ctx, job)
		mu.Lock()
		reports[job.JobID] = rep
		mu.Unlock()
		return err
	}

	q := inmemory.NewQueue(len(names), e.Store,
		inmemory.WithWorkers(e.workers()),
		inmemory.WithBackoff(inmemory.LinearBackoff(e.retryStep())),
	)
	defer q.Close()

	if err := q.Start(ctx, handler); err != nil {
		return nil, fmt.Errorf("ExportAll: start queue: %w", err)
	}

	batchID := uuid.New().String()
	ids := make(map[string]string, len(names))
	for _, name := range names {
		job := &jobs.ExportFileJob{JobID: uuid.New().String(), BatchID: batchID, File: name}
		ids[job.JobID] = name
		if err := q.Publish(ctx, job); err != nil {
			return nil, fmt.Errorf("ExportAll: publish %s: %w", name, err)
		}
	}

	if err := q.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ExportAll: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]*FileReport, 0, len(names))
	for id, name := range ids {
		rep, ok := reports[id]
		if !ok {
			err := errors.New("not processed")
			rep = &FileReport{File: name, Err: err}
		}
		out = append(out, rep)
	}
	return newSummary(out), nil
}

func (e *Exporter) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return DefaultWorkers
}

func (e *Exporter) retryStep() time.Duration {
	if e.RetryStep > 0 {
		return e.RetryStep
	}
	return DefaultRetryStep
}

// IsPermanent reports whether a file-level error will recur on retry:
// unknown formats and unusable headers.
func IsPermanent(err error) bool {
	return errors.Is(err, schema.ErrUnknownFormat) || errors.Is(err, csvio.ErrHeader)
}

func discard(w RecordWriter) {
	if a, ok := w.(Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
}
