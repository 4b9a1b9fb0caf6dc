package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-normalizer/internal/csvio"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// PipelineStep represents a single step of exporting one file.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Name   string
	Input  io.Reader
	Reader *csvio.Reader
	Schema *schema.Schema
	Writer RecordWriter
	Report *FileReport
}

// Step 1: ReadHeaderStep decodes the input and reads its header row.
type ReadHeaderStep struct {
	Options csvio.Options
}

func (s *ReadHeaderStep) Execute(ctx context.Context, state *PipelineState) error {
	r, err := csvio.NewReader(state.Input, s.Options)
	if err != nil {
		return err
	}
	state.Reader = r
	return nil
}

// Step 2: ResolveFormatStep picks the schema matching the header.
type ResolveFormatStep struct {
	Registry *schema.Registry
}

func (s *ResolveFormatStep) Execute(ctx context.Context, state *PipelineState) error {
	sc, err := s.Registry.Resolve(state.Reader.Header())
	if err != nil {
		return err
	}
	state.Schema = sc
	state.Report.Format = sc.Name()
	return nil
}

// Step 3: CreateOutputStep opens the destination for this file.
type CreateOutputStep struct {
	Destination Destination
}

func (s *CreateOutputStep) Execute(ctx context.Context, state *PipelineState) error {
	w, err := s.Destination.Create(ctx, state.Name, state.Schema.Columns())
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	state.Writer = w
	return nil
}

// Step 4: TransformRowsStep normalises every data row. Rejected rows are
// recorded on the report and skipped.
type TransformRowsStep struct {
	Logger zerolog.Logger
}

func (s *TransformRowsStep) Execute(ctx context.Context, state *PipelineState) error {
	rep := state.Report
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := state.Reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var ce *csvio.RowError
			if !errors.As(err, &ce) {
				return fmt.Errorf("read row: %w", err)
			}
			rep.Rows++
			s.reject(rep, newRowError(state.Name, ce.Line, err))
			continue
		}
		rep.Rows++

		rec, err := state.Schema.Transform(row.Record)
		if err != nil {
			s.reject(rep, newRowError(state.Name, row.Line, err))
			continue
		}

		if err := state.Writer.Write(ctx, row.Line, rec); err != nil {
			return fmt.Errorf("write line %d: %w", row.Line, err)
		}
		rep.Written++
	}
}

func (s *TransformRowsStep) reject(rep *FileReport, re RowError) {
	rep.reject(re)
	s.Logger.Warn().
		Str("file", re.File).
		Int("line", re.Line).
		Str("kind", string(re.Kind)).
		Str("field", re.Field).
		Msg(re.Message)
}

// Step 5: CommitStep closes the destination writer.
type CommitStep struct{}

func (s *CommitStep) Execute(ctx context.Context, state *PipelineState) error {
	w := state.Writer
	state.Writer = nil
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit output: %w", err)
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewFileExportPipeline creates the standard 5-step pipeline for one file.
func NewFileExportPipeline(reg *schema.Registry, dst Destination, opts csvio.Options, log zerolog.Logger) *Pipeline {
	return NewPipeline(
		&ReadHeaderStep{Options: opts},
		&ResolveFormatStep{Registry: reg},
		&CreateOutputStep{Destination: dst},
		&TransformRowsStep{Logger: log},
		&CommitStep{},
	)
}
