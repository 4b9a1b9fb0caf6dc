package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-normalizer/internal/api/middleware"
	"github.com/dvloznov/bank-normalizer/internal/csvio"
	"github.com/dvloznov/bank-normalizer/internal/jobs"
	"github.com/dvloznov/bank-normalizer/internal/logger"
	"github.com/dvloznov/bank-normalizer/internal/pipeline"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// MaxUploadBytes bounds the size of a CSV body accepted by Normalize.
const MaxUploadBytes = 10 << 20

// NormalizeHandler normalises a CSV request body in memory.
type NormalizeHandler struct {
	exporter *pipeline.Exporter
}

// NewNormalizeHandler creates a normalize handler. Only the exporter's
// Registry, CSV options and Logger are used.
func NewNormalizeHandler(exporter *pipeline.Exporter) *NormalizeHandler {
	return &NormalizeHandler{exporter: exporter}
}

type normalizeResponse struct {
	File     string              `json:"file"`
	Format   string              `json:"format"`
	Columns  []string            `json:"columns"`
	Records  []map[string]any    `json:"records"`
	Errors   []pipeline.RowError `json:"errors"`
	Rows     int                 `json:"rows"`
	Written  int                 `json:"written"`
	Rejected int                 `json:"rejected"`
}

// Normalize handles POST /api/normalize
//
// The body is a bank CSV file. The response is JSON unless ?output=csv.
// ?filename= names the file in row errors.
func (h *NormalizeHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	name := path.Base(r.URL.Query().Get("filename"))
	if name == "." || name == "/" {
		name = "upload.csv"
	}
	body := http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	if r.URL.Query().Get("output") == "csv" {
		h.normalizeCSV(ctx, w, name, body, log)
		return
	}

	out := pipeline.NewCollector()
	rep, err := h.exporter.Normalize(ctx, name, body, out)
	if err != nil {
		writeNormalizeError(w, err, log)
		return
	}

	records := out.Records(name)
	resp := normalizeResponse{
		File:     name,
		Format:   rep.Format,
		Columns:  out.Columns(name),
		Records:  make([]map[string]any, len(records)),
		Errors:   rep.Errors,
		Rows:     rep.Rows,
		Written:  rep.Written,
		Rejected: rep.Rejected,
	}
	for i, rec := range records {
		resp.Records[i] = jsonRecord(rec)
	}
	if resp.Errors == nil {
		resp.Errors = []pipeline.RowError{}
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// jsonRecord converts a canonical record for a JSON response. Decimal
// amounts are emitted as JSON numbers; text columns stay strings.
func jsonRecord(rec schema.CanonicalRecord) map[string]any {
	m := rec.Map()
	for k, v := range m {
		if d, ok := v.(decimal.Decimal); ok {
			m[k] = json.Number(d.String())
		}
	}
	return m
}

func (h *NormalizeHandler) normalizeCSV(ctx context.Context, w http.ResponseWriter, name string, body io.Reader, log zerolog.Logger) {
	dst := &csvResponse{w: w}
	rep, err := h.exporter.Normalize(ctx, name, body, dst)
	if err != nil {
		if !dst.started {
			writeNormalizeError(w, err, log)
			return
		}
		log.Error().Err(err).Str("file", name).Msg("Normalize failed mid-stream")
		return
	}
	w.Header().Set("X-Rejected-Rows", strconv.Itoa(rep.Rejected))
}

// csvResponse streams normalised CSV into the response once the format is known.
type csvResponse struct {
	w       http.ResponseWriter
	started bool
}

func (c *csvResponse) Create(ctx context.Context, name string, columns []string) (pipeline.RecordWriter, error) {
	c.started = true
	h := c.w.Header()
	h.Set("Content-Type", "text/csv; charset=utf-8")
	h.Set("Trailer", "X-Rejected-Rows")
	c.w.WriteHeader(http.StatusOK)
	return pipeline.StreamDestination{W: c.w}.Create(ctx, name, columns)
}

func writeNormalizeError(w http.ResponseWriter, err error, log zerolog.Logger) {
	var ue *schema.UnknownFormatError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &ue):
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   ue.Error(),
			"kind":    schema.KindUnknownFormat,
			"columns": ue.Columns,
		})
	case errors.As(err, &mbe):
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, csvio.ErrHeader):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Failed to normalize upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to normalize file")
	}
}

// FormatsHandler lists registered schemas.
type FormatsHandler struct {
	registry *schema.Registry
}

// NewFormatsHandler creates a new formats handler.
func NewFormatsHandler(registry *schema.Registry) *FormatsHandler {
	return &FormatsHandler{registry: registry}
}

type formatInfo struct {
	Name       string   `json:"name"`
	RawColumns []string `json:"raw_columns"`
	Columns    []string `json:"columns"`
}

// ListFormats handles GET /api/formats
func (h *FormatsHandler) ListFormats(w http.ResponseWriter, r *http.Request) {
	schemas := h.registry.Schemas()
	formats := make([]formatInfo, len(schemas))
	for i, s := range schemas {
		formats[i] = formatInfo{Name: s.Name(), RawColumns: s.ExpectedRawKeys(), Columns: s.Columns()}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"formats": formats,
		"count":   len(formats),
	})
}

// ExportsHandler enqueues export jobs for files of a source.
type ExportsHandler struct {
	source    pipeline.Source
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(source pipeline.Source, publisher jobs.Publisher, log zerolog.Logger) *ExportsHandler {
	return &ExportsHandler{source: source, publisher: publisher, log: log}
}

// CreateExport handles POST /api/exports
//
// An optional body {"files": [...]} limits the export; by default every
// file of the source is exported.
func (h *ExportsHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	available, err := h.source.List(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list input files")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list input files")
		return
	}

	files := available
	if len(req.Files) > 0 {
		known := make(map[string]bool, len(available))
		for _, f := range available {
			known[f] = true
		}
		for _, f := range req.Files {
			if !known[f] {
				middleware.WriteError(w, http.StatusNotFound, "Unknown input file: "+f)
				return
			}
		}
		files = req.Files
	}
	if len(files) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "No input files to export")
		return
	}

	batchID := uuid.NewString()
	type queued struct {
		JobID string `json:"job_id"`
		File  string `json:"file"`
	}
	out := make([]queued, 0, len(files))
	for _, f := range files {
		job := &jobs.ExportFileJob{BatchID: batchID, File: f}
		if err := h.publisher.Publish(ctx, job); err != nil {
			h.log.Error().Err(err).Str("file", f).Msg("Failed to enqueue export job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue export job")
			return
		}
		out = append(out, queued{JobID: job.JobID, File: f})
	}

	h.log.Info().Str("batch_id", batchID).Int("files", len(out)).Msg("Export enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"batch_id": batchID,
		"jobs":     out,
		"count":    len(out),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		BatchID: query.Get("batch_id"),
		File:    query.Get("file"),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
