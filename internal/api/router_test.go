package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-normalizer/internal/jobs"
	"github.com/dvloznov/bank-normalizer/internal/jobs/inmemory"
	"github.com/dvloznov/bank-normalizer/internal/pipeline"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

const bank1CSV = "timestamp,type,amount,from,to\n" +
	"Jan 05 2020,add,100,A,B\n" +
	"Jan 06 2020,remove,1O0,B,A\n"

type testServer struct {
	handler http.Handler
	store   *inmemory.Store
	queue   *inmemory.Queue
	outDir  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	reg, err := schema.Default()
	require.NoError(t, err)

	inDir, outDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "bank1.csv"), []byte(bank1CSV), 0o644))

	exporter := &pipeline.Exporter{
		Registry:    reg,
		Source:      pipeline.DirSource{Root: inDir},
		Destination: pipeline.DirDestination{Root: outDir},
		Logger:      zerolog.Nop(),
	}

	store := inmemory.NewStore()
	queue := inmemory.NewQueue(10, store, inmemory.WithWorkers(1), inmemory.WithBackoff(inmemory.LinearBackoff(time.Millisecond)))
	require.NoError(t, queue.Start(context.Background(), exporter.HandleJob))
	t.Cleanup(func() { _ = queue.Close() })

	return &testServer{
		handler: NewRouter(Deps{Exporter: exporter, Publisher: queue, Store: store, Logger: zerolog.Nop()}),
		store:   store,
		queue:   queue,
		outDir:  outDir,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestNormalize_JSON(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/normalize?filename=jan.csv", strings.NewReader(bank1CSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "jan.csv", body["file"])
	assert.Equal(t, schema.FormatBank1, body["format"])
	assert.Equal(t, float64(2), body["rows"])
	assert.Equal(t, float64(1), body["written"])
	assert.Equal(t, float64(1), body["rejected"])

	records := body["records"].([]any)
	require.Len(t, records, 1)
	first := records[0].(map[string]any)
	assert.Equal(t, "05-01-2020", first[schema.ColumnDate])
	assert.Equal(t, "A", first[schema.ColumnFrom])

	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, string(schema.KindTypeMismatch), errs[0].(map[string]any)["kind"])
}

func TestNormalize_JSONMoneyAmountIsNumber(t *testing.T) {
	s := newTestServer(t)
	body := "date_readable,type,euro,cents,from,to\n" +
		"5 Jan 2020,remove,12,50,A,B\n"
	rec := s.do(t, http.MethodPost, "/api/normalize", strings.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode(t, rec)
	assert.Equal(t, schema.FormatBank3, resp["format"])
	records := resp["records"].([]any)
	require.Len(t, records, 1)
	first := records[0].(map[string]any)
	assert.Equal(t, 12.5, first[schema.ColumnAmount])
	assert.Equal(t, "05-01-2020", first[schema.ColumnDate])
	assert.Contains(t, rec.Body.String(), `"amount":12.5`)
}

func TestNormalize_CSV(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/normalize?output=csv", strings.NewReader(bank1CSV))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(schema.CanonicalColumns, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "05-01-2020,"))
	assert.Equal(t, "1", rec.Result().Trailer.Get("X-Rejected-Rows"))
}

func TestNormalize_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/normalize", strings.NewReader("a,b\n1,2\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, string(schema.KindUnknownFormat), body["kind"])
	assert.Equal(t, []any{"a", "b"}, body["columns"])

	rec = s.do(t, http.MethodPost, "/api/normalize", strings.NewReader(""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/normalize", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFormats(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/formats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	formats := body["formats"].([]any)
	require.NotEmpty(t, formats)
	assert.Equal(t, schema.FormatBank1, formats[0].(map[string]any)["name"])
}

func TestExportsAndJobs(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/exports", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	batchID := body["batch_id"].(string)
	queued := body["jobs"].([]any)
	require.Len(t, queued, 1)
	jobID := queued[0].(map[string]any)["job_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.queue.Wait(ctx))

	rec = s.do(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode(t, rec)
	assert.Equal(t, string(jobs.JobStatusCompleted), job["status"])
	assert.Equal(t, batchID, job["batch_id"])
	assert.Equal(t, float64(1), job["written"])

	_, err := os.Stat(filepath.Join(s.outDir, "bank1.csv"))
	assert.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/api/jobs?batch_id="+batchID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = s.do(t, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExports_UnknownFile(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/exports", strings.NewReader(`{"files":["nope.csv"]}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
