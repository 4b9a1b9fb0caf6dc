// Package api assembles the HTTP surface of the normaliser.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-normalizer/internal/api/handlers"
	"github.com/dvloznov/bank-normalizer/internal/api/middleware"
	"github.com/dvloznov/bank-normalizer/internal/jobs"
	"github.com/dvloznov/bank-normalizer/internal/pipeline"
)

// Deps are the collaborators the router needs. Publisher and Store may be
// nil, in which case the export and job endpoints are not registered.
type Deps struct {
	Exporter  *pipeline.Exporter
	Publisher jobs.Publisher
	Store     jobs.JobStore
	Logger    zerolog.Logger
}

// NewRouter returns the API handler with middleware applied.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	mux := http.NewServeMux()

	normalizeHandler := handlers.NewNormalizeHandler(d.Exporter)
	formatsHandler := handlers.NewFormatsHandler(d.Exporter.Registry)

	mux.HandleFunc("/api/normalize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			normalizeHandler.Normalize(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/formats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			formatsHandler.ListFormats(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	if d.Publisher != nil && d.Exporter.Source != nil {
		exportsHandler := handlers.NewExportsHandler(d.Exporter.Source, d.Publisher, log)
		mux.HandleFunc("/api/exports", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				exportsHandler.CreateExport(w, r)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})
	}

	if d.Store != nil {
		jobsHandler := handlers.NewJobsHandler(d.Store, log)

		mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				jobsHandler.ListJobs(w, r)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})

		mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				// Extract job ID from path
				jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
				if jobID == "" {
					middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
					return
				}
				jobsHandler.GetJob(w, r, jobID)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)
}
