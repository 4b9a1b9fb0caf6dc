package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bank-normalizer/internal/api"
	"github.com/dvloznov/bank-normalizer/internal/config"
	"github.com/dvloznov/bank-normalizer/internal/csvio"
	"github.com/dvloznov/bank-normalizer/internal/jobs/inmemory"
	"github.com/dvloznov/bank-normalizer/internal/logger"
	"github.com/dvloznov/bank-normalizer/internal/pipeline"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = log.Level(logger.ParseLevel(cfg.LogLevel))

	// Parse command-line flags
	var (
		port      = flag.String("port", cfg.APIPort, "HTTP server port (or set API_PORT env)")
		inputDir  = flag.String("input", cfg.InputDir, "Directory of bank CSV files for /api/exports (or set INPUT_DIR env)")
		outputDir = flag.String("output", cfg.OutputDir, "Directory for normalised files (or set OUTPUT_DIR env)")
		workers   = flag.Int("workers", cfg.Workers, "Concurrent export jobs")
	)
	flag.Parse()

	registry, err := schema.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build schema registry")
	}

	exporter := &pipeline.Exporter{
		Registry: registry,
		Logger:   log,
		CSV:      csvio.Options{Encoding: cfg.CSVEncoding, Comma: cfg.CSVComma},
	}

	deps := api.Deps{Exporter: exporter, Logger: log}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithWorkers(*workers))

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	if *inputDir != "" && *outputDir != "" {
		exporter.Source = pipeline.DirSource{Root: *inputDir}
		exporter.Destination = pipeline.DirDestination{Root: *outputDir}
		deps.Publisher = jobQueue
		deps.Store = jobStore

		log.Info().Int("workers", *workers).Msg("Starting export workers")
		if err := jobQueue.Start(workerCtx, exporter.HandleJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to start job consumer")
		}
	} else {
		log.Warn().Msg("No input/output directory configured - exports will be disabled")
	}

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
