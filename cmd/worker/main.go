package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-normalizer/internal/config"
	"github.com/dvloznov/bank-normalizer/internal/csvio"
	"github.com/dvloznov/bank-normalizer/internal/jobs"
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

	var (
		inputDir  = flag.String("input", cfg.InputDir, "Directory to watch for bank CSV files (or set INPUT_DIR env)")
		outputDir = flag.String("output", cfg.OutputDir, "Directory for normalised files (or set OUTPUT_DIR env)")
		workers   = flag.Int("workers", cfg.Workers, "Concurrent export jobs")
		interval  = flag.Duration("interval", 10*time.Second, "How often to scan the input directory")
	)
	flag.Parse()

	if *inputDir == "" || *outputDir == "" {
		log.Fatal().Msg("Usage: worker -input DIR -output DIR")
	}

	registry, err := schema.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build schema registry")
	}

	exporter := &pipeline.Exporter{
		Registry:    registry,
		Source:      pipeline.DirSource{Root: *inputDir},
		Destination: pipeline.DirDestination{Root: *outputDir},
		Logger:      log,
		CSV:         csvio.Options{Encoding: cfg.CSVEncoding, Comma: cfg.CSVComma},
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithWorkers(*workers))

	log.Info().Str("input", *inputDir).Str("output", *outputDir).Msg("Starting worker service")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := jobQueue.Start(ctx, exporter.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		watch(ctx, log, exporter.Source, jobQueue, *interval)
	}()

	log.Info().Dur("interval", *interval).Msg("Worker service started, watching for files...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

// watch publishes one export job for every file that appears in src. A file
// is exported once per process lifetime.
func watch(ctx context.Context, log zerolog.Logger, src pipeline.Source, pub jobs.Publisher, interval time.Duration) {
	seen := make(map[string]bool)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		names, err := src.List(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list input files")
		}
		for _, name := range names {
			if seen[name] {
				continue
			}
			job := &jobs.ExportFileJob{File: name}
			if err := pub.Publish(ctx, job); err != nil {
				log.Error().Err(err).Str("file", name).Msg("Failed to enqueue export job")
				continue
			}
			seen[name] = true
			log.Info().Str("job_id", job.JobID).Str("file", name).Msg("Export job enqueued")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
