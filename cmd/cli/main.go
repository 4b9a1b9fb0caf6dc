package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-normalizer/internal/config"
	"github.com/dvloznov/bank-normalizer/internal/csvio"
	"github.com/dvloznov/bank-normalizer/internal/gcsstore"
	infraBQ "github.com/dvloznov/bank-normalizer/internal/infra/bigquery"
	"github.com/dvloznov/bank-normalizer/internal/infra/sqlite"
	"github.com/dvloznov/bank-normalizer/internal/logger"
	"github.com/dvloznov/bank-normalizer/internal/pipeline"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	switch os.Args[1] {
	case "export":
		runExport(log, cfg)
	case "formats":
		runFormats(log)
	case "load":
		runLoad(log, cfg)
	case "inspect":
		runInspect(log, cfg)
	case "gcs-export":
		runGCSExport(log, cfg)
	case "upload":
		runUpload(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Bank Statement Normalizer CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  export      Normalise every CSV under a directory into an output directory")
	fmt.Println("  formats     List the supported input formats")
	fmt.Println("  load        Normalise a directory into SQLite or BigQuery")
	fmt.Println("  inspect     Show the transactions loaded into SQLite for a file")
	fmt.Println("  gcs-export  Normalise CSV objects in a GCS bucket")
	fmt.Println("  upload      Upload a CSV file to GCS")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// csvFlags registers the input decoding flags shared by commands that read CSV.
func csvFlags(fs *flag.FlagSet, cfg config.Config) (*string, *string) {
	encoding := fs.String("encoding", cfg.CSVEncoding, "Input character encoding, e.g. windows-1252 (or set CSV_ENCODING env)")
	comma := fs.String("comma", string(cfg.CSVComma), "Input field delimiter (or set CSV_COMMA env)")
	return encoding, comma
}

func csvOptions(log zerolog.Logger, encoding, comma string) csvio.Options {
	if len([]rune(comma)) != 1 {
		log.Fatal().Str("comma", comma).Msg("Error: -comma must be a single character")
	}
	return csvio.Options{Encoding: encoding, Comma: []rune(comma)[0]}
}

func newExporter(log zerolog.Logger, opts csvio.Options, workers int) *pipeline.Exporter {
	registry, err := schema.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build schema registry")
	}
	return &pipeline.Exporter{
		Registry: registry,
		Logger:   log,
		CSV:      opts,
		Workers:  workers,
	}
}

// signalContext is cancelled on interrupt so in-flight files are aborted cleanly.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	return logger.WithContext(ctx, log), cancel
}

func runExport(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	path := fs.String("path", cfg.InputDir, "Directory of bank CSV files (or set INPUT_DIR env)")
	fs.StringVar(path, "p", cfg.InputDir, "Shorthand for -path")
	output := fs.String("output", cfg.OutputDir, "Output directory (or set OUTPUT_DIR env)")
	fs.StringVar(output, "o", cfg.OutputDir, "Shorthand for -output")
	workers := fs.Int("workers", cfg.Workers, "Concurrent files")
	encoding, comma := csvFlags(fs, cfg)
	fs.Parse(os.Args[2:])

	if *path == "" || *output == "" {
		log.Fatal().Msg("Usage: cli export -path DIR -output DIR")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	e := newExporter(log, csvOptions(log, *encoding, *comma), *workers)
	e.Source = pipeline.DirSource{Root: *path}
	e.Destination = pipeline.DirDestination{Root: *output}

	log.Info().Str("path", *path).Str("output", *output).Msg("Starting export")
	finish(ctx, log, e)
}

func runFormats(log zerolog.Logger) {
	fs := flag.NewFlagSet("formats", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	registry, err := schema.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build schema registry")
	}

	for _, s := range registry.Schemas() {
		fmt.Printf("%-10s %s\n", s.Name(), strings.Join(s.ExpectedRawKeys(), ","))
	}
}

func runLoad(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	path := fs.String("path", cfg.InputDir, "Directory of bank CSV files (or set INPUT_DIR env)")
	fs.StringVar(path, "p", cfg.InputDir, "Shorthand for -path")
	dsn := fs.String("sqlite", cfg.SQLiteDSN, "SQLite database file (or set SQLITE_DSN env)")
	project := fs.String("bq-project", cfg.BQProject, "BigQuery project (or set BQ_PROJECT env)")
	dataset := fs.String("bq-dataset", cfg.BQDataset, "BigQuery dataset (or set BQ_DATASET env)")
	table := fs.String("bq-table", cfg.BQTable, "BigQuery table (or set BQ_TABLE env)")
	workers := fs.Int("workers", cfg.Workers, "Concurrent files")
	encoding, comma := csvFlags(fs, cfg)
	fs.Parse(os.Args[2:])

	if *path == "" || (*dsn == "") == (*project == "") {
		log.Fatal().Msg("Usage: cli load -path DIR (-sqlite FILE | -bq-project PROJECT)")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	e := newExporter(log, csvOptions(log, *encoding, *comma), *workers)
	e.Source = pipeline.DirSource{Root: *path}

	if *dsn != "" {
		store, err := sqlite.Open(ctx, *dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open SQLite database")
		}
		defer store.Close()
		e.Destination = store
		log.Info().Str("path", *path).Str("sqlite", *dsn).Msg("Loading into SQLite")
	} else {
		repo, err := infraBQ.NewRepository(ctx, *project, *dataset, *table)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
		}
		defer repo.Close()
		if err := repo.EnsureTable(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure BigQuery table")
		}
		e.Destination = repo
		log.Info().
			Str("path", *path).
			Str("table", fmt.Sprintf("%s.%s.%s", *project, *dataset, *table)).
			Msg("Loading into BigQuery")
	}

	finish(ctx, log, e)
}

func runInspect(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dsn := fs.String("sqlite", cfg.SQLiteDSN, "SQLite database file (or set SQLITE_DSN env)")
	file := fs.String("file", "", "Source file name as loaded, e.g. bank1.csv")
	fs.Parse(os.Args[2:])

	if *dsn == "" || *file == "" {
		log.Fatal().Msg("Usage: cli inspect -sqlite FILE -file NAME")
	}

	ctx := logger.WithContext(context.Background(), log)

	store, err := sqlite.Open(ctx, *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open SQLite database")
	}
	defer store.Close()

	rows, err := store.ListBySourceFile(ctx, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query transactions")
	}

	fmt.Printf("\n=== Transactions in %s (%d) ===\n", *file, len(rows))
	for _, r := range rows {
		fmt.Printf("\nLine %d\n", r.Line)
		fmt.Printf("   Date:   %s\n", r.Date.Format(schema.CanonicalDateLayout))
		fmt.Printf("   Type:   %s\n", r.Type)
		fmt.Printf("   Amount: %s\n", r.Amount.String())
		fmt.Printf("   From:   %s\n", r.From)
		fmt.Printf("   To:     %s\n", r.To)
	}
	fmt.Println()
}

func runGCSExport(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("gcs-export", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name, or a gs://bucket/prefix URI (or set GCS_BUCKET env)")
	prefix := fs.String("prefix", "", "Object prefix of input files")
	outputPrefix := fs.String("output-prefix", "normalized", "Object prefix for normalised files")
	workers := fs.Int("workers", cfg.Workers, "Concurrent files")
	encoding, comma := csvFlags(fs, cfg)
	fs.Parse(os.Args[2:])

	if strings.HasPrefix(*bucketName, "gs://") {
		b, p, err := gcsstore.ParseURI(*bucketName)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid bucket URI")
		}
		*bucketName = b
		if *prefix == "" {
			*prefix = p
		}
	}
	if *bucketName == "" {
		log.Fatal().Msg("Usage: cli gcs-export -bucket NAME [-prefix P] [-output-prefix O]")
	}
	if strings.Trim(*prefix, "/") == strings.Trim(*outputPrefix, "/") {
		log.Fatal().Msg("Error: -prefix and -output-prefix must differ")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	bucket, err := gcsstore.NewBucket(ctx, *bucketName, *prefix, *outputPrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open bucket")
	}
	defer bucket.Close()

	e := newExporter(log, csvOptions(log, *encoding, *comma), *workers)
	e.Source = bucket
	e.Destination = bucket

	log.Info().
		Str("bucket", *bucketName).
		Str("prefix", *prefix).
		Str("output_prefix", *outputPrefix).
		Msg("Starting GCS export")
	finish(ctx, log, e)
}

func runUpload(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name, or a gs://bucket/prefix URI (or set GCS_BUCKET env)")
	prefix := fs.String("prefix", "", "Object prefix of input files")
	name := fs.String("name", "", "Name under the prefix (defaults to filename)")
	filePath := fs.String("file", "", "Path to local CSV file")
	fs.Parse(os.Args[2:])

	if strings.HasPrefix(*bucketName, "gs://") {
		b, p, err := gcsstore.ParseURI(*bucketName)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid bucket URI")
		}
		*bucketName = b
		if *prefix == "" {
			*prefix = p
		}
	}
	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH [-prefix P] [-name NAME]")
	}
	if *name == "" {
		*name = filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	bucket, err := gcsstore.NewBucket(ctx, *bucketName, *prefix, "")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open bucket")
	}
	defer bucket.Close()

	log.Info().
		Str("bucket", *bucketName).
		Str("prefix", *prefix).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	uri, err := bucket.Upload(ctx, *filePath, *name)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", gcsstore.ExtractFilename(uri), uri)
}

// finish runs ExportAll and reports the outcome. Row errors go to stdout as
// file:line: kind: message; the process exits 1 when any file failed.
func finish(ctx context.Context, log zerolog.Logger, e *pipeline.Exporter) {
	start := time.Now()
	summary, err := e.ExportAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	for _, re := range summary.RowErrors() {
		fmt.Println(re.String())
	}
	for _, f := range summary.Failed() {
		fmt.Printf("%s: %v\n", f.File, f.Err)
	}

	rows, written, rejected := summary.Totals()
	log.Info().
		Int("files", len(summary.Files)).
		Int("failed", len(summary.Failed())).
		Int("rows", rows).
		Int("written", written).
		Int("rejected", rejected).
		Dur("duration", time.Since(start)).
		Msg("Export completed")

	if len(summary.Failed()) > 0 {
		os.Exit(1)
	}
}
