// Package config reads process settings from the environment.
//
// Values only seed flag defaults in the commands; an explicit flag always wins.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/joho/godotenv"
)

// Config holds environment-provided settings.
type Config struct {
	LogLevel string

	InputDir  string
	OutputDir string
	Workers   int

	CSVEncoding string
	CSVComma    rune

	GCSBucket string

	BQProject string
	BQDataset string
	BQTable   string

	SQLiteDSN string

	APIPort string
}

// Defaults used when the environment is silent.
const (
	DefaultWorkers   = 4
	DefaultBQDataset = "finance"
	DefaultBQTable   = "normalized_transactions"
	DefaultAPIPort   = "8080"
)

// Load reads an optional .env file from the working directory and then the
// process environment. Variables already set in the environment are not
// overridden by the file.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an error.
func LoadFile(path string) (Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		LogLevel:    getenv("LOG_LEVEL"),
		InputDir:    getenv("INPUT_DIR"),
		OutputDir:   getenv("OUTPUT_DIR"),
		Workers:     DefaultWorkers,
		CSVEncoding: getenv("CSV_ENCODING"),
		CSVComma:    ',',
		GCSBucket:   getenv("GCS_BUCKET"),
		BQProject:   getenv("BQ_PROJECT"),
		BQDataset:   orDefault(getenv("BQ_DATASET"), DefaultBQDataset),
		BQTable:     orDefault(getenv("BQ_TABLE"), DefaultBQTable),
		SQLiteDSN:   getenv("SQLITE_DSN"),
		APIPort:     orDefault(getenv("API_PORT"), DefaultAPIPort),
	}

	if v := getenv("EXPORT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("config: EXPORT_WORKERS must be a positive integer, got %q", v)
		}
		cfg.Workers = n
	}

	if v := getenv("CSV_COMMA"); v != "" {
		r, size := utf8.DecodeRuneInString(v)
		if size != len(v) || r == utf8.RuneError {
			return Config{}, fmt.Errorf("config: CSV_COMMA must be a single character, got %q", v)
		}
		cfg.CSVComma = r
	}

	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
