// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/categorize"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
)

// Config holds every setting of the service.
type Config struct {
	StorageBackend string
	DatabaseURL    string
	SQLitePath     string
	BQProject      string
	BQDataset      string

	IMAPAddr     string
	IMAPUser     string
	IMAPPassword string
	IMAPMailbox  string

	GCSBucket      string
	AcquireTimeout time.Duration

	GeminiEnabled bool
	GeminiModel   string

	LogLevel  string
	LogFormat string
	HTTPPort  string

	QueueWorkers  int
	QueueBuffer   int
	JobMaxRetries int
	HistoryYears  int
}

// Defaults returns the configuration used for unset keys.
func Defaults() Config {
	return Config{
		StorageBackend: BackendSQLite,
		SQLitePath:     "reconciler.db",
		BQDataset:      "finance",
		IMAPMailbox:    "INBOX",
		AcquireTimeout: 60 * time.Second,
		GeminiModel:    categorize.DefaultModelName,
		LogLevel:       "info",
		LogFormat:      "console",
		HTTPPort:       "8080",
		QueueWorkers:   2,
		QueueBuffer:    64,
		JobMaxRetries:  3,
		HistoryYears:   3,
	}
}

// Load reads the configuration through getenv, usually os.Getenv. Unset keys
// keep their defaults; malformed numbers, durations and booleans are errors.
func Load(getenv func(string) string) (Config, error) {
	cfg := Defaults()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	duration := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	boolean := func(key string, dst *bool) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	str("STORAGE_BACKEND", &cfg.StorageBackend)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("SQLITE_PATH", &cfg.SQLitePath)
	str("BQ_PROJECT", &cfg.BQProject)
	str("BQ_DATASET", &cfg.BQDataset)
	str("IMAP_ADDR", &cfg.IMAPAddr)
	str("IMAP_USER", &cfg.IMAPUser)
	cfg.IMAPPassword = getenv("IMAP_PASSWORD")
	str("IMAP_MAILBOX", &cfg.IMAPMailbox)
	str("GCS_BUCKET", &cfg.GCSBucket)
	duration("ACQUIRE_TIMEOUT", &cfg.AcquireTimeout)
	boolean("GEMINI_ENABLED", &cfg.GeminiEnabled)
	str("GEMINI_MODEL", &cfg.GeminiModel)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("HTTP_PORT", &cfg.HTTPPort)
	integer("QUEUE_WORKERS", &cfg.QueueWorkers)
	integer("QUEUE_BUFFER", &cfg.QueueBuffer)
	integer("JOB_MAX_RETRIES", &cfg.JobMaxRetries)
	integer("HISTORY_YEARS", &cfg.HistoryYears)

	cfg.StorageBackend = strings.ToLower(cfg.StorageBackend)
	return cfg, errors.Join(errs...)
}

// Validate rejects a backend without its connection settings and
// out-of-range numbers.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendBigQuery:
		if c.BQProject == "" || c.BQDataset == "" {
			errs = append(errs, errors.New("BQ_PROJECT and BQ_DATASET are required for the bigquery backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.IMAPAddr != "" && c.IMAPUser == "" {
		errs = append(errs, errors.New("IMAP_USER is required with IMAP_ADDR"))
	}
	if c.QueueWorkers < 1 {
		errs = append(errs, errors.New("QUEUE_WORKERS must be positive"))
	}
	if c.QueueBuffer < 1 {
		errs = append(errs, errors.New("QUEUE_BUFFER must be positive"))
	}
	if c.JobMaxRetries < 0 {
		errs = append(errs, errors.New("JOB_MAX_RETRIES must not be negative"))
	}
	if c.HistoryYears < 1 {
		errs = append(errs, errors.New("HISTORY_YEARS must be positive"))
	}
	if c.AcquireTimeout < 0 {
		errs = append(errs, errors.New("ACQUIRE_TIMEOUT must not be negative"))
	}
	return errors.Join(errs...)
}

// MailEnabled reports whether an IMAP mailbox is configured.
func (c Config) MailEnabled() bool { return c.IMAPAddr != "" }
