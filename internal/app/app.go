// Package app wires the service components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-reconciler/internal/acquire"
	"github.com/dvloznov/finance-reconciler/internal/categorize"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/criteria"
	"github.com/dvloznov/finance-reconciler/internal/infra/bigquery"
	"github.com/dvloznov/finance-reconciler/internal/infra/postgres"
	"github.com/dvloznov/finance-reconciler/internal/infra/sqlite"
	"github.com/dvloznov/finance-reconciler/internal/ingest"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	"github.com/dvloznov/finance-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/mailbox"
	"github.com/dvloznov/finance-reconciler/internal/processor"
	"github.com/dvloznov/finance-reconciler/internal/store"
	"github.com/dvloznov/finance-reconciler/internal/synctracker"
)

// Executor is a storage executor that can run migrations and be closed.
type Executor interface {
	store.ScriptExecutor
	io.Closer
}

// OpenExecutor opens the configured storage backend.
func OpenExecutor(ctx context.Context, cfg config.Config) (Executor, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case config.BackendSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.BackendBigQuery:
		return bigquery.Open(ctx, cfg.BQProject, cfg.BQDataset)
	default:
		return nil, fmt.Errorf("OpenExecutor: unknown storage backend %q", cfg.StorageBackend)
	}
}

// Overrides replaces components that would otherwise be built from
// configuration.
type Overrides struct {
	Executor    Executor
	Source      mailbox.Source
	Categorizer categorize.Categorizer
	Acquirer    acquire.Acquirer
}

// App holds the wired components.
type App struct {
	Config   config.Config
	Log      zerolog.Logger
	Stores   *store.Stores
	Registry *processor.Registry
	Tracker  *synctracker.Tracker
	Source   mailbox.Source
	Acquirer acquire.Acquirer
	Pipeline *ingest.Pipeline
	JobStore *inmemory.Store
	Queue    *inmemory.Queue

	closers []io.Closer
}

// New builds every component. Storage is migrated before use. Without IMAP
// settings the mailbox is empty; without a bucket statement import is off.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, o Overrides) (*App, error) {
	ctx = logger.WithContext(ctx, log)
	a := &App{Config: cfg, Log: log}

	exec := o.Executor
	if exec == nil {
		var err error
		if exec, err = OpenExecutor(ctx, cfg); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, exec)
	}
	if n, err := store.Migrate(ctx, exec, "reconciler"); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app.New: migrating: %w", err)
	} else if n > 0 {
		log.Info().Int("applied", n).Msg("Storage migrated")
	}
	a.Stores = store.New(exec)
	a.Registry = processor.Default()
	a.Tracker = synctracker.New(a.Stores.SyncRuns)

	a.Source = o.Source
	if a.Source == nil {
		if cfg.MailEnabled() {
			src, err := mailbox.DialIMAP(ctx, mailbox.IMAPConfig{
				Addr:     cfg.IMAPAddr,
				Username: cfg.IMAPUser,
				Password: cfg.IMAPPassword,
				Mailbox:  cfg.IMAPMailbox,
			})
			if err != nil {
				_ = a.Close()
				return nil, err
			}
			a.closers = append(a.closers, src)
			a.Source = src
		} else {
			log.Warn().Msg("No IMAP mailbox configured - mail sync will find nothing")
			a.Source = mailbox.NewMemorySource()
		}
	}

	categorizer := o.Categorizer
	if categorizer == nil {
		chain := categorize.Chain{categorize.DefaultKeywords}
		if cfg.GeminiEnabled {
			g, err := categorize.NewGemini(ctx, cfg.GeminiModel)
			if err != nil {
				_ = a.Close()
				return nil, err
			}
			chain = append(chain, g)
		}
		categorizer = chain
	}

	a.Acquirer = o.Acquirer
	if a.Acquirer == nil && cfg.GCSBucket != "" {
		g, err := acquire.NewGCS(ctx, cfg.GCSBucket)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, g)
		a.Acquirer = g
	}
	if a.Acquirer == nil {
		log.Warn().Msg("No GCS bucket configured - statement import is disabled")
	}

	a.Pipeline = ingest.New(ingest.Deps{
		Source:      a.Source,
		Registry:    a.Registry,
		Stores:      a.Stores,
		Tracker:     a.Tracker,
		Categorizer: categorizer,
		Acquirer:    a.Acquirer,
	}, ingest.Config{
		HistoryYears:   cfg.HistoryYears,
		AcquireTimeout: cfg.AcquireTimeout,
	})

	a.JobStore = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(inmemory.Config{
		Workers:    cfg.QueueWorkers,
		Buffer:     cfg.QueueBuffer,
		MaxRetries: cfg.JobMaxRetries,
	}, a.JobStore)
	return a, nil
}

// StartWorkers starts the job consumers.
func (a *App) StartWorkers(ctx context.Context) error {
	return a.Queue.Start(logger.WithContext(ctx, a.Log), jobs.NewHandler(a.Pipeline))
}

// Close stops the queue and releases connections in reverse order of
// creation.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// AccountIDs returns the id of every account in ascending order.
func (a *App) AccountIDs(ctx context.Context) ([]int64, error) {
	accounts, err := a.Stores.Accounts.FindAll(ctx, criteria.Criteria{
		Sorts: []criteria.Sort{{Key: "id", Ascending: true}},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(accounts))
	for i, acct := range accounts {
		ids[i] = acct.ID
	}
	return ids, nil
}
