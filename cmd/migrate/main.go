package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/finance-reconciler/internal/app"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/query"
	"github.com/dvloznov/finance-reconciler/internal/store"
)

func main() {
	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

// run parses args on top of the environment configuration and either lists
// the embedded migrations for the backend or applies the pending ones.
func run(ctx context.Context, args []string, getenv func(string) string, out io.Writer) error {
	cfg, err := config.Load(getenv)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	backend := fs.String("backend", cfg.StorageBackend, "Storage backend: postgres, sqlite or bigquery (or set STORAGE_BACKEND env)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres connection URL (or set DATABASE_URL env)")
	fs.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "SQLite database file (or set SQLITE_PATH env)")
	fs.StringVar(&cfg.BQProject, "project", cfg.BQProject, "GCP project ID (or set BQ_PROJECT env)")
	fs.StringVar(&cfg.BQDataset, "dataset", cfg.BQDataset, "BigQuery dataset ID (or set BQ_DATASET env)")
	appliedBy := fs.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	list := fs.Bool("list", false, "List the migrations for the backend without applying them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.StorageBackend = *backend

	if *list {
		d, err := dialect(cfg)
		if err != nil {
			return err
		}
		migrations, err := store.LoadMigrations(d)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			fmt.Fprintf(out, "%04d_%s %s\n", m.Version, m.Name, m.Checksum[:12])
		}
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	exec, err := app.OpenExecutor(ctx, cfg)
	if err != nil {
		return err
	}
	defer exec.Close()

	n, err := store.Migrate(ctx, exec, *appliedBy)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(out, "No new migrations to apply. Database is up to date.")
	} else {
		fmt.Fprintf(out, "Successfully applied %d migration(s)\n", n)
	}
	return nil
}

func dialect(cfg config.Config) (query.Dialect, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		return query.Postgres, nil
	case config.BackendSQLite:
		return query.SQLite, nil
	case config.BackendBigQuery:
		return query.BigQuery(cfg.BQDataset), nil
	default:
		return query.Dialect{}, fmt.Errorf("unknown backend %q", cfg.StorageBackend)
	}
}
