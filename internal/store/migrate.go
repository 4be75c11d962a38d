package store

import (
	"context"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/criteria"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/query"
	"github.com/dvloznov/finance-reconciler/internal/repository"
)

//go:embed migrations
var migrationFS embed.FS

// ErrChecksumMismatch reports an applied migration whose file has changed.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// ScriptExecutor is an executor that can also run multi-statement scripts.
type ScriptExecutor interface {
	repository.Executor
	ExecScript(ctx context.Context, script string) error
}

var migrationsSchema = query.Schema{
	Table: "schema_migrations",
	Key:   "version",
	Columns: []query.Column{
		{Name: "version", Kind: query.KindInt},
		{Name: "name", Kind: query.KindString},
		{Name: "applied_at", Kind: query.KindTime},
		{Name: "checksum", Kind: query.KindString},
		{Name: "applied_by", Kind: query.KindString},
	},
}

var schemaMigrationsDDL = map[string]string{
	query.Postgres.Name: `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    BIGINT PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL,
	checksum   TEXT NOT NULL,
	applied_by TEXT NOT NULL
)`,
	query.SQLite.Name: `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	applied_by TEXT NOT NULL
)`,
	"bigquery": `CREATE TABLE IF NOT EXISTS {{PREFIX}}schema_migrations (
	version    INT64 NOT NULL,
	name       STRING NOT NULL,
	applied_at TIMESTAMP NOT NULL,
	checksum   STRING,
	applied_by STRING
)`,
}

// LoadMigrations reads the embedded migrations for the dialect, sorted by
// version. The checksum covers the file content before placeholder
// substitution, so the same migration applied to different datasets keeps
// one checksum.
func LoadMigrations(d query.Dialect) ([]Migration, error) {
	dir := path.Join("migrations", d.Name)
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, fmt.Errorf("LoadMigrations: reading %s: %w", dir, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := migrationPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		content, err := fs.ReadFile(migrationFS, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("LoadMigrations: reading %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			Filename: entry.Name(),
			SQL:      strings.ReplaceAll(string(content), "{{PREFIX}}", d.TablePrefix),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies every pending migration in version order and records each
// one in schema_migrations. It returns the number applied.
func Migrate(ctx context.Context, exec ScriptExecutor, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)
	d := exec.Dialect()

	ddl, ok := schemaMigrationsDDL[d.Name]
	if !ok {
		return 0, fmt.Errorf("Migrate: unsupported dialect %q", d.Name)
	}
	if err := exec.ExecScript(ctx, strings.ReplaceAll(ddl, "{{PREFIX}}", d.TablePrefix)); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring schema_migrations: %w", err)
	}

	migrations, err := LoadMigrations(d)
	if err != nil {
		return 0, err
	}

	compiler := query.NewCompiler(d)
	st, err := compiler.Select(migrationsSchema, criteria.Criteria{Sorts: []criteria.Sort{{Key: "version", Ascending: true}}})
	if err != nil {
		return 0, err
	}
	rows, err := exec.Query(ctx, st.SQL, st.Args)
	if err != nil {
		return 0, fmt.Errorf("Migrate: reading applied migrations: %w", err)
	}
	applied := make(map[int]string, len(rows))
	for _, r := range rows {
		v, err := r.Int64("version")
		if err != nil {
			return 0, fmt.Errorf("Migrate: %w", err)
		}
		applied[int(v)] = r.String("checksum")
	}

	log.Info().
		Str("dialect", d.Name).
		Int("found", len(migrations)).
		Int("applied", len(applied)).
		Msg("Migrations loaded")

	count := 0
	for _, m := range migrations {
		if sum, done := applied[m.Version]; done {
			if sum != "" && sum != m.Checksum {
				return count, fmt.Errorf("Migrate: %04d_%s: %w", m.Version, m.Name, ErrChecksumMismatch)
			}
			log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("Migration already applied")
			continue
		}

		if err := exec.ExecScript(ctx, m.SQL); err != nil {
			return count, fmt.Errorf("Migrate: executing %04d_%s: %w", m.Version, m.Name, err)
		}
		ins, err := compiler.Insert(migrationsSchema, []any{int64(m.Version), m.Name, time.Now().UTC(), m.Checksum, appliedBy})
		if err != nil {
			return count, err
		}
		if _, err := exec.Exec(ctx, ins.SQL, ins.Args); err != nil {
			return count, fmt.Errorf("Migrate: recording %04d_%s: %w", m.Version, m.Name, err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Migration applied")
		count++
	}
	return count, nil
}
