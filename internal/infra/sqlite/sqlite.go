// Package sqlite implements the repository executor on database/sql with the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/finance-reconciler/internal/query"
	"github.com/dvloznov/finance-reconciler/internal/repository"
)

// TimeLayout is the fixed-width UTC form times are stored in, so that text
// comparison orders them chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Executor runs statements against a SQLite database.
type Executor struct {
	db *sql.DB
}

// Open opens the database file at path. ":memory:" opens a private in-memory
// database bound to a single connection.
func Open(ctx context.Context, path string) (*Executor, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: opening %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: enabling foreign keys: %w", err)
	}
	return &Executor{db: db}, nil
}

// Close releases the database handle.
func (e *Executor) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// Dialect implements repository.Executor.
func (e *Executor) Dialect() query.Dialect { return query.SQLite }

// Query implements repository.Executor.
func (e *Executor) Query(ctx context.Context, stmt string, args []any) ([]repository.Row, error) {
	rows, err := e.db.QueryContext(ctx, stmt, bindArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlite.Query: reading columns: %w", err)
	}

	var out []repository.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite.Query: scanning row: %w", err)
		}
		row := make(repository.Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.Query: iterating rows: %w", err)
	}
	return out, nil
}

// Exec implements repository.Executor.
func (e *Executor) Exec(ctx context.Context, stmt string, args []any) (int64, error) {
	res, err := e.db.ExecContext(ctx, stmt, bindArgs(args)...)
	if err != nil {
		return 0, fmt.Errorf("sqlite.Exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// ExecScript runs a multi-statement script, used for migrations.
func (e *Executor) ExecScript(ctx context.Context, script string) error {
	if _, err := e.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("sqlite.ExecScript: %w", err)
	}
	return nil
}

func bindArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = bindArg(a)
	}
	return out
}

func bindArg(a any) any {
	switch v := a.(type) {
	case time.Time:
		return v.UTC().Format(TimeLayout)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(TimeLayout)
	case *int64:
		if v == nil {
			return nil
		}
		return *v
	case decimal.Decimal:
		return v.String()
	default:
		return a
	}
}
