// Package postgres implements the repository executor on a pgx connection
// pool.
package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/query"
	"github.com/dvloznov/finance-reconciler/internal/repository"
)

// Executor runs statements on a PostgreSQL pool.
type Executor struct {
	pool *pgxpool.Pool
}

// Open connects to the database at url and verifies the connection.
func Open(ctx context.Context, url string) (*Executor, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.Open: ping: %w", err)
	}
	return &Executor{pool: pool}, nil
}

// Close releases the pool.
func (e *Executor) Close() error {
	if e.pool != nil {
		e.pool.Close()
	}
	return nil
}

// Dialect implements repository.Executor.
func (e *Executor) Dialect() query.Dialect { return query.Postgres }

// Query implements repository.Executor.
func (e *Executor) Query(ctx context.Context, stmt string, args []any) ([]repository.Row, error) {
	rows, err := e.pool.Query(ctx, stmt, bindArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("postgres.Query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []repository.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres.Query: reading values: %w", err)
		}
		row := make(repository.Row, len(fields))
		for i, fd := range fields {
			v, err := normalize(vals[i])
			if err != nil {
				return nil, fmt.Errorf("postgres.Query: column %s: %w", fd.Name, err)
			}
			row[fd.Name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.Query: iterating rows: %w", err)
	}
	return out, nil
}

// Exec implements repository.Executor.
func (e *Executor) Exec(ctx context.Context, stmt string, args []any) (int64, error) {
	tag, err := e.pool.Exec(ctx, stmt, bindArgs(args)...)
	if err != nil {
		return 0, fmt.Errorf("postgres.Exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExecScript runs a multi-statement script, used for migrations.
func (e *Executor) ExecScript(ctx context.Context, script string) error {
	if _, err := e.pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("postgres.ExecScript: %w", err)
	}
	return nil
}

func bindArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if d, ok := a.(decimal.Decimal); ok {
			out[i] = pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
			continue
		}
		out[i] = a
	}
	return out
}

// normalize converts pgx decoded values into the basic types repository.Row
// getters understand.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil, nil
		}
		dv, err := t.Value()
		if err != nil {
			return nil, err
		}
		s, ok := dv.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected numeric value %T", dv)
		}
		return decimal.NewFromString(s)
	case driver.Valuer:
		return t.Value()
	default:
		return v, nil
	}
}
