package repository

import (
	"context"

	"github.com/dvloznov/finance-reconciler/internal/query"
)

// Executor runs parameterized statements against a storage engine.
// Implementations live under internal/infra.
type Executor interface {
	// Query runs a read and returns every row as a column→value map.
	Query(ctx context.Context, sql string, args []any) ([]Row, error)
	// Exec runs a write and returns the number of affected rows when the
	// engine reports it.
	Exec(ctx context.Context, sql string, args []any) (int64, error)
	// Dialect is the SQL flavour the executor understands.
	Dialect() query.Dialect
}
