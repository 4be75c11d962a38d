// Package repository provides a generic CRUD and criteria-query facade over
// one entity type. Storage failures are logged and reported as ErrStorage;
// raw executor errors never reach callers.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-reconciler/internal/criteria"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/query"
)

var (
	// ErrStorage reports that the storage executor failed.
	ErrStorage = errors.New("storage failure")
	// ErrNotFound reports that an update matched no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports that a guarded update found the row changed.
	ErrConflict = errors.New("row changed concurrently")
)

// Mapper converts between one entity type and its table row.
type Mapper[T any] interface {
	Schema() query.Schema
	// Key returns the primary key value of the entity.
	Key(T) any
	// Values returns column values in Schema().Columns order.
	Values(T) []any
	// FromRow builds the entity from a result row.
	FromRow(Row) (T, error)
}

// KeyDeriver is implemented by mappers of entities whose key is a function
// of their content.
type KeyDeriver[T any] interface {
	DeriveKey(T) T
}

// Repository is the facade for one entity type.
type Repository[T any] struct {
	exec     Executor
	compiler *query.Compiler
	mapper   Mapper[T]
	schema   query.Schema
}

// New creates a repository for the mapper's table on the executor.
func New[T any](exec Executor, mapper Mapper[T]) *Repository[T] {
	return &Repository[T]{
		exec:     exec,
		compiler: query.NewCompiler(exec.Dialect()),
		mapper:   mapper,
		schema:   mapper.Schema(),
	}
}

// Schema returns the table description used by the repository.
func (r *Repository[T]) Schema() query.Schema { return r.schema }

func (r *Repository[T]) storageErr(ctx context.Context, op string, err error) error {
	log := logger.FromContext(ctx)
	log.Error().
		Err(err).
		Str("table", r.schema.Table).
		Str("op", op).
		Msg("repository: storage executor failed")
	return fmt.Errorf("%w: %s %s: %v", ErrStorage, op, r.schema.Table, err)
}

func (r *Repository[T]) mapRows(ctx context.Context, op string, rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		e, err := r.mapper.FromRow(row)
		if err != nil {
			return nil, r.storageErr(ctx, op+": mapping row", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Find returns the entity with the given key. Absent rows and storage
// failures both report false.
func (r *Repository[T]) Find(ctx context.Context, id any) (T, bool) {
	e, found, _ := r.Lookup(ctx, id)
	return e, found
}

// Lookup is Find for callers that must tell a storage failure from an
// absent row.
func (r *Repository[T]) Lookup(ctx context.Context, id any) (T, bool, error) {
	var zero T
	st := r.compiler.FindByKey(r.schema, id)
	rows, err := r.exec.Query(ctx, st.SQL, st.Args)
	if err != nil {
		return zero, false, r.storageErr(ctx, "Find", err)
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	items, err := r.mapRows(ctx, "Find", rows[:1])
	if err != nil {
		return zero, false, err
	}
	return items[0], true, nil
}

// FindAll returns the entities matching the criteria. Unknown keys and
// malformed values are rejected before the executor is called.
func (r *Repository[T]) FindAll(ctx context.Context, c criteria.Criteria) ([]T, error) {
	st, err := r.compiler.Select(r.schema, c)
	if err != nil {
		return nil, err
	}
	rows, err := r.exec.Query(ctx, st.SQL, st.Args)
	if err != nil {
		return nil, r.storageErr(ctx, "FindAll", err)
	}
	return r.mapRows(ctx, "FindAll", rows)
}

// Count returns the number of rows, or groups when grouped, matching the
// criteria. Sorts and paging are ignored.
func (r *Repository[T]) Count(ctx context.Context, c criteria.Criteria) (int64, error) {
	st, err := r.compiler.Count(r.schema, c)
	if err != nil {
		return 0, err
	}
	rows, err := r.exec.Query(ctx, st.SQL, st.Args)
	if err != nil {
		return 0, r.storageErr(ctx, "Count", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := rows[0].Int64("num_found")
	if err != nil {
		return 0, r.storageErr(ctx, "Count", err)
	}
	return n, nil
}

// Add inserts the entity. When the mapper derives keys from content, the key
// is derived first and an existing row with that key is returned unchanged
// instead of inserting.
func (r *Repository[T]) Add(ctx context.Context, e T) (T, error) {
	var zero T
	if d, ok := r.mapper.(KeyDeriver[T]); ok {
		e = d.DeriveKey(e)
		existing, found, err := r.Lookup(ctx, r.mapper.Key(e))
		if err != nil {
			return zero, err
		}
		if found {
			return existing, nil
		}
	}

	st, err := r.compiler.Insert(r.schema, r.mapper.Values(e))
	if err != nil {
		return zero, err
	}
	if _, err := r.exec.Exec(ctx, st.SQL, st.Args); err != nil {
		return zero, r.storageErr(ctx, "Add", err)
	}
	return e, nil
}

// Update rewrites the stored row with the entity's key.
func (r *Repository[T]) Update(ctx context.Context, e T) (T, error) {
	var zero T
	st, err := r.compiler.Update(r.schema, r.mapper.Values(e))
	if err != nil {
		return zero, err
	}
	n, err := r.exec.Exec(ctx, st.SQL, st.Args)
	if err != nil {
		return zero, r.storageErr(ctx, "Update", err)
	}
	if n == 0 {
		return zero, fmt.Errorf("Update: %s %v: %w", r.schema.Table, r.mapper.Key(e), ErrNotFound)
	}
	return e, nil
}

// UpdateIf rewrites the stored row only while the guard columns still hold
// prev's values. A row that changed, or vanished, yields ErrConflict.
func (r *Repository[T]) UpdateIf(ctx context.Context, e, prev T, guard ...string) (T, error) {
	var zero T
	st, err := r.compiler.UpdateIf(r.schema, r.mapper.Values(e), r.mapper.Values(prev), guard...)
	if err != nil {
		return zero, err
	}
	n, err := r.exec.Exec(ctx, st.SQL, st.Args)
	if err != nil {
		return zero, r.storageErr(ctx, "UpdateIf", err)
	}
	if n == 0 {
		return zero, fmt.Errorf("UpdateIf: %s %v: %w", r.schema.Table, r.mapper.Key(e), ErrConflict)
	}
	return e, nil
}

// Delete removes the row with the key and reports whether one was removed.
func (r *Repository[T]) Delete(ctx context.Context, id any) bool {
	st := r.compiler.DeleteByKey(r.schema, id)
	n, err := r.exec.Exec(ctx, st.SQL, st.Args)
	if err != nil {
		_ = r.storageErr(ctx, "Delete", err)
		return false
	}
	return n > 0
}

// DeleteAll removes every row.
func (r *Repository[T]) DeleteAll(ctx context.Context) bool {
	st := r.compiler.DeleteAll(r.schema)
	if _, err := r.exec.Exec(ctx, st.SQL, st.Args); err != nil {
		_ = r.storageErr(ctx, "DeleteAll", err)
		return false
	}
	return true
}
