// Package sqlitetest provides migrated in-memory databases for tests.
package sqlitetest

import (
	"context"
	"testing"

	"github.com/dvloznov/finance-reconciler/internal/infra/sqlite"
	"github.com/dvloznov/finance-reconciler/internal/store"
)

// Open returns a migrated in-memory database and the stores on top of it.
// The database is closed when the test ends.
func Open(t testing.TB) (*sqlite.Executor, *store.Stores) {
	t.Helper()
	ctx := context.Background()

	exec, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { exec.Close() })

	if _, err := store.Migrate(ctx, exec, "test"); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return exec, store.New(exec)
}
