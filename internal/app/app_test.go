package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/acquire"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/infra/sqlite"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/mailbox"
)

func newTestApp(t *testing.T) (*App, *acquire.Memory) {
	t.Helper()
	ctx := context.Background()

	exec, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { exec.Close() })

	docs := acquire.NewMemory("statements")
	cfg := config.Defaults()
	cfg.QueueWorkers = 1

	a, err := New(ctx, cfg, logger.New(), Overrides{
		Executor: exec,
		Source:   mailbox.NewMemorySource(),
		Acquirer: docs,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, docs
}

func TestNew_WiresComponents(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)

	for _, id := range []int64{3, 1, 2} {
		acct := domain.Account{ID: id, Type: domain.AccountCash, Name: "Wallet", Balance: decimal.Zero, StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}
		if _, err := a.Stores.Accounts.Add(ctx, acct); err != nil {
			t.Fatalf("Failed to add account: %v", err)
		}
	}

	ids, err := a.AccountIDs(ctx)
	if err != nil {
		t.Fatalf("AccountIDs() error = %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, ids); diff != "" {
		t.Errorf("AccountIDs() mismatch (-want +got):\n%s", diff)
	}
	if a.Registry == nil || a.Tracker == nil || a.Pipeline == nil || a.Queue == nil {
		t.Errorf("New() left components unset: %+v", a)
	}
}

func TestApp_ImportJobThroughQueue(t *testing.T) {
	ctx := context.Background()
	a, docs := newTestApp(t)

	acct := domain.Account{ID: 1, Type: domain.AccountCash, Name: "Wallet", Balance: decimal.NewFromInt(100), StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}
	if _, err := a.Stores.Accounts.Add(ctx, acct); err != nil {
		t.Fatalf("Failed to add account: %v", err)
	}
	ref, err := docs.Upload(ctx, "1/jan.json", strings.NewReader(`{"entries":[{"date":"2024-01-05","description":"Coffee","amount":"-40"}]}`))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if err := a.StartWorkers(ctx); err != nil {
		t.Fatalf("StartWorkers() error = %v", err)
	}
	job := &jobs.SyncJob{Kind: jobs.JobKindImportStatement, AccountIDs: []int64{1}, Ref: ref}
	if err := a.Queue.Publish(ctx, job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := a.JobStore.GetJob(ctx, job.JobID)
		if err == nil && got.Status == jobs.JobStatusCompleted {
			if got.Outcomes["PERSISTED_NEW"] != 1 {
				t.Errorf("job outcomes = %v, want one persisted", got.Outcomes)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job not completed in time: %+v, %v", got, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	stored, ok := a.Stores.Accounts.Find(ctx, int64(1))
	if !ok || !stored.Balance.Equal(decimal.NewFromInt(60)) {
		t.Errorf("account balance = %v, want 60", stored.Balance)
	}
}

func TestOpenExecutor_UnknownBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.StorageBackend = "mongo"
	if _, err := OpenExecutor(context.Background(), cfg); err == nil {
		t.Error("OpenExecutor() error = nil, want error")
	}
}

func TestOpenExecutor_SQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.SQLitePath = ":memory:"
	exec, err := OpenExecutor(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenExecutor() error = %v", err)
	}
	defer exec.Close()
	if got := exec.Dialect().Name; got != "sqlite" {
		t.Errorf("Dialect() = %q, want sqlite", got)
	}
}
