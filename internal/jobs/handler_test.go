package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/finance-reconciler/internal/ingest"
)

// MockRunner is a Runner whose methods are replaced per test.
type MockRunner struct {
	SyncAccountsFunc    func(ctx context.Context, ids []int64, delta bool) (ingest.Report, error)
	ImportStatementFunc func(ctx context.Context, accountID int64, ref string) (ingest.Report, error)
}

func (m *MockRunner) SyncAccounts(ctx context.Context, ids []int64, delta bool) (ingest.Report, error) {
	return m.SyncAccountsFunc(ctx, ids, delta)
}

func (m *MockRunner) ImportStatement(ctx context.Context, accountID int64, ref string) (ingest.Report, error) {
	return m.ImportStatementFunc(ctx, accountID, ref)
}

func report(outcomes ...ingest.Outcome) ingest.Report {
	var r ingest.Report
	for _, o := range outcomes {
		r.Add(ingest.Result{Outcome: o})
	}
	return r
}

func TestHandler(t *testing.T) {
	syncErr := errors.New("search failed")

	tests := []struct {
		name         string
		job          *SyncJob
		runner       *MockRunner
		wantErr      error
		wantOutcomes map[string]int
	}{
		{
			name: "sync accounts",
			job:  &SyncJob{JobID: "1", Kind: JobKindSyncAccounts, AccountIDs: []int64{4, 5}, DeltaSync: true},
			runner: &MockRunner{
				SyncAccountsFunc: func(ctx context.Context, ids []int64, delta bool) (ingest.Report, error) {
					if diff := cmp.Diff([]int64{4, 5}, ids); diff != "" || !delta {
						t.Errorf("SyncAccounts(%v, %v)", ids, delta)
					}
					return report(ingest.PersistedNew, ingest.PersistedNew, ingest.NoOpDuplicate), nil
				},
			},
			wantOutcomes: map[string]int{"PERSISTED_NEW": 2, "NO_OP_DUPLICATE": 1},
		},
		{
			name: "import statement",
			job:  &SyncJob{JobID: "2", Kind: JobKindImportStatement, AccountIDs: []int64{7}, Ref: "gs://b/feb.json"},
			runner: &MockRunner{
				ImportStatementFunc: func(ctx context.Context, accountID int64, ref string) (ingest.Report, error) {
					if accountID != 7 || ref != "gs://b/feb.json" {
						t.Errorf("ImportStatement(%d, %q)", accountID, ref)
					}
					return report(ingest.Failed), nil
				},
			},
			wantOutcomes: map[string]int{"FAILED": 1},
		},
		{
			name: "runner error keeps partial outcomes",
			job:  &SyncJob{JobID: "3", Kind: JobKindSyncAccounts, AccountIDs: []int64{1}},
			runner: &MockRunner{
				SyncAccountsFunc: func(ctx context.Context, ids []int64, delta bool) (ingest.Report, error) {
					return report(ingest.PersistedNew), syncErr
				},
			},
			wantErr:      syncErr,
			wantOutcomes: map[string]int{"PERSISTED_NEW": 1},
		},
		{
			name:    "invalid job is permanent",
			job:     &SyncJob{JobID: "4", Kind: "rebuild"},
			runner:  &MockRunner{},
			wantErr: ErrPermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewHandler(tt.runner)(context.Background(), tt.job)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("handler failed: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("handler err = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.wantOutcomes, tt.job.Outcomes); tt.wantOutcomes != nil && diff != "" {
				t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
