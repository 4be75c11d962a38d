package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/infra/sqlite/sqlitetest"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	"github.com/dvloznov/finance-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/store"
	"github.com/dvloznov/finance-reconciler/internal/synctracker"
)

// MockPublisher is a Publisher whose Publish is replaced per test.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.SyncJob) error
}

func (m *MockPublisher) Publish(ctx context.Context, job *jobs.SyncJob) error {
	return m.PublishFunc(ctx, job)
}

func (m *MockPublisher) Close() error { return nil }

type testServer struct {
	handler  http.Handler
	stores   *store.Stores
	jobStore *inmemory.Store
	tracker  *synctracker.Tracker
}

func newTestServer(t *testing.T, publisher jobs.Publisher) *testServer {
	t.Helper()
	ctx := context.Background()
	_, stores := sqlitetest.Open(t)

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for id := int64(1); id <= 2; id++ {
		acct := domain.Account{ID: id, Type: domain.AccountBank, Name: "Savings", Balance: decimal.NewFromInt(100 * id), StartDate: start}
		if _, err := stores.Accounts.Add(ctx, acct); err != nil {
			t.Fatalf("Failed to add account: %v", err)
		}
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		d := domain.Draft{
			AccountID:   int64(i%2) + 1,
			Date:        base.Add(time.Duration(i) * 24 * time.Hour),
			Amount:      decimal.NewFromInt(int64(10 * (i + 1))),
			Type:        domain.Expense,
			Description: "purchase",
			PaymentMode: domain.PaymentBankTransfer,
		}
		if _, err := stores.Transactions.Add(ctx, d.Transaction(base)); err != nil {
			t.Fatalf("Failed to add transaction: %v", err)
		}
	}

	jobStore := inmemory.NewStore()
	if publisher == nil {
		publisher = inmemory.NewQueue(inmemory.Config{}, jobStore)
	}
	tracker := synctracker.New(stores.SyncRuns)

	rt := Router{
		Transactions: NewTransactionsHandler(stores.Transactions),
		Accounts:     NewAccountsHandler(stores.Accounts),
		Sync:         NewSyncHandler(stores.Accounts, publisher, jobStore, tracker),
		Jobs:         NewJobsHandler(jobStore),
	}
	return &testServer{
		handler:  middleware.Chain(rt.Mux(), logger.NewWithWriter(io.Discard)),
		stores:   stores,
		jobStore: jobStore,
		tracker:  tracker,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestQueryTransactions(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantTotal  int64
		wantItems  int
	}{
		{
			name:       "all",
			body:       `{}`,
			wantStatus: http.StatusOK,
			wantTotal:  5,
			wantItems:  5,
		},
		{
			name:       "filtered and limited",
			body:       `{"criteria":{"filters":[{"key":"account_id","value":1}],"sorts":[{"key":"transaction_date","ascending":true}],"limit":2}}`,
			wantStatus: http.StatusOK,
			wantTotal:  3,
			wantItems:  2,
		},
		{
			name:       "range",
			body:       `{"criteria":{"between":[{"key":"amount","range":{"start":20,"end":40}}]}}`,
			wantStatus: http.StatusOK,
			wantTotal:  3,
			wantItems:  3,
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusOK,
			wantTotal:  5,
			wantItems:  5,
		},
		{
			name:       "data member is ignored",
			body:       `{"data":{"amount":1},"criteria":{"filters":[{"key":"account_id","value":1}]}}`,
			wantStatus: http.StatusOK,
			wantTotal:  3,
			wantItems:  3,
		},
		{
			name:       "unknown key",
			body:       `{"criteria":{"filters":[{"key":"password","value":"x"}]}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown sort key",
			body:       `{"criteria":{"sorts":[{"key":"amount; DROP TABLE account"}]}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{"criteria":{"filters":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative offset",
			body:       `{"criteria":{"offset":-1}}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/transactions/query", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			page := decodeBody[Page[Transaction]](t, rec)
			if page.Total != tt.wantTotal || len(page.Items) != tt.wantItems {
				t.Errorf("got total %d with %d items, want %d with %d", page.Total, len(page.Items), tt.wantTotal, tt.wantItems)
			}
		})
	}
}

func TestGetTransaction(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/transactions/query", `{"criteria":{"sorts":[{"key":"amount","ascending":true}],"limit":1}}`)
	page := decodeBody[Page[Transaction]](t, rec)
	if len(page.Items) != 1 {
		t.Fatalf("expected one transaction, got %+v", page)
	}
	want := page.Items[0]

	rec = s.do(t, http.MethodGet, "/api/transactions/"+want.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[Transaction](t, rec)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetTransaction mismatch (-want +got):\n%s", diff)
	}
	if !got.Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("amount = %s, want 10", got.Amount)
	}

	if rec := s.do(t, http.MethodGet, "/api/transactions/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing transaction status = %d, want 404", rec.Code)
	}
}

func TestQueryAccounts(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/accounts/query", `{"criteria":{"sorts":[{"key":"balance"}]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	page := decodeBody[Page[Account]](t, rec)
	var ids []int64
	for _, a := range page.Items {
		ids = append(ids, a.ID)
	}
	if diff := cmp.Diff([]int64{2, 1}, ids); diff != "" || page.Total != 2 {
		t.Errorf("accounts mismatch (-want +got):\n%s (total %d)", diff, page.Total)
	}

	if rec := s.do(t, http.MethodPost, "/api/accounts/query", `{"criteria":{"filters":[{"key":"secret","value":1}]}}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown key status = %d, want 400", rec.Code)
	}
}

func TestEnqueueSync(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantKind   jobs.JobKind
	}{
		{"sync", "/api/sync", `{"account_ids":[1,2],"delta_sync":true}`, http.StatusAccepted, jobs.JobKindSyncAccounts},
		{"sync without accounts", "/api/sync", `{"account_ids":[]}`, http.StatusBadRequest, ""},
		{"sync of unknown account", "/api/sync", `{"account_ids":[1,9]}`, http.StatusNotFound, ""},
		{"sync with bad body", "/api/sync", `[`, http.StatusBadRequest, ""},
		{"import", "/api/statements/import", `{"account_id":1,"ref":"gs://statements/feb.json"}`, http.StatusAccepted, jobs.JobKindImportStatement},
		{"import without ref", "/api/statements/import", `{"account_id":1}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusAccepted {
				return
			}
			job := decodeBody[jobs.SyncJob](t, rec)
			if job.JobID == "" || job.Kind != tt.wantKind || job.Status != jobs.JobStatusPending {
				t.Errorf("Unexpected job %+v", job)
			}

			rec = s.do(t, http.MethodGet, "/api/jobs/"+job.JobID, "")
			if rec.Code != http.StatusOK {
				t.Errorf("GetJob status = %d", rec.Code)
			}
		})
	}

	rec := s.do(t, http.MethodGet, "/api/jobs?kind=sync_accounts", "")
	list := decodeBody[struct {
		Jobs  []jobs.SyncJob `json:"jobs"`
		Count int            `json:"count"`
	}](t, rec)
	if list.Count != 1 || list.Jobs[0].DeltaSync != true {
		t.Errorf("Unexpected job list %+v", list)
	}

	if rec := s.do(t, http.MethodGet, "/api/jobs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/jobs?account_id=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad account filter status = %d, want 400", rec.Code)
	}
}

func TestEnqueueSync_PublishFailure(t *testing.T) {
	s := newTestServer(t, &MockPublisher{
		PublishFunc: func(ctx context.Context, job *jobs.SyncJob) error {
			return errors.New("queue is closed")
		},
	})
	if rec := s.do(t, http.MethodPost, "/api/sync", `{"account_ids":[1]}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSyncStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, nil)

	if rec := s.do(t, http.MethodGet, "/api/sync/"+synctracker.SyncSource(1), ""); rec.Code != http.StatusNotFound {
		t.Errorf("status before any run = %d, want 404", rec.Code)
	}

	if _, err := s.tracker.Start(ctx, synctracker.SyncSource(1)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := s.tracker.Start(ctx, synctracker.MailboxSource); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := s.tracker.Fail(ctx, synctracker.MailboxSource, errors.New("idle dropped")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	rec := s.do(t, http.MethodGet, "/api/sync/"+synctracker.MailboxSource, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	run := decodeBody[SyncRun](t, rec)
	if run.Status != string(domain.SyncFailed) || run.Error != "idle dropped" || run.EndedAt == nil {
		t.Errorf("Unexpected run %+v", run)
	}

	rec = s.do(t, http.MethodGet, "/api/sync", "")
	list := decodeBody[struct {
		Runs  []SyncRun `json:"runs"`
		Count int       `json:"count"`
	}](t, rec)
	if list.Count != 2 {
		t.Errorf("runs = %d, want 2", list.Count)
	}
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		method, path string
		wantStatus   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/transactions/query", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/jobs/x", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/sync", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/statements/import", http.StatusMethodNotAllowed},
		{http.MethodOptions, "/api/sync", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("response has no request id")
			}
		})
	}
}
