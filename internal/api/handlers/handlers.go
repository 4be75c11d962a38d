package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
	"github.com/dvloznov/finance-reconciler/internal/criteria"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/query"
	"github.com/dvloznov/finance-reconciler/internal/repository"
	"github.com/dvloznov/finance-reconciler/internal/synctracker"
)

// writeQueryError maps criteria and storage errors onto status codes.
func writeQueryError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, criteria.ErrInvalid),
		errors.Is(err, query.ErrUnknownKey),
		errors.Is(err, query.ErrInvalidValue):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Query failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Query failed")
	}
}

// Page is a criteria query response.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

// queryPage runs c against repo and converts the rows.
func queryPage[E, T any](r *http.Request, repo *repository.Repository[E], c criteria.Criteria, conv func(E) T) (Page[T], error) {
	ctx := r.Context()
	rows, err := repo.FindAll(ctx, c)
	if err != nil {
		return Page[T]{}, err
	}
	total, err := repo.Count(ctx, c.WithoutPaging())
	if err != nil {
		return Page[T]{}, err
	}
	items := make([]T, 0, len(rows))
	for _, row := range rows {
		items = append(items, conv(row))
	}
	return Page[T]{Items: items, Total: total}, nil
}

// Transaction is the wire form of a transaction.
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   int64           `json:"account_id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Labels      []string        `json:"labels"`
	Note        string          `json:"note,omitempty"`
	Description string          `json:"description"`
	Currency    string          `json:"currency"`
	PaymentMode string          `json:"payment_mode"`
	State       string          `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toTransaction(t domain.Transaction) Transaction {
	return Transaction{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Date:        t.Date,
		Amount:      t.Amount,
		Type:        string(t.Type),
		Category:    string(t.Category),
		Labels:      t.Labels,
		Note:        t.Note,
		Description: t.Description,
		Currency:    t.Currency,
		PaymentMode: string(t.PaymentMode),
		State:       string(t.State),
		CreatedAt:   t.CreatedAt,
	}
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	repo *repository.Repository[domain.Transaction]
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo *repository.Repository[domain.Transaction]) *TransactionsHandler {
	return &TransactionsHandler{repo: repo}
}

// QueryTransactions handles POST /api/transactions/query
func (h *TransactionsHandler) QueryTransactions(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	c, err := criteria.DecodeRequest(r.Body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := queryPage(r, h.repo, c, toTransaction)
	if err != nil {
		writeQueryError(w, log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, id string) {
	tx, ok := h.repo.Find(r.Context(), id)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toTransaction(tx))
}

// Account is the wire form of an account.
type Account struct {
	ID           int64           `json:"id"`
	Type         string          `json:"type"`
	Name         string          `json:"name"`
	Balance      decimal.Decimal `json:"balance"`
	Number       string          `json:"number,omitempty"`
	BankID       *int64          `json:"bank_id,omitempty"`
	StartDate    time.Time       `json:"start_date"`
	LastSyncedOn *time.Time      `json:"last_synced_on,omitempty"`
	SearchText   string          `json:"search_text,omitempty"`
}

func toAccount(a domain.Account) Account {
	return Account{
		ID:           a.ID,
		Type:         string(a.Type),
		Name:         a.Name,
		Balance:      a.Balance,
		Number:       a.Number,
		BankID:       a.BankID,
		StartDate:    a.StartDate,
		LastSyncedOn: a.LastSyncedOn,
		SearchText:   a.SearchText,
	}
}

// AccountsHandler handles account-related endpoints.
type AccountsHandler struct {
	repo *repository.Repository[domain.Account]
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(repo *repository.Repository[domain.Account]) *AccountsHandler {
	return &AccountsHandler{repo: repo}
}

// QueryAccounts handles POST /api/accounts/query
func (h *AccountsHandler) QueryAccounts(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	c, err := criteria.DecodeRequest(r.Body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := queryPage(r, h.repo, c, toAccount)
	if err != nil {
		writeQueryError(w, log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// SyncRun is the wire form of a sync run.
type SyncRun struct {
	Source    string     `json:"source"`
	RunID     string     `json:"run_id"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func toSyncRun(s domain.SyncRun) SyncRun {
	return SyncRun{
		Source:    s.Source,
		RunID:     s.RunID,
		Status:    string(s.Status),
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Error:     s.Error,
	}
}

// SyncHandler enqueues manual syncs and statement imports and reports
// sync status.
type SyncHandler struct {
	accounts  *repository.Repository[domain.Account]
	publisher jobs.Publisher
	store     jobs.JobStore
	tracker   *synctracker.Tracker
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(accounts *repository.Repository[domain.Account], publisher jobs.Publisher, store jobs.JobStore, tracker *synctracker.Tracker) *SyncHandler {
	return &SyncHandler{accounts: accounts, publisher: publisher, store: store, tracker: tracker}
}

// enqueue publishes the job and answers with its stored state.
func (h *SyncHandler) enqueue(w http.ResponseWriter, r *http.Request, job *jobs.SyncJob) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	for _, id := range job.AccountIDs {
		if _, ok := h.accounts.Find(ctx, id); !ok {
			middleware.WriteError(w, http.StatusNotFound, "Account "+strconv.FormatInt(id, 10)+" not found")
			return
		}
	}
	if err := job.Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.publisher.Publish(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue job")
		return
	}
	log.Info().Str("job_id", job.JobID).Str("kind", string(job.Kind)).Msg("Job enqueued")

	// A worker may already be updating the published job.
	stored, err := h.store.GetJob(ctx, job.JobID)
	if err != nil {
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID})
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, stored)
}

// EnqueueSync handles POST /api/sync
func (h *SyncHandler) EnqueueSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountIDs []int64 `json:"account_ids"`
		DeltaSync  bool    `json:"delta_sync"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.AccountIDs) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "account_ids is required")
		return
	}
	h.enqueue(w, r, &jobs.SyncJob{
		Kind:       jobs.JobKindSyncAccounts,
		AccountIDs: req.AccountIDs,
		DeltaSync:  req.DeltaSync,
	})
}

// EnqueueImport handles POST /api/statements/import
func (h *SyncHandler) EnqueueImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID int64  `json:"account_id"`
		Ref       string `json:"ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == 0 || req.Ref == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id and ref are required")
		return
	}
	h.enqueue(w, r, &jobs.SyncJob{
		Kind:       jobs.JobKindImportStatement,
		AccountIDs: []int64{req.AccountID},
		Ref:        req.Ref,
	})
}

// GetStatus handles GET /api/sync/{source}
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request, source string) {
	run, ok := h.tracker.Get(r.Context(), source)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "No sync recorded for "+source)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toSyncRun(run))
}

// ListStatus handles GET /api/sync
func (h *SyncHandler) ListStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	runs, err := h.tracker.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sync runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list sync runs")
		return
	}
	out := make([]SyncRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, toSyncRun(run))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  out,
		"count": len(out),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Kind:   jobs.JobKind(query.Get("kind")),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if accountStr := query.Get("account_id"); accountStr != "" {
		id, err := strconv.ParseInt(accountStr, 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid account_id")
			return
		}
		filter.AccountID = id
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
