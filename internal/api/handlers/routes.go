package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
)

// Router bundles the handlers served by the API.
type Router struct {
	Transactions *TransactionsHandler
	Accounts     *AccountsHandler
	Sync         *SyncHandler
	Jobs         *JobsHandler
}

func methodNotAllowed(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// Mux registers every endpoint on a new ServeMux.
func (rt Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	// Transactions endpoints
	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		switch {
		case rest == "query" && r.Method == http.MethodPost:
			rt.Transactions.QueryTransactions(w, r)
		case rest == "" || rest == "query":
			methodNotAllowed(w)
		case r.Method == http.MethodGet:
			rt.Transactions.GetTransaction(w, r, rest)
		default:
			methodNotAllowed(w)
		}
	})

	// Accounts endpoints
	mux.HandleFunc("/api/accounts/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			rt.Accounts.QueryAccounts(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	// Sync endpoints
	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			rt.Sync.EnqueueSync(w, r)
		case http.MethodGet:
			rt.Sync.ListStatus(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/sync/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		source := strings.TrimPrefix(r.URL.Path, "/api/sync/")
		if source == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Source is required")
			return
		}
		rt.Sync.GetStatus(w, r, source)
	})

	mux.HandleFunc("/api/statements/import", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			rt.Sync.EnqueueImport(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rt.Jobs.ListJobs(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		rt.Jobs.GetJob(w, r, jobID)
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
