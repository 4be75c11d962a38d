package jobs

import (
	"context"
	"errors"
	"time"
)

// JobKind is the kind of work a job asks for.
type JobKind string

const (
	// JobKindSyncAccounts searches the mailbox for the alerts of some accounts.
	JobKindSyncAccounts JobKind = "sync_accounts"
	// JobKindImportStatement imports an exported statement document.
	JobKindImportStatement JobKind = "import_statement"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ErrJobNotFound is returned by stores for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// ErrPermanent marks a handler error that retrying cannot fix.
var ErrPermanent = errors.New("permanent job failure")

// SyncJob is a queued manual sync or statement import.
type SyncJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	Kind JobKind `json:"kind"`

	// AccountIDs are the accounts to sync. An import names exactly one.
	AccountIDs []int64 `json:"account_ids"`

	// DeltaSync limits the search to mail since each account's last sync.
	DeltaSync bool `json:"delta_sync"`

	// Ref is the statement document reference of an import.
	Ref string `json:"ref,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Outcomes counts the results of the last attempt per outcome.
	Outcomes map[string]int `json:"outcomes,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the last attempt failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Validate checks that the job names the inputs its kind needs.
func (j *SyncJob) Validate() error {
	switch j.Kind {
	case JobKindSyncAccounts:
		if len(j.AccountIDs) == 0 {
			return errors.New("sync job needs at least one account")
		}
	case JobKindImportStatement:
		if len(j.AccountIDs) != 1 {
			return errors.New("import job needs exactly one account")
		}
		if j.Ref == "" {
			return errors.New("import job needs a document reference")
		}
	default:
		return errors.New("unknown job kind " + string(j.Kind))
	}
	return nil
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues a job.
	Publish(ctx context.Context, job *SyncJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It returns an error if the job failed and
// should be retried; errors wrapping ErrPermanent are not retried. The
// handler may record outcomes on the job.
type JobHandler func(ctx context.Context, job *SyncJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *SyncJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*SyncJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Kind filters jobs by kind.
	Kind JobKind

	// AccountID filters jobs that name the account.
	AccountID int64

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
