package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-reconciler/internal/ingest"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

// Runner executes the work behind a job.
type Runner interface {
	SyncAccounts(ctx context.Context, ids []int64, delta bool) (ingest.Report, error)
	ImportStatement(ctx context.Context, accountID int64, ref string) (ingest.Report, error)
}

// NewHandler returns a handler that runs jobs through r.
func NewHandler(r Runner) JobHandler {
	return func(ctx context.Context, job *SyncJob) error {
		log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
			"job_id":  job.JobID,
			"kind":    job.Kind,
			"attempt": job.RetryCount + 1,
		})
		ctx = logger.WithContext(ctx, log)

		if err := job.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}

		var report ingest.Report
		var err error
		switch job.Kind {
		case JobKindSyncAccounts:
			report, err = r.SyncAccounts(ctx, job.AccountIDs, job.DeltaSync)
		case JobKindImportStatement:
			report, err = r.ImportStatement(ctx, job.AccountIDs[0], job.Ref)
		}

		job.Outcomes = make(map[string]int)
		for outcome, n := range report.Counts() {
			job.Outcomes[string(outcome)] = n
		}
		if err != nil {
			return fmt.Errorf("job %s: %w", job.JobID, err)
		}
		log.Info().Interface("outcomes", job.Outcomes).Msg("Job finished")
		return nil
	}
}
