// Package synctracker records the status of the latest sync run per source.
// A source holds one record; starting a run overwrites the previous one.
package synctracker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-reconciler/internal/criteria"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/repository"
)

// MailboxSource is the source of the event-driven mailbox watcher.
const MailboxSource = "mailbox"

// SyncSource is the source of a manual sync of one account.
func SyncSource(accountID int64) string { return "sync:" + strconv.FormatInt(accountID, 10) }

// StatementSource is the source of a statement import for one account.
func StatementSource(accountID int64) string {
	return "statement:" + strconv.FormatInt(accountID, 10)
}

// Tracker stores runs through a repository.
type Tracker struct {
	runs *repository.Repository[domain.SyncRun]
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a tracker on the sync run repository.
func New(runs *repository.Repository[domain.SyncRun]) *Tracker {
	return &Tracker{runs: runs, now: time.Now}
}

// WithClock replaces the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Start marks source RUNNING with a new run id. A run already in progress
// for the source is overwritten.
func (t *Tracker) Start(ctx context.Context, source string) (domain.SyncRun, error) {
	log := logger.FromContext(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()

	run := domain.SyncRun{
		Source:    source,
		RunID:     uuid.NewString(),
		Status:    domain.SyncRunning,
		StartedAt: t.now().UTC(),
	}

	prev, exists := t.runs.Find(ctx, source)
	var err error
	if exists {
		if prev.Status == domain.SyncRunning {
			log.Warn().
				Str("source", source).
				Str("previous_run_id", prev.RunID).
				Msg("Overwriting a sync run that is still running")
		}
		_, err = t.runs.Update(ctx, run)
	} else {
		_, err = t.runs.Add(ctx, run)
	}
	if err != nil {
		return domain.SyncRun{}, fmt.Errorf("Start: %s: %w", source, err)
	}

	log.Info().Str("source", source).Str("run_id", run.RunID).Msg("Sync run started")
	return run, nil
}

// Complete marks the run of source COMPLETED.
func (t *Tracker) Complete(ctx context.Context, source string) (domain.SyncRun, error) {
	return t.finish(ctx, source, domain.SyncCompleted, "")
}

// Fail marks the run of source FAILED with the cause.
func (t *Tracker) Fail(ctx context.Context, source string, cause error) (domain.SyncRun, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.finish(ctx, source, domain.SyncFailed, msg)
}

func (t *Tracker) finish(ctx context.Context, source string, status domain.SyncStatus, msg string) (domain.SyncRun, error) {
	log := logger.FromContext(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs.Find(ctx, source)
	if !ok {
		return domain.SyncRun{}, fmt.Errorf("finish: no run for %s: %w", source, repository.ErrNotFound)
	}
	ended := t.now().UTC()
	run.Status = status
	run.EndedAt = &ended
	run.Error = msg

	if _, err := t.runs.Update(ctx, run); err != nil {
		return domain.SyncRun{}, fmt.Errorf("finish: %s: %w", source, err)
	}

	level := zerolog.InfoLevel
	if status == domain.SyncFailed {
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).
		Str("source", source).
		Str("run_id", run.RunID).
		Str("status", string(status)).
		Str("error", msg).
		Dur("duration", ended.Sub(run.StartedAt)).
		Msg("Sync run finished")
	return run, nil
}

// Get returns the latest run of source.
func (t *Tracker) Get(ctx context.Context, source string) (domain.SyncRun, bool) {
	return t.runs.Find(ctx, source)
}

// List returns every source's latest run, most recently started first.
func (t *Tracker) List(ctx context.Context) ([]domain.SyncRun, error) {
	return t.runs.FindAll(ctx, criteria.Criteria{
		Sorts: []criteria.Sort{{Key: "started_at"}, {Key: "source", Ascending: true}},
	})
}

// Track runs fn as a run of source: FAILED when fn returns an error,
// COMPLETED otherwise. fn's error is returned.
func (t *Tracker) Track(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	if _, err := t.Start(ctx, source); err != nil {
		return err
	}
	// The outcome is recorded even when ctx was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	if err := fn(ctx); err != nil {
		if _, ferr := t.Fail(finishCtx, source, err); ferr != nil {
			log := logger.FromContext(ctx)
			log.Error().Err(ferr).Str("source", source).Msg("Failed to record sync failure")
		}
		return err
	}
	_, err := t.Complete(finishCtx, source)
	return err
}
