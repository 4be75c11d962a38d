package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/mailbox"
	"github.com/dvloznov/finance-reconciler/internal/synctracker"
)

// runBatch processes handles in order. Message failures are logged and
// recorded; the batch always runs to the end unless ctx is done.
func (p *Pipeline) runBatch(ctx context.Context, mp *messagePipeline, handles []mailbox.Handle) (Report, int) {
	log := logger.FromContext(ctx)
	var report Report
	fetchFailures := 0

	for _, h := range handles {
		if ctx.Err() != nil {
			break
		}
		results, err := p.processMessage(ctx, mp, h)
		report.Add(results...)
		if err == nil {
			continue
		}
		var fe *fetchError
		if errors.As(err, &fe) {
			fetchFailures++
		}
		log.Warn().
			Err(err).
			Uint32("message_uid", h.UID).
			Uint32("message_seq", h.Seq).
			Str("sender", results[0].Sender).
			Msg("Skipping message")
	}
	return report, fetchFailures
}

// HandleNotification processes the messages announced by a mailbox
// notification. It fails only when no announced message could be fetched.
func (p *Pipeline) HandleNotification(ctx context.Context, n mailbox.Notification) (Report, error) {
	log := logger.FromContext(ctx)
	handles := mailbox.TailHandles(n)
	if len(handles) == 0 {
		return Report{}, nil
	}

	report, fetchFailures := p.runBatch(ctx, p.eventSteps(), handles)
	log.Info().
		Uint32("total", n.Total).
		Uint32("added", n.Added).
		Interface("outcomes", report.Counts()).
		Msg("Processed mailbox notification")

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if fetchFailures == len(handles) {
		return report, fmt.Errorf("HandleNotification: none of %d messages could be fetched: %w", len(handles), report.Failures()[0].Err)
	}
	return report, nil
}

// historyStart is the first day searched by a full bank sync.
func (p *Pipeline) historyStart() time.Time {
	return time.Date(p.now().UTC().Year()-p.cfg.HistoryYears, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// SearchQuery builds the mailbox search for an account. ok is false for
// accounts that are not synced from mail.
func (p *Pipeline) SearchQuery(acct domain.Account, delta bool) (mailbox.Query, bool, error) {
	var q mailbox.Query
	switch acct.Type {
	case domain.AccountBank:
		if acct.Bank == nil || acct.Bank.AlertEmail == "" {
			return q, false, fmt.Errorf("SearchQuery: account %d has no alerting bank", acct.ID)
		}
		q.From = acct.Bank.AlertEmail
		q.Since = p.historyStart()
	case domain.AccountCreditCard, domain.AccountLoan:
		tokens := acct.SearchTokens()
		if len(tokens) == 0 {
			return q, false, fmt.Errorf("SearchQuery: account %d has no search text", acct.ID)
		}
		q.BodyAny = tokens
		q.Since = acct.StartDate
		if q.Since.IsZero() {
			q.Since = p.historyStart()
		}
	default:
		return q, false, nil
	}

	if delta && acct.LastSyncedOn != nil {
		q.Since = *acct.LastSyncedOn
	}
	return q, true, nil
}

// SyncAccount searches the mailbox for the account's alerts and processes
// them. The run is tracked under the account's sync source; a failed search
// marks it FAILED.
func (p *Pipeline) SyncAccount(ctx context.Context, acct domain.Account, delta bool) (Report, error) {
	log := logger.FromContext(ctx).With().Int64("account_id", acct.ID).Logger()
	ctx = logger.WithContext(ctx, log)

	q, ok, err := p.SearchQuery(acct, delta)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		log.Info().Str("type", string(acct.Type)).Msg("Account type is not synced from mail")
		return Report{}, nil
	}

	var report Report
	err = p.tracker.Track(ctx, synctracker.SyncSource(acct.ID), func(ctx context.Context) error {
		handles, err := p.source.Search(ctx, q)
		if err != nil {
			return fmt.Errorf("SyncAccount: searching mailbox: %w", err)
		}
		log.Info().
			Time("since", q.Since).
			Str("from", q.From).
			Strs("body_any", q.BodyAny).
			Bool("delta", delta).
			Int("messages", len(handles)).
			Msg("Syncing account")

		report, _ = p.runBatch(ctx, p.accountSteps(acct, q.Since), handles)
		return ctx.Err()
	})
	log.Info().Interface("outcomes", report.Counts()).Msg("Account sync finished")
	return report, err
}

// SyncAccounts syncs each account in turn. A failing account does not stop
// the others; the failures are joined.
func (p *Pipeline) SyncAccounts(ctx context.Context, ids []int64, delta bool) (Report, error) {
	var report Report
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		acct, err := p.stores.AccountWithBank(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("SyncAccounts: %w", err))
			continue
		}
		r, err := p.SyncAccount(ctx, acct, delta)
		report.Merge(r)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}
