package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/categorize"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/repository"
)

// accountLocks serializes balance updates per account.
type accountLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *accountLocks) lock(id int64) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// balanceAttempts bounds the re-reads of an account whose row changed
// between read and guarded write.
const balanceAttempts = 5

// persist stores the draft as a transaction unless one with the same id
// exists, then applies it to the account balance. A balance update that
// fails removes the transaction again so a retry applies both.
//
// The lock serializes writers in this process. The balance write is guarded
// on the balance and last_synced_on it was computed from, so a writer in
// another process forces a re-read instead of being overwritten.
func (p *Pipeline) persist(ctx context.Context, accountID int64, d domain.Draft, at time.Time) (Outcome, string, error) {
	log := logger.FromContext(ctx)

	tx := d.Transaction(p.now().UTC())

	unlock := p.locks.lock(accountID)
	defer unlock()

	_, found, err := p.stores.Transactions.Lookup(ctx, tx.ID)
	if err != nil {
		return Failed, tx.ID, fmt.Errorf("persist: looking up transaction: %w", err)
	}
	if found {
		log.Debug().
			Int64("account_id", accountID).
			Str("transaction_id", tx.ID).
			Msg("Transaction already recorded")
		return NoOpDuplicate, tx.ID, nil
	}

	// The category is not part of the id.
	tx = categorize.Apply(ctx, p.categorizer, d).Transaction(tx.CreatedAt)

	if _, err := p.stores.Transactions.Add(ctx, tx); err != nil {
		return Failed, tx.ID, fmt.Errorf("persist: adding transaction: %w", err)
	}

	acct, err := p.applyToAccount(ctx, accountID, tx, at.UTC())
	if err != nil {
		p.rollback(ctx, tx)
		return Failed, tx.ID, err
	}

	log.Info().
		Int64("account_id", accountID).
		Str("transaction_id", tx.ID).
		Str("type", string(tx.Type)).
		Str("amount", tx.Amount.String()).
		Str("balance", acct.Balance.String()).
		Msg("Transaction recorded")
	return PersistedNew, tx.ID, nil
}

// applyToAccount adds tx to the stored account with a guarded write,
// re-reading the account when another writer got there first.
func (p *Pipeline) applyToAccount(ctx context.Context, accountID int64, tx domain.Transaction, at time.Time) (domain.Account, error) {
	for attempt := 1; ; attempt++ {
		acct, found, err := p.stores.Accounts.Lookup(ctx, accountID)
		if err != nil {
			return domain.Account{}, fmt.Errorf("persist: loading account %d: %w", accountID, err)
		}
		if !found {
			return domain.Account{}, fmt.Errorf("persist: account %d not found", accountID)
		}
		next := acct.Apply(tx, at)
		_, err = p.stores.Accounts.UpdateIf(ctx, next, acct, "balance", "last_synced_on")
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, repository.ErrConflict) || attempt == balanceAttempts {
			return domain.Account{}, fmt.Errorf("persist: updating account %d: %w", accountID, err)
		}
		log := logger.FromContext(ctx)
		log.Debug().
			Int64("account_id", accountID).
			Int("attempt", attempt).
			Msg("Account changed concurrently, retrying balance update")
	}
}

func (p *Pipeline) rollback(ctx context.Context, tx domain.Transaction) {
	if !p.stores.Transactions.Delete(ctx, tx.ID) {
		log := logger.FromContext(ctx)
		log.Error().
			Int64("account_id", tx.AccountID).
			Str("transaction_id", tx.ID).
			Msg("Transaction stored without its balance update")
	}
}
