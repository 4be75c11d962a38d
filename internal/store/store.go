// Package store binds the domain entities to generic repositories and owns
// the schema migrations for every supported backend.
package store

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-reconciler/internal/criteria"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/repository"
)

// Stores bundles the repositories the pipeline works with. All of them share
// one executor.
type Stores struct {
	Banks        *repository.Repository[domain.Bank]
	Accounts     *repository.Repository[domain.Account]
	Transactions *repository.Repository[domain.Transaction]
	SyncRuns     *repository.Repository[domain.SyncRun]
}

// New creates the repositories on exec.
func New(exec repository.Executor) *Stores {
	return &Stores{
		Banks:        repository.New[domain.Bank](exec, BankMapper{}),
		Accounts:     repository.New[domain.Account](exec, AccountMapper{}),
		Transactions: repository.New[domain.Transaction](exec, TransactionMapper{}),
		SyncRuns:     repository.New[domain.SyncRun](exec, SyncRunMapper{}),
	}
}

// AccountWithBank loads an account and resolves its owning bank.
func (s *Stores) AccountWithBank(ctx context.Context, id int64) (domain.Account, error) {
	acct, ok := s.Accounts.Find(ctx, id)
	if !ok {
		return domain.Account{}, fmt.Errorf("AccountWithBank: account %d: %w", id, repository.ErrNotFound)
	}
	if acct.BankID != nil {
		if bank, ok := s.Banks.Find(ctx, *acct.BankID); ok {
			acct.Bank = &bank
		}
	}
	return acct, nil
}

// BankByAlertEmail returns the bank whose alert address is email.
func (s *Stores) BankByAlertEmail(ctx context.Context, email string) (domain.Bank, bool, error) {
	banks, err := s.Banks.FindAll(ctx, criteria.Where("alert_email", email))
	if err != nil {
		return domain.Bank{}, false, err
	}
	if len(banks) == 0 {
		return domain.Bank{}, false, nil
	}
	return banks[0], true, nil
}

// AccountsOfBank returns the bank's accounts ordered by id, with Bank set.
func (s *Stores) AccountsOfBank(ctx context.Context, bank domain.Bank) ([]domain.Account, error) {
	c := criteria.Where("bank_id", bank.ID)
	c.Sorts = []criteria.Sort{{Key: "id", Ascending: true}}
	accts, err := s.Accounts.FindAll(ctx, c)
	if err != nil {
		return nil, err
	}
	for i := range accts {
		b := bank
		accts[i].Bank = &b
	}
	return accts, nil
}
