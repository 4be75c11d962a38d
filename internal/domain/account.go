package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bank is an institution that sends alert mails.
type Bank struct {
	ID           int64
	Name         string
	AlertEmail   string
	Icon         string
	PrimaryColor string
}

// Account is a financial holding whose balance the pipeline keeps current.
type Account struct {
	ID           int64
	Type         AccountType
	Name         string
	Balance      decimal.Decimal
	Number       string
	BankID       *int64
	StartDate    time.Time
	LastSyncedOn *time.Time
	SearchText   string

	// Bank is resolved from BankID by callers that need it; it is not stored.
	Bank *Bank
}

// SearchTokens splits the comma separated search text into non-empty tokens.
func (a Account) SearchTokens() []string {
	var tokens []string
	for _, tok := range strings.Split(a.SearchText, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// MatchesText reports whether any search token occurs in text.
func (a Account) MatchesText(text string) bool {
	for _, tok := range a.SearchTokens() {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

// Apply adds the transaction's signed amount to the balance and moves the
// last-synced stamp forward to at (never backwards).
func (a Account) Apply(tx Transaction, at time.Time) Account {
	a.Balance = a.Balance.Add(tx.SignedAmount())
	if a.LastSyncedOn == nil || at.After(*a.LastSyncedOn) {
		t := at
		a.LastSyncedOn = &t
	}
	return a
}

// SyncRun is the status of the latest sync for one source.
type SyncRun struct {
	Source    string
	RunID     string
	Status    SyncStatus
	StartedAt time.Time
	EndedAt   *time.Time
	Error     string
}
