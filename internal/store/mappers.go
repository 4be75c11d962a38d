package store

import (
	"fmt"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/query"
	"github.com/dvloznov/finance-reconciler/internal/repository"
)

// Table names.
const (
	BankTable        = "bank"
	AccountTable     = "account"
	TransactionTable = "account_transaction"
	SyncRunTable     = "sync_tracker"
)

// BankSchema is the allow-list for bank criteria.
var BankSchema = query.Schema{
	Table: BankTable,
	Key:   "id",
	Columns: []query.Column{
		{Name: "id", Kind: query.KindInt},
		{Name: "name", Kind: query.KindString},
		{Name: "alert_email", Kind: query.KindString},
		{Name: "icon", Kind: query.KindString},
		{Name: "primary_color", Kind: query.KindString},
	},
}

// BankMapper maps domain.Bank rows.
type BankMapper struct{}

func (BankMapper) Schema() query.Schema   { return BankSchema }
func (BankMapper) Key(b domain.Bank) any  { return b.ID }
func (BankMapper) Values(b domain.Bank) []any {
	return []any{b.ID, b.Name, b.AlertEmail, b.Icon, b.PrimaryColor}
}

func (BankMapper) FromRow(r repository.Row) (domain.Bank, error) {
	id, err := r.Int64("id")
	if err != nil {
		return domain.Bank{}, err
	}
	return domain.Bank{
		ID:           id,
		Name:         r.String("name"),
		AlertEmail:   r.String("alert_email"),
		Icon:         r.String("icon"),
		PrimaryColor: r.String("primary_color"),
	}, nil
}

// AccountSchema is the allow-list for account criteria.
var AccountSchema = query.Schema{
	Table: AccountTable,
	Key:   "id",
	Columns: []query.Column{
		{Name: "id", Kind: query.KindInt},
		{Name: "type", Kind: query.KindString},
		{Name: "name", Kind: query.KindString},
		{Name: "balance", Kind: query.KindDecimal},
		{Name: "number", Kind: query.KindString},
		{Name: "bank_id", Kind: query.KindInt},
		{Name: "start_date", Kind: query.KindTime},
		{Name: "last_synced_on", Kind: query.KindTime},
		{Name: "search_text", Kind: query.KindString},
	},
}

// AccountMapper maps domain.Account rows. The resolved Bank is not stored.
type AccountMapper struct{}

func (AccountMapper) Schema() query.Schema     { return AccountSchema }
func (AccountMapper) Key(a domain.Account) any { return a.ID }
func (AccountMapper) Values(a domain.Account) []any {
	return []any{
		a.ID,
		string(a.Type),
		a.Name,
		a.Balance,
		a.Number,
		a.BankID,
		a.StartDate,
		a.LastSyncedOn,
		a.SearchText,
	}
}

func (AccountMapper) FromRow(r repository.Row) (domain.Account, error) {
	id, err := r.Int64("id")
	if err != nil {
		return domain.Account{}, err
	}
	typ, err := domain.ParseAccountType(r.String("type"))
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, err)
	}
	balance, err := r.Decimal("balance")
	if err != nil {
		return domain.Account{}, err
	}
	bankID, err := r.NullInt64("bank_id")
	if err != nil {
		return domain.Account{}, err
	}
	start, err := r.Time("start_date")
	if err != nil {
		return domain.Account{}, err
	}
	synced, err := r.NullTime("last_synced_on")
	if err != nil {
		return domain.Account{}, err
	}
	return domain.Account{
		ID:           id,
		Type:         typ,
		Name:         r.String("name"),
		Balance:      balance,
		Number:       r.String("number"),
		BankID:       bankID,
		StartDate:    start,
		LastSyncedOn: synced,
		SearchText:   r.String("search_text"),
	}, nil
}

// TransactionSchema is the allow-list for transaction criteria. Labels are
// stored serialized and cannot be queried.
var TransactionSchema = query.Schema{
	Table: TransactionTable,
	Key:   "transaction_id",
	Columns: []query.Column{
		{Name: "transaction_id", Kind: query.KindString},
		{Name: "account_id", Kind: query.KindInt},
		{Name: "transaction_date", Kind: query.KindTime},
		{Name: "amount", Kind: query.KindDecimal},
		{Name: "category", Kind: query.KindString},
		{Name: "labels", Kind: query.KindLabels},
		{Name: "note", Kind: query.KindString},
		{Name: "description", Kind: query.KindString},
		{Name: "currency", Kind: query.KindString},
		{Name: "payment_mode", Kind: query.KindString},
		{Name: "transaction_type", Kind: query.KindString},
		{Name: "state", Kind: query.KindString},
		{Name: "created_at", Kind: query.KindTime},
	},
}

// TransactionMapper maps domain.Transaction rows and derives their ids from
// content.
type TransactionMapper struct{}

func (TransactionMapper) Schema() query.Schema         { return TransactionSchema }
func (TransactionMapper) Key(t domain.Transaction) any { return t.ID }

// DeriveKey implements repository.KeyDeriver.
func (TransactionMapper) DeriveKey(t domain.Transaction) domain.Transaction {
	return t.DeriveID()
}

func (TransactionMapper) Values(t domain.Transaction) []any {
	return []any{
		t.ID,
		t.AccountID,
		t.Date,
		t.Amount,
		string(t.Category),
		repository.EncodeLabels(t.Labels),
		t.Note,
		t.Description,
		t.Currency,
		string(t.PaymentMode),
		string(t.Type),
		string(t.State),
		t.CreatedAt,
	}
}

func (TransactionMapper) FromRow(r repository.Row) (domain.Transaction, error) {
	accountID, err := r.Int64("account_id")
	if err != nil {
		return domain.Transaction{}, err
	}
	date, err := r.Time("transaction_date")
	if err != nil {
		return domain.Transaction{}, err
	}
	amount, err := r.Decimal("amount")
	if err != nil {
		return domain.Transaction{}, err
	}
	labels, err := r.Labels("labels")
	if err != nil {
		return domain.Transaction{}, err
	}
	created, err := r.Time("created_at")
	if err != nil {
		return domain.Transaction{}, err
	}
	category, _ := domain.ParseCategory(r.String("category"))
	return domain.Transaction{
		ID:          r.String("transaction_id"),
		AccountID:   accountID,
		Date:        date,
		Amount:      amount,
		Category:    category,
		Labels:      labels,
		Note:        r.String("note"),
		Description: r.String("description"),
		Currency:    r.String("currency"),
		PaymentMode: domain.PaymentMode(r.String("payment_mode")),
		Type:        domain.TransactionType(r.String("transaction_type")),
		State:       domain.TransactionState(r.String("state")),
		CreatedAt:   created,
	}, nil
}

// SyncRunSchema is the allow-list for sync tracker criteria.
var SyncRunSchema = query.Schema{
	Table: SyncRunTable,
	Key:   "source",
	Columns: []query.Column{
		{Name: "source", Kind: query.KindString},
		{Name: "run_id", Kind: query.KindString},
		{Name: "status", Kind: query.KindString},
		{Name: "started_at", Kind: query.KindTime},
		{Name: "ended_at", Kind: query.KindTime},
		{Name: "error", Kind: query.KindString},
	},
}

// SyncRunMapper maps domain.SyncRun rows.
type SyncRunMapper struct{}

func (SyncRunMapper) Schema() query.Schema     { return SyncRunSchema }
func (SyncRunMapper) Key(s domain.SyncRun) any { return s.Source }
func (SyncRunMapper) Values(s domain.SyncRun) []any {
	return []any{s.Source, s.RunID, string(s.Status), s.StartedAt, s.EndedAt, s.Error}
}

func (SyncRunMapper) FromRow(r repository.Row) (domain.SyncRun, error) {
	started, err := r.Time("started_at")
	if err != nil {
		return domain.SyncRun{}, err
	}
	ended, err := r.NullTime("ended_at")
	if err != nil {
		return domain.SyncRun{}, err
	}
	return domain.SyncRun{
		Source:    r.String("source"),
		RunID:     r.String("run_id"),
		Status:    domain.SyncStatus(r.String("status")),
		StartedAt: started,
		EndedAt:   ended,
		Error:     r.String("error"),
	}, nil
}
