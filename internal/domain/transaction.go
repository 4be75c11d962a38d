package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// transactionNamespace scopes the name-based UUIDs used as transaction ids.
var transactionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:finance-reconciler:transaction"))

// Transaction is one persisted movement of money on an account.
// Amount is always a magnitude; Type carries the direction.
type Transaction struct {
	ID          string
	AccountID   int64
	Date        time.Time
	Amount      decimal.Decimal
	Category    Category
	Labels      []string
	Note        string
	Description string
	Currency    string
	PaymentMode PaymentMode
	Type        TransactionType
	State       TransactionState
	CreatedAt   time.Time
}

// SignedAmount applies the direction to the magnitude.
func (t Transaction) SignedAmount() decimal.Decimal {
	return t.Amount.Abs().Mul(decimal.NewFromInt(t.Type.Sign()))
}

// TransactionID derives the idempotency key of a transaction. Equal inputs
// always give the same id; any differing input gives a different one.
// Amounts are compared by value, so 1500 and 1500.00 are the same amount.
func TransactionID(accountID int64, amount decimal.Decimal, date time.Time, description string) string {
	var b strings.Builder
	b.WriteString(date.UTC().Format(time.RFC3339Nano))
	b.WriteByte('\x1f')
	b.WriteString(strconv.FormatInt(accountID, 10))
	b.WriteByte('\x1f')
	b.WriteString(amount.Abs().String())
	b.WriteByte('\x1f')
	b.WriteString(normalizeDescription(description))
	return uuid.NewSHA1(transactionNamespace, []byte(b.String())).String()
}

// DeriveID fills ID from the transaction's content.
func (t Transaction) DeriveID() Transaction {
	t.ID = TransactionID(t.AccountID, t.Amount, t.Date, t.Description)
	return t
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Draft is a candidate transaction produced by extraction, before persistence.
type Draft struct {
	AccountID   int64
	Date        time.Time
	Amount      decimal.Decimal
	Type        TransactionType
	Category    Category
	Labels      []string
	Note        string
	Description string
	PaymentMode PaymentMode
	Currency    string
	State       TransactionState
}

// Transaction converts the draft into a transaction with its derived id.
func (d Draft) Transaction(createdAt time.Time) Transaction {
	currency := d.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	state := d.State
	if state == "" {
		state = StateCompleted
	}
	category := d.Category
	if category == "" {
		category = CategoryOther
	}
	labels := d.Labels
	if labels == nil {
		labels = []string{}
	}
	tx := Transaction{
		AccountID:   d.AccountID,
		Date:        d.Date,
		Amount:      d.Amount.Abs(),
		Category:    category,
		Labels:      labels,
		Note:        d.Note,
		Description: d.Description,
		Currency:    currency,
		PaymentMode: d.PaymentMode,
		Type:        d.Type,
		State:       state,
		CreatedAt:   createdAt,
	}
	return tx.DeriveID()
}
