package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/acquire"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/processor"
	"github.com/dvloznov/finance-reconciler/internal/synctracker"
)

// ErrNoAcquirer is returned by ImportStatement when no document store is
// configured.
var ErrNoAcquirer = errors.New("statement import is not configured")

// Statement is an exported account statement.
type Statement struct {
	Entries []StatementEntry `json:"entries"`
}

// StatementEntry is one statement line. Amount is signed: positive money
// moves into the account.
type StatementEntry struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
	PaymentMode string          `json:"payment_mode,omitempty"`
}

// entryNote is the audit snapshot stored with imported transactions.
type entryNote struct {
	Source string `json:"source"`
	Entry  int    `json:"entry"`
}

// Draft converts the entry into a draft for the account.
func (e StatementEntry) Draft(accountID int64, ref string, index int) (domain.Draft, error) {
	day, err := civil.ParseDate(strings.TrimSpace(e.Date))
	if err != nil {
		return domain.Draft{}, fmt.Errorf("entry %d: invalid date %q: %w", index, e.Date, err)
	}
	if e.Amount.IsZero() {
		return domain.Draft{}, fmt.Errorf("entry %d: zero amount", index)
	}

	typ := domain.Income
	if e.Amount.IsNegative() {
		typ = domain.Expense
	}
	category, _ := domain.ParseCategory(strings.ToUpper(strings.TrimSpace(e.Category)))
	mode := domain.PaymentBankTransfer
	if name := strings.ToUpper(strings.TrimSpace(e.PaymentMode)); name != "" {
		var ok bool
		if mode, ok = domain.ParsePaymentMode(name); !ok {
			return domain.Draft{}, fmt.Errorf("entry %d: unknown payment mode %q", index, e.PaymentMode)
		}
	}
	note, err := json.Marshal(entryNote{Source: ref, Entry: index})
	if err != nil {
		return domain.Draft{}, fmt.Errorf("entry %d: encoding note: %w", index, err)
	}

	return domain.Draft{
		AccountID:   accountID,
		Date:        day.In(processor.IST).UTC(),
		Amount:      e.Amount.Abs(),
		Type:        typ,
		Category:    category,
		Labels:      e.Labels,
		Note:        string(note),
		Description: strings.TrimSpace(e.Description),
		PaymentMode: mode,
		Currency:    domain.DefaultCurrency,
		State:       domain.StateCompleted,
	}, nil
}

// ImportStatement acquires a statement document and persists its entries
// through the same gate as mail alerts. Acquisition is bounded by the
// configured timeout; a timeout marks the statement source FAILED. Bad
// entries are reported and skipped.
func (p *Pipeline) ImportStatement(ctx context.Context, accountID int64, ref string) (Report, error) {
	if p.acquirer == nil {
		return Report{}, ErrNoAcquirer
	}
	log := logger.FromContext(ctx).With().Int64("account_id", accountID).Str("ref", ref).Logger()
	ctx = logger.WithContext(ctx, log)

	if _, ok := p.stores.Accounts.Find(ctx, accountID); !ok {
		return Report{}, fmt.Errorf("ImportStatement: account %d not found", accountID)
	}

	var report Report
	err := p.tracker.Track(ctx, synctracker.StatementSource(accountID), func(ctx context.Context) error {
		data, err := acquire.FetchWithTimeout(ctx, p.acquirer, ref, p.cfg.AcquireTimeout)
		if err != nil {
			return fmt.Errorf("ImportStatement: acquiring %s: %w", ref, err)
		}

		var st Statement
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("ImportStatement: decoding %s: %w", ref, err)
		}

		for i, entry := range st.Entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := Result{Entry: i, AccountID: accountID, Sender: ref}
			draft, err := entry.Draft(accountID, ref, i)
			if err != nil {
				res.Outcome, res.Err = Failed, err
				log.Warn().Err(err).Int("entry", i).Msg("Skipping statement entry")
				report.Add(res)
				continue
			}
			res.Outcome, res.TransactionID, res.Err = p.persist(ctx, accountID, draft, draft.Date)
			if res.Err != nil {
				log.Warn().Err(res.Err).Int("entry", i).Msg("Statement entry not persisted")
			}
			report.Add(res)
		}
		return nil
	})
	log.Info().Interface("outcomes", report.Counts()).Msg("Statement import finished")
	return report, err
}
