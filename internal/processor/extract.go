package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// ErrNoMatch reports that a message is not a transaction alert for the
// account. It is an expected outcome, not a failure.
var ErrNoMatch = errors.New("no transaction match")

// Note is the audit snapshot of the raw extracted fields stored with a
// transaction.
type Note struct {
	TransactionDate    string `json:"transactionDate"`
	TransactionAccount string `json:"transactionAccount"`
	TransactionInfo    string `json:"transactionInfo"`
	TransactionAmount  string `json:"transactionAmount"`
}

func noMatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNoMatch, fmt.Sprintf(format, args...))
}

// NormalizeText removes line breaks and collapses runs of whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// take finds the first pattern matching text and returns the captured value
// and the text with the whole match removed.
func take(text string, res []*regexp.Regexp) (string, string, bool) {
	for _, re := range res {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		value := text[loc[0]:loc[1]]
		if len(loc) >= 4 && loc[2] >= 0 {
			value = text[loc[2]:loc[3]]
		}
		rest := text[:loc[0]] + " " + text[loc[1]:]
		return strings.TrimSpace(value), rest, true
	}
	return "", text, false
}

// direction returns the type for the first cue occurring in text.
func direction(rules *RuleSet, text string) (domain.TransactionType, bool) {
	lower := strings.ToLower(text)
	first := func(cues []string) int {
		best := -1
		for _, c := range cues {
			if i := strings.Index(lower, strings.ToLower(c)); i >= 0 && (best < 0 || i < best) {
				best = i
			}
		}
		return best
	}
	credit, debit := first(rules.CreditCues), first(rules.DebitCues)
	switch {
	case credit < 0 && debit < 0:
		return "", false
	case credit < 0:
		return rules.Polarity.Debit, true
	case debit < 0:
		return rules.Polarity.Credit, true
	case debit < credit:
		return rules.Polarity.Debit, true
	default:
		return rules.Polarity.Credit, true
	}
}

// MaskedSuffix strips mask characters from an extracted account reference.
func MaskedSuffix(ref string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'X', 'x', '*':
			return -1
		}
		return r
	}, ref)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
}

func parseDate(rules *RuleSet, raw string) (time.Time, bool) {
	loc := rules.Location
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "IST"))
	for _, layout := range rules.DateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func isVendorToken(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// labels splits the narration and drops empty and purely numeric tokens.
func labels(rules *RuleSet, desc string) []string {
	out := []string{}
	if rules.LabelSeparator != "" && desc != "" {
		for _, tok := range strings.Split(desc, rules.LabelSeparator) {
			tok = strings.TrimSpace(tok)
			if tok == "" || isVendorToken(tok) {
				continue
			}
			out = append(out, tok)
		}
	}
	if len(out) == 0 {
		out = append(out, rules.DefaultLabels...)
	}
	return out
}

func paymentMode(rules *RuleSet, desc, text string) domain.PaymentMode {
	haystack := desc
	if haystack == "" {
		haystack = text
	}
	for _, m := range rules.PaymentMode {
		if strings.Contains(haystack, m.Contains) {
			return m.Mode
		}
	}
	return rules.DefaultMode
}

// Extract applies the rule set to alert text for one account. Each step
// removes its matched span before the next runs. received is the message
// time, used when the rule set allows a date fallback.
func Extract(rules *RuleSet, text string, account domain.Account, received time.Time) (domain.Draft, error) {
	text = NormalizeText(text)
	work := text

	var markerLabels []string
	if len(rules.Markers) > 0 {
		found := false
		for _, m := range rules.Markers {
			if strings.Contains(text, m.Contains) {
				markerLabels = m.Labels
				found = true
				break
			}
		}
		if !found {
			return domain.Draft{}, noMatch("no marker")
		}
	}
	if rules.RequireAccountNumber && (account.Number == "" || !strings.Contains(text, account.Number)) {
		return domain.Draft{}, noMatch("account number %q not in text", account.Number)
	}

	typ, ok := direction(rules, text)
	if !ok {
		return domain.Draft{}, noMatch("no credit or debit cue")
	}

	rawAmount, work, ok := take(work, rules.Amount)
	if !ok {
		return domain.Draft{}, noMatch("no amount")
	}
	amount, err := parseAmount(rawAmount)
	if err != nil || !amount.IsPositive() {
		return domain.Draft{}, noMatch("bad amount %q", rawAmount)
	}

	rawAccount, work, found := take(work, rules.Account)
	if account.Type == domain.AccountBank || rules.MatchAccountSuffix {
		suffix := MaskedSuffix(rawAccount)
		if !found || suffix == "" || !strings.HasSuffix(account.Number, suffix) {
			return domain.Draft{}, noMatch("account %q does not end with %q", account.Number, suffix)
		}
	}
	if rawAccount == "" && rules.RequireAccountNumber {
		rawAccount = account.Number
	}

	rawDate, work, found := take(work, rules.Date)
	var date time.Time
	parsed := false
	if found {
		date, parsed = parseDate(rules, rawDate)
	}
	if !parsed {
		if !rules.DateFallback || received.IsZero() {
			return domain.Draft{}, noMatch("no parseable date in %q", rawDate)
		}
		date = received.UTC()
	}

	desc, _, _ := take(work, rules.Description)
	if rules.FixedDescription != "" {
		desc = rules.FixedDescription
	}

	lbls := labels(rules, desc)
	if len(markerLabels) > 0 {
		lbls = append([]string(nil), markerLabels...)
	}

	note, err := json.Marshal(Note{
		TransactionDate:    rawDate,
		TransactionAccount: rawAccount,
		TransactionInfo:    desc,
		TransactionAmount:  rawAmount,
	})
	if err != nil {
		return domain.Draft{}, fmt.Errorf("Extract: encoding note: %w", err)
	}

	category := rules.Category
	if category == "" {
		category = domain.CategoryOther
	}

	return domain.Draft{
		AccountID:   account.ID,
		Date:        date,
		Amount:      amount,
		Type:        typ,
		Category:    category,
		Labels:      lbls,
		Note:        string(note),
		Description: desc,
		PaymentMode: paymentMode(rules, desc, text),
		Currency:    domain.DefaultCurrency,
		State:       domain.StateCompleted,
	}, nil
}
