// Package processor turns bank alert text into transaction drafts. Each
// institution is described by rule sets (patterns, cues and classification
// tables held as data) that one generic extraction algorithm consumes.
package processor

import (
	"regexp"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// IST is the reference time of Indian bank alerts.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// Polarity maps the lexical direction of an alert to a transaction type.
type Polarity struct {
	Credit domain.TransactionType
	Debit  domain.TransactionType
}

var (
	// DirectPolarity is used for alerts issued on the account itself.
	DirectPolarity = Polarity{Credit: domain.Income, Debit: domain.Expense}
	// FundingPolarity is used for alerts issued on the account that pays
	// into a liability: money leaving the funding account reduces the debt.
	FundingPolarity = Polarity{Credit: domain.Expense, Debit: domain.Income}
)

// ModeRule selects a payment mode when Contains occurs in the narration.
type ModeRule struct {
	Contains string
	Mode     domain.PaymentMode
}

// Marker gates a rule set on a literal in the alert text. Labels replace
// the derived labels when the marker matches.
type Marker struct {
	Contains string
	Labels   []string
}

// RuleSet is the extraction recipe for one institution and account type.
// Pattern lists are tried in order; the first capture group is the value,
// or the whole match when a pattern has no group.
type RuleSet struct {
	Amount      []*regexp.Regexp
	Account     []*regexp.Regexp
	Date        []*regexp.Regexp
	Description []*regexp.Regexp

	CreditCues []string
	DebitCues  []string

	DateLayouts []string
	// Location is the zone alert timestamps are written in.
	Location *time.Location
	// DateFallback uses the message time when no date can be extracted.
	DateFallback bool

	LabelSeparator string
	DefaultLabels  []string

	Category    domain.Category
	Polarity    Polarity
	PaymentMode []ModeRule
	DefaultMode domain.PaymentMode

	// Markers, when set, require one of them in the text.
	Markers []Marker
	// RequireAccountNumber requires the stored account number in the text.
	RequireAccountNumber bool
	// MatchAccountSuffix applies the masked suffix guard to non-bank
	// accounts. Bank accounts are always guarded.
	MatchAccountSuffix bool
	// FixedDescription replaces the extracted narration.
	FixedDescription string
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}
