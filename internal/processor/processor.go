package processor

import (
	"strings"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// Processor produces a draft from one alert for one account. It is a pure
// function of its inputs.
type Processor interface {
	Institution() Institution
	// Process returns the draft and true when the alert is a transaction
	// for the account. received is the message time.
	Process(text, sender string, account domain.Account, received time.Time) (domain.Draft, bool)
}

// InstitutionProcessor applies an institution's rule sets, chosen by the
// account type.
type InstitutionProcessor struct {
	institution Institution
	rules       map[domain.AccountType]*RuleSet
}

// NewInstitutionProcessor creates a processor for the institution.
func NewInstitutionProcessor(inst Institution, rules map[domain.AccountType]*RuleSet) *InstitutionProcessor {
	return &InstitutionProcessor{institution: inst, rules: rules}
}

// Institution implements Processor.
func (p *InstitutionProcessor) Institution() Institution { return p.institution }

// Explain runs the extraction and returns the reason for a non-match.
func (p *InstitutionProcessor) Explain(text, sender string, account domain.Account, received time.Time) (domain.Draft, error) {
	if !strings.Contains(strings.ToLower(sender), p.institution.AlertEmail) {
		return domain.Draft{}, noMatch("sender %q is not %s", sender, p.institution.AlertEmail)
	}
	rules, ok := p.rules[account.Type]
	if !ok {
		return domain.Draft{}, noMatch("%s has no rules for %s accounts", p.institution.Code, account.Type)
	}
	return Extract(rules, text, account, received)
}

// Process implements Processor.
func (p *InstitutionProcessor) Process(text, sender string, account domain.Account, received time.Time) (domain.Draft, bool) {
	d, err := p.Explain(text, sender, account, received)
	if err != nil {
		return domain.Draft{}, false
	}
	return d, true
}
