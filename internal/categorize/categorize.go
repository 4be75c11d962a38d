// Package categorize assigns a category to drafts that extraction left as
// OTHER.
package categorize

import (
	"context"
	"strings"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// Categorizer picks a category for a draft. It returns CategoryOther when
// it has no opinion and never fails.
type Categorizer interface {
	Categorize(ctx context.Context, d domain.Draft) domain.Category
}

// Apply runs c on drafts whose category is OTHER. A nil categorizer leaves
// the draft unchanged.
func Apply(ctx context.Context, c Categorizer, d domain.Draft) domain.Draft {
	if c == nil || (d.Category != "" && d.Category != domain.CategoryOther) {
		return d
	}
	if cat := c.Categorize(ctx, d); cat != "" {
		d.Category = cat
	}
	return d
}

// Chain asks each categorizer in turn until one has an opinion.
type Chain []Categorizer

// Categorize implements Categorizer.
func (ch Chain) Categorize(ctx context.Context, d domain.Draft) domain.Category {
	for _, c := range ch {
		if cat := c.Categorize(ctx, d); cat != "" && cat != domain.CategoryOther {
			return cat
		}
	}
	return domain.CategoryOther
}

// Rule assigns Category when any keyword occurs in the draft narration.
type Rule struct {
	Keywords []string
	Category domain.Category
}

// Keywords matches rules in order against the description and labels,
// ignoring case.
type Keywords []Rule

// DefaultKeywords covers merchants commonly seen in alert narrations.
var DefaultKeywords = Keywords{
	{Keywords: []string{"SALARY", "SAL CREDIT", "PAYROLL"}, Category: domain.CategorySalary},
	{Keywords: []string{"SWIGGY", "ZOMATO", "RESTAURANT", "CAFE", "DOMINOS"}, Category: domain.CategoryFood},
	{Keywords: []string{"PETROL", "FUEL", "HPCL", "BPCL", "INDIAN OIL", "IOCL"}, Category: domain.CategoryFuel},
	{Keywords: []string{"JIO PREPAID", "AIRTEL PREPAID", "RECHARGE", "VI PREPAID"}, Category: domain.CategoryPhoneRecharge},
	{Keywords: []string{"BROADBAND", "FIBER", "ACT FIBERNET", "AIRTEL XSTREAM"}, Category: domain.CategoryBroadbandRecharge},
	{Keywords: []string{"DIVIDEND", "DIV "}, Category: domain.CategoryDividend},
	{Keywords: []string{"INT.PD", "INTEREST", "INT CREDIT"}, Category: domain.CategoryInterestReceived},
	{Keywords: []string{"EMI", "LOAN"}, Category: domain.CategoryEMI},
}

// Categorize implements Categorizer.
func (k Keywords) Categorize(_ context.Context, d domain.Draft) domain.Category {
	haystack := strings.ToUpper(d.Description + " " + strings.Join(d.Labels, " "))
	for _, r := range k {
		for _, kw := range r.Keywords {
			if strings.Contains(haystack, strings.ToUpper(kw)) {
				return r.Category
			}
		}
	}
	return domain.CategoryOther
}
