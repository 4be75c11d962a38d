package processor

import "github.com/dvloznov/finance-reconciler/internal/domain"

// Institution identifies an alert sender.
type Institution struct {
	Code       string
	Name       string
	AlertEmail string
}

var (
	Axis   = Institution{Code: "AXIS", Name: "Axis Bank", AlertEmail: "alerts@axisbank.com"}
	PNB    = Institution{Code: "PNB", Name: "Punjab National Bank", AlertEmail: "pnbealert@punjabnationalbank.in"}
	SBI    = Institution{Code: "SBI", Name: "State Bank of India", AlertEmail: "alerts@sbibank.com"}
	LICHFL = Institution{Code: "LICHFL", Name: "LIC Housing Finance", AlertEmail: "alerts@lichousing.com"}
)

// Loan markers found in funding account alerts, with the labels of the
// lender they identify.
var (
	LICHFLMarker = Marker{Contains: "LICHousingFinanceLtd", Labels: []string{"LIC HFL", "EMI", "Loan Account"}}
	SBIMarker    = Marker{Contains: "ACH-DR-RACPC II INDORE-NCA", Labels: []string{"SBI", "EMI", "Loan Account"}}
)

const loanInfo = "Credited to Loan Account"

var (
	rupeeAmount  = `(?:Rs\.?|INR)\s*(\d[\d,]*(?:\.\d+)?)`
	axisDate     = `\d{2}-\d{2}-\d{2,4}(?:,?\s+\d{2}:\d{2}(?::\d{2})?)?`
	axisLayouts  = []string{"02-01-2006, 15:04:05", "02-01-2006 15:04:05", "02-01-2006, 15:04", "02-01-2006 15:04", "02-01-06, 15:04:05", "02-01-06 15:04:05", "02-01-2006", "02-01-06"}
	bankingCues  = []string{"credited"}
	spendingCues = []string{"debited"}
)

// AxisRules extracts Axis Bank savings, card and loan evidence.
func AxisRules() map[domain.AccountType]*RuleSet {
	upiModes := []ModeRule{{Contains: "UPI", Mode: domain.PaymentMobileTransfer}}
	return map[domain.AccountType]*RuleSet{
		domain.AccountBank: {
			Amount:         patterns(rupeeAmount),
			Account:        patterns(`(?i)a/c\s*no\.?\s*([Xx*]*\d+)`),
			Date:           patterns(axisDate),
			Description:    patterns(`(?i)Info\s*[-:.]?\s*(\S+)`),
			CreditCues:     bankingCues,
			DebitCues:      spendingCues,
			DateLayouts:    axisLayouts,
			Location:       IST,
			DateFallback:   true,
			LabelSeparator: "/",
			Category:       domain.CategoryOther,
			Polarity:       DirectPolarity,
			PaymentMode:    upiModes,
			DefaultMode:    domain.PaymentBankTransfer,
		},
		domain.AccountCreditCard: {
			Amount:             patterns(rupeeAmount),
			Account:            patterns(`(?i)card\s*(?:no\.?)?\s*([Xx*]+\d+)`),
			Date:               patterns(axisDate),
			Description:        patterns(`(?i)\bat\s+(.+?)\s+on\b`, `(?i)Info\s*[-:.]?\s*(\S+)`),
			CreditCues:         []string{"credited", "received", "refund"},
			DebitCues:          []string{"spent", "debited"},
			DateLayouts:        axisLayouts,
			Location:           IST,
			DateFallback:       true,
			LabelSeparator:     "/",
			Category:           domain.CategoryOther,
			Polarity:           DirectPolarity,
			PaymentMode:        upiModes,
			DefaultMode:        domain.PaymentBankTransfer,
			MatchAccountSuffix: true,
		},
		domain.AccountLoan: {
			Amount:               patterns(rupeeAmount),
			Date:                 patterns(axisDate),
			CreditCues:           bankingCues,
			DebitCues:            spendingCues,
			DateLayouts:          axisLayouts,
			Location:             IST,
			DateFallback:         true,
			Category:             domain.CategoryEMI,
			Polarity:             FundingPolarity,
			DefaultMode:          domain.PaymentBankTransfer,
			Markers:              []Marker{LICHFLMarker, SBIMarker},
			RequireAccountNumber: true,
			FixedDescription:     loanInfo,
		},
	}
}

// PNBRules extracts Punjab National Bank savings alerts.
func PNBRules() map[domain.AccountType]*RuleSet {
	return map[domain.AccountType]*RuleSet{
		domain.AccountBank: {
			Amount:         patterns(`Rs\.?\s?(\d[\d,]*(?:\.\d+)?)`),
			Account:        patterns(`Ac (\w+)`),
			Date:           patterns(`\d+-\d+-\d+(?:\s+\d+:\d+:\d+)?`),
			Description:    patterns(`thru (.*?) Aval`),
			CreditCues:     bankingCues,
			DebitCues:      spendingCues,
			DateLayouts:    []string{"02-01-2006 15:04:05", "2-1-2006 15:04:05", "02-01-2006", "2-1-2006", "02-01-06"},
			Location:       IST,
			LabelSeparator: "/",
			Category:       domain.CategoryOther,
			Polarity:       DirectPolarity,
			PaymentMode:    []ModeRule{{Contains: "NEFT", Mode: domain.PaymentBankTransfer}},
			DefaultMode:    domain.PaymentATM,
		},
	}
}

func lenderRules(lender string) *RuleSet {
	return &RuleSet{
		Amount:             patterns(rupeeAmount),
		Account:            patterns(`(?i)(?:loan\s*)?a/?c(?:count)?\s*(?:no\.?)?\s*([Xx*]+\d+)`),
		Date:               patterns(`\d{2}[-/]\d{2}[-/]\d{4}`, `\d{2}-[A-Za-z]{3}-\d{4}`),
		CreditCues:         []string{"credited", "received"},
		DebitCues:          []string{"debited", "disbursed"},
		DateLayouts:        []string{"02-01-2006", "02/01/2006", "02-Jan-2006"},
		Location:           IST,
		DateFallback:       true,
		DefaultLabels:      []string{lender, "EMI", "Loan Account"},
		Category:           domain.CategoryEMI,
		Polarity:           DirectPolarity,
		DefaultMode:        domain.PaymentBankTransfer,
		MatchAccountSuffix: true,
		FixedDescription:   loanInfo,
	}
}

// SBIRules extracts State Bank of India home loan alerts.
func SBIRules() map[domain.AccountType]*RuleSet {
	return map[domain.AccountType]*RuleSet{domain.AccountLoan: lenderRules("SBI")}
}

// LICHFLRules extracts LIC Housing Finance loan alerts.
func LICHFLRules() map[domain.AccountType]*RuleSet {
	return map[domain.AccountType]*RuleSet{domain.AccountLoan: lenderRules("LIC HFL")}
}
