package domain

import "fmt"

// AccountType is the kind of financial holding an Account represents.
type AccountType string

const (
	AccountCash       AccountType = "CASH"
	AccountBank       AccountType = "BANK"
	AccountLoan       AccountType = "LOAN"
	AccountCreditCard AccountType = "CREDIT_CARD"
)

// IsLiability reports whether the account tracks money owed.
func (t AccountType) IsLiability() bool {
	return t == AccountLoan || t == AccountCreditCard
}

// ParseAccountType validates a stored account type.
func ParseAccountType(s string) (AccountType, error) {
	switch t := AccountType(s); t {
	case AccountCash, AccountBank, AccountLoan, AccountCreditCard:
		return t, nil
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

// TransactionType is the direction of a transaction relative to its account.
type TransactionType string

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

// Sign is +1 for income and -1 for expense.
func (t TransactionType) Sign() int64 {
	if t == Income {
		return 1
	}
	return -1
}

// PaymentMode is how money moved.
type PaymentMode string

const (
	PaymentCash           PaymentMode = "CASH"
	PaymentBankTransfer   PaymentMode = "BANK_TRANSFER"
	PaymentMobileTransfer PaymentMode = "MOBILE_TRANSFER"
	PaymentCheque         PaymentMode = "CHEQUE"
	PaymentATM            PaymentMode = "ATM"
)

// PaymentModes lists every valid payment mode.
var PaymentModes = []PaymentMode{
	PaymentCash,
	PaymentBankTransfer,
	PaymentMobileTransfer,
	PaymentCheque,
	PaymentATM,
}

// ParsePaymentMode maps a name onto the closed set.
func ParsePaymentMode(s string) (PaymentMode, bool) {
	for _, m := range PaymentModes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// TransactionState is the settlement state of a transaction.
type TransactionState string

const (
	StateCompleted TransactionState = "COMPLETED"
	StatePending   TransactionState = "PENDING"
)

// Category is the closed set of transaction categories.
type Category string

const (
	CategorySalary            Category = "SALARY"
	CategoryFood              Category = "FOOD"
	CategoryFuel              Category = "FUEL"
	CategoryPhoneRecharge     Category = "PHONE_RECHARGE"
	CategoryBroadbandRecharge Category = "BROADBAND_RECHARGE"
	CategoryDividend          Category = "DIVIDEND"
	CategoryInterestReceived  Category = "INTEREST_RECEIVED"
	CategoryEMI               Category = "EMI"
	CategoryOther             Category = "OTHER"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategorySalary,
	CategoryFood,
	CategoryFuel,
	CategoryPhoneRecharge,
	CategoryBroadbandRecharge,
	CategoryDividend,
	CategoryInterestReceived,
	CategoryEMI,
	CategoryOther,
}

// ParseCategory maps a stored or model-produced name onto the closed set.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return CategoryOther, false
}

// SyncStatus is the state of a sync run.
type SyncStatus string

const (
	SyncRunning   SyncStatus = "RUNNING"
	SyncCompleted SyncStatus = "COMPLETED"
	SyncFailed    SyncStatus = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s SyncStatus) Terminal() bool {
	return s == SyncCompleted || s == SyncFailed
}

// DefaultCurrency is used when an alert carries no currency code.
const DefaultCurrency = "INR"
