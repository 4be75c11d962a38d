package processor

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

var received = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func ignoreNote() cmp.Option { return cmpopts.IgnoreFields(domain.Draft{}, "Note") }

func TestInstitutionProcessor_Process(t *testing.T) {
	axis := NewInstitutionProcessor(Axis, AxisRules())
	pnb := NewInstitutionProcessor(PNB, PNBRules())
	sbi := NewInstitutionProcessor(SBI, SBIRules())

	savings := domain.Account{ID: 1, Type: domain.AccountBank, Number: "918010041234"}
	pnbSavings := domain.Account{ID: 2, Type: domain.AccountBank, Number: "0412000105678"}
	card := domain.Account{ID: 3, Type: domain.AccountCreditCard, Number: "5555444433334321"}
	funding := domain.Account{ID: 4, Type: domain.AccountLoan, Number: "40512345678"}
	sbiLoan := domain.Account{ID: 5, Type: domain.AccountLoan, Number: "3333337890"}

	tests := []struct {
		name      string
		processor *InstitutionProcessor
		text      string
		sender    string
		account   domain.Account
		want      domain.Draft
		wantMatch bool
	}{
		{
			name:      "axis savings credit over upi",
			processor: axis,
			text:      "Rs.1500.00 credited to a/c no. XX1234 on 05-01-2024, 10:20:30 IST. Info- UPI/123456/merchant",
			sender:    "alerts@axisbank.com",
			account:   savings,
			want: domain.Draft{
				AccountID:   1,
				Date:        time.Date(2024, 1, 5, 4, 50, 30, 0, time.UTC),
				Amount:      decimal.RequireFromString("1500.00"),
				Type:        domain.Income,
				Category:    domain.CategoryOther,
				Labels:      []string{"UPI", "merchant"},
				Description: "UPI/123456/merchant",
				PaymentMode: domain.PaymentMobileTransfer,
				Currency:    domain.DefaultCurrency,
				State:       domain.StateCompleted,
			},
			wantMatch: true,
		},
		{
			name:      "axis savings suffix mismatch",
			processor: axis,
			text:      "Rs.1500.00 credited to a/c no. XX9999 on 05-01-2024, 10:20:30 IST. Info- UPI/123456/merchant",
			sender:    "alerts@axisbank.com",
			account:   savings,
		},
		{
			name:      "wrong sender",
			processor: axis,
			text:      "Rs.1500.00 credited to a/c no. XX1234 on 05-01-2024, 10:20:30 IST. Info- UPI/123456/merchant",
			sender:    "alerts@otherbank.com",
			account:   savings,
		},
		{
			name:      "no direction cue",
			processor: axis,
			text:      "Your statement for a/c no. XX1234 is ready. Rs.0 due.",
			sender:    "alerts@axisbank.com",
			account:   savings,
		},
		{
			name:      "pnb neft debit",
			processor: pnb,
			text:      "Your Ac XXXXXXXX5678 is debited with Rs.500.00 on 05-01-2024 10:20:30 thru NEFT/ABC Corp/778899 Aval Bal Rs.1000.00",
			sender:    "PNB <pnbealert@punjabnationalbank.in>",
			account:   pnbSavings,
			want: domain.Draft{
				AccountID:   2,
				Date:        time.Date(2024, 1, 5, 4, 50, 30, 0, time.UTC),
				Amount:      decimal.RequireFromString("500"),
				Type:        domain.Expense,
				Category:    domain.CategoryOther,
				Labels:      []string{"NEFT", "ABC Corp"},
				Description: "NEFT/ABC Corp/778899",
				PaymentMode: domain.PaymentBankTransfer,
				Currency:    domain.DefaultCurrency,
				State:       domain.StateCompleted,
			},
			wantMatch: true,
		},
		{
			name:      "pnb atm withdrawal",
			processor: pnb,
			text:      "Your Ac XXXXXXXX5678 is debited with Rs.2,000 on 06-01-2024 11:00:00 thru ATM/Delhi Aval Bal Rs.1000.00",
			sender:    "pnbealert@punjabnationalbank.in",
			account:   pnbSavings,
			want: domain.Draft{
				AccountID:   2,
				Date:        time.Date(2024, 1, 6, 5, 30, 0, 0, time.UTC),
				Amount:      decimal.RequireFromString("2000"),
				Type:        domain.Expense,
				Category:    domain.CategoryOther,
				Labels:      []string{"ATM", "Delhi"},
				Description: "ATM/Delhi",
				PaymentMode: domain.PaymentATM,
				Currency:    domain.DefaultCurrency,
				State:       domain.StateCompleted,
			},
			wantMatch: true,
		},
		{
			name:      "pnb without date has no fallback",
			processor: pnb,
			text:      "Your Ac XXXXXXXX5678 is debited with Rs.2,000 thru ATM/Delhi Aval Bal Rs.1000.00",
			sender:    "pnbealert@punjabnationalbank.in",
			account:   pnbSavings,
		},
		{
			name:      "axis card spend falls back to message time",
			processor: axis,
			text:      "INR 499.00 spent on card no. XX4321 at AMAZON on your Axis Bank credit card.",
			sender:    "alerts@axisbank.com",
			account:   card,
			want: domain.Draft{
				AccountID:   3,
				Date:        received,
				Amount:      decimal.RequireFromString("499"),
				Type:        domain.Expense,
				Category:    domain.CategoryOther,
				Labels:      []string{"AMAZON"},
				Description: "AMAZON",
				PaymentMode: domain.PaymentBankTransfer,
				Currency:    domain.DefaultCurrency,
				State:       domain.StateCompleted,
			},
			wantMatch: true,
		},
		{
			name:      "axis emi debit reduces the loan",
			processor: axis,
			text:      "INR 25,000.00 debited from A/c no. XX1234 on 10-01-2024 for ACH-DR-RACPC II INDORE-NCA 40512345678.",
			sender:    "alerts@axisbank.com",
			account:   funding,
			want: domain.Draft{
				AccountID:   4,
				Date:        time.Date(2024, 1, 9, 18, 30, 0, 0, time.UTC),
				Amount:      decimal.RequireFromString("25000"),
				Type:        domain.Income,
				Category:    domain.CategoryEMI,
				Labels:      []string{"SBI", "EMI", "Loan Account"},
				Description: loanInfo,
				PaymentMode: domain.PaymentBankTransfer,
				Currency:    domain.DefaultCurrency,
				State:       domain.StateCompleted,
			},
			wantMatch: true,
		},
		{
			name:      "axis emi without marker",
			processor: axis,
			text:      "INR 25,000.00 debited from A/c no. XX1234 on 10-01-2024 for RENT 40512345678.",
			sender:    "alerts@axisbank.com",
			account:   funding,
		},
		{
			name:      "axis emi for another loan",
			processor: axis,
			text:      "INR 25,000.00 debited from A/c no. XX1234 on 10-01-2024 for ACH-DR-RACPC II INDORE-NCA 99999999.",
			sender:    "alerts@axisbank.com",
			account:   funding,
		},
		{
			name:      "sbi lender credit",
			processor: sbi,
			text:      "Your Loan A/c XX7890 has been credited with Rs. 30,000.00 on 15-02-2024.",
			sender:    "alerts@sbibank.com",
			account:   sbiLoan,
			want: domain.Draft{
				AccountID:   5,
				Date:        time.Date(2024, 2, 14, 18, 30, 0, 0, time.UTC),
				Amount:      decimal.RequireFromString("30000"),
				Type:        domain.Income,
				Category:    domain.CategoryEMI,
				Labels:      []string{"SBI", "EMI", "Loan Account"},
				Description: loanInfo,
				PaymentMode: domain.PaymentBankTransfer,
				Currency:    domain.DefaultCurrency,
				State:       domain.StateCompleted,
			},
			wantMatch: true,
		},
		{
			name:      "account type without rules",
			processor: sbi,
			text:      "Your Loan A/c XX7890 has been credited with Rs. 30,000.00 on 15-02-2024.",
			sender:    "alerts@sbibank.com",
			account:   savings,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.processor.Process(tt.text, tt.sender, tt.account, received)
			if ok != tt.wantMatch {
				_, err := tt.processor.Explain(tt.text, tt.sender, tt.account, received)
				t.Fatalf("Process() matched = %v, want %v (explain: %v)", ok, tt.wantMatch, err)
			}
			if !ok {
				return
			}
			if diff := cmp.Diff(tt.want, got, ignoreNote()); diff != "" {
				t.Errorf("Process() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtract_Note(t *testing.T) {
	account := domain.Account{ID: 1, Type: domain.AccountBank, Number: "918010041234"}
	d, err := Extract(AxisRules()[domain.AccountBank],
		"Rs.1,500.00 credited to a/c no. XX1234 on 05-01-2024, 10:20:30 IST. Info- UPI/123456/merchant",
		account, received)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	var note Note
	if err := json.Unmarshal([]byte(d.Note), &note); err != nil {
		t.Fatalf("note is not JSON: %v", err)
	}
	want := Note{
		TransactionDate:    "05-01-2024, 10:20:30",
		TransactionAccount: "XX1234",
		TransactionInfo:    "UPI/123456/merchant",
		TransactionAmount:  "1,500.00",
	}
	if diff := cmp.Diff(want, note); diff != "" {
		t.Errorf("note mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_NoMatchIsTyped(t *testing.T) {
	account := domain.Account{ID: 1, Type: domain.AccountBank, Number: "1234"}
	_, err := Extract(AxisRules()[domain.AccountBank], "hello there", account, received)
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("Expected ErrNoMatch, got %v", err)
	}
}

func TestDirection_EarliestCueWins(t *testing.T) {
	rules := &RuleSet{CreditCues: []string{"credited"}, DebitCues: []string{"debited"}, Polarity: DirectPolarity}

	tests := []struct {
		text string
		want domain.TransactionType
	}{
		{"Rs.10 credited to a/c, earlier debited from card", domain.Income},
		{"Rs.10 debited from a/c and credited to payee", domain.Expense},
		{"Amount DEBITED", domain.Expense},
	}
	for _, tt := range tests {
		got, ok := direction(rules, tt.text)
		if !ok || got != tt.want {
			t.Errorf("direction(%q) = %s %v, want %s", tt.text, got, ok, tt.want)
		}
	}
}

func TestMaskedSuffix(t *testing.T) {
	tests := map[string]string{
		"XX1234":       "1234",
		"xx**5678":     "5678",
		"XXXXXXXX5678": "5678",
		"1234":         "1234",
		"XXXX":         "",
	}
	for in, want := range tests {
		if got := MaskedSuffix(in); got != want {
			t.Errorf("MaskedSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistry_Resolve(t *testing.T) {
	reg := Default()

	tests := []struct {
		name   string
		sender string
		want   string
		found  bool
	}{
		{name: "exact", sender: "alerts@axisbank.com", want: "AXIS", found: true},
		{name: "display form", sender: "Axis Bank <Alerts@AxisBank.com>", want: "AXIS", found: true},
		{name: "padded", sender: "  PNBEALERT@punjabnationalbank.in ", want: "PNB", found: true},
		{name: "substring", sender: "cc.alerts@axisbank.com", want: "AXIS", found: true},
		{name: "lender", sender: "LIC HFL <alerts@lichousing.com>", want: "LICHFL", found: true},
		{name: "unknown", sender: "news@example.com"},
		{name: "empty", sender: "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := reg.Resolve(tt.sender)
			if ok != tt.found {
				t.Fatalf("Resolve(%q) found = %v, want %v", tt.sender, ok, tt.found)
			}
			if ok && p.Institution().Code != tt.want {
				t.Errorf("Resolve(%q) = %s, want %s", tt.sender, p.Institution().Code, tt.want)
			}
		})
	}
}

func TestNewRegistry_FirstRegistrationWins(t *testing.T) {
	first := NewInstitutionProcessor(Axis, nil)
	second := NewInstitutionProcessor(Axis, AxisRules())
	reg := NewRegistry(first, second, NewInstitutionProcessor(PNB, nil))

	p, ok := reg.Resolve("alerts@axisbank.com")
	if !ok || p != Processor(first) {
		t.Errorf("Expected the first registration to win")
	}
	if got := len(reg.Institutions()); got != 2 {
		t.Errorf("Expected 2 institutions, got %d", got)
	}
}
