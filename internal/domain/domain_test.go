package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func TestTransactionID_Deterministic(t *testing.T) {
	date := time.Date(2024, 1, 5, 10, 15, 0, 0, time.UTC)
	amount := decimal.RequireFromString("1500.00")

	a := TransactionID(7, amount, date, "UPI/123456/merchant")
	b := TransactionID(7, decimal.RequireFromString("1500"), date, "UPI/123456/merchant")
	if a != b {
		t.Errorf("Expected equal ids for equal amounts, got %s and %s", a, b)
	}

	ist := time.FixedZone("IST", 5*3600+1800)
	c := TransactionID(7, amount, date.In(ist), "  UPI/123456/merchant ")
	if a != c {
		t.Errorf("Expected zone and whitespace to be ignored, got %s and %s", a, c)
	}
}

func TestTransactionID_ChangesWithEachInput(t *testing.T) {
	date := time.Date(2024, 1, 5, 10, 15, 0, 0, time.UTC)
	amount := decimal.RequireFromString("1500.00")
	base := TransactionID(7, amount, date, "UPI/merchant")

	variants := map[string]string{
		"account":     TransactionID(8, amount, date, "UPI/merchant"),
		"amount":      TransactionID(7, decimal.RequireFromString("1500.01"), date, "UPI/merchant"),
		"date":        TransactionID(7, amount, date.Add(time.Second), "UPI/merchant"),
		"description": TransactionID(7, amount, date, "UPI/other"),
	}
	for name, id := range variants {
		if id == base {
			t.Errorf("Expected id to change when %s changes", name)
		}
	}
}

func TestDraftTransaction_Defaults(t *testing.T) {
	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	d := Draft{
		AccountID: 1,
		Date:      time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC),
		Amount:    decimal.RequireFromString("-250.50"),
		Type:      Expense,
	}

	tx := d.Transaction(created)

	if !tx.Amount.Equal(decimal.RequireFromString("250.50")) {
		t.Errorf("Expected magnitude 250.50, got %s", tx.Amount)
	}
	if tx.Currency != DefaultCurrency || tx.State != StateCompleted || tx.Category != CategoryOther {
		t.Errorf("Expected defaults, got currency=%s state=%s category=%s", tx.Currency, tx.State, tx.Category)
	}
	if tx.ID != TransactionID(1, tx.Amount, tx.Date, "") {
		t.Errorf("Expected derived id, got %s", tx.ID)
	}
	if !tx.SignedAmount().Equal(decimal.RequireFromString("-250.50")) {
		t.Errorf("Expected signed -250.50, got %s", tx.SignedAmount())
	}
}

func TestAccountApply(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	acct := Account{ID: 1, Balance: decimal.RequireFromString("100")}

	acct = acct.Apply(Transaction{Amount: decimal.RequireFromString("50"), Type: Income}, late)
	acct = acct.Apply(Transaction{Amount: decimal.RequireFromString("20.25"), Type: Expense}, early)

	if !acct.Balance.Equal(decimal.RequireFromString("129.75")) {
		t.Errorf("Expected balance 129.75, got %s", acct.Balance)
	}
	if acct.LastSyncedOn == nil || !acct.LastSyncedOn.Equal(late) {
		t.Errorf("Expected last synced to stay at %v, got %v", late, acct.LastSyncedOn)
	}
}

func TestAccountSearchTokens(t *testing.T) {
	acct := Account{SearchText: " LICHousingFinanceLtd, ,ACH-DR-RACPC II INDORE-NCA,"}
	want := []string{"LICHousingFinanceLtd", "ACH-DR-RACPC II INDORE-NCA"}
	if diff := cmp.Diff(want, acct.SearchTokens()); diff != "" {
		t.Errorf("SearchTokens() mismatch (-want +got):\n%s", diff)
	}
	if !acct.MatchesText("paid to ACH-DR-RACPC II INDORE-NCA today") {
		t.Error("Expected text to match a token")
	}
	if (Account{}).MatchesText("anything") {
		t.Error("Expected empty search text to match nothing")
	}
}

func TestParseCategory(t *testing.T) {
	if c, ok := ParseCategory("FUEL"); !ok || c != CategoryFuel {
		t.Errorf("Expected FUEL, got %s %v", c, ok)
	}
	if c, ok := ParseCategory("Groceries"); ok || c != CategoryOther {
		t.Errorf("Expected OTHER fallback, got %s %v", c, ok)
	}
}
