package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func TestBindArg(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	local := time.Date(2024, 2, 1, 0, 0, 0, 0, ist)
	var nilTime *time.Time
	var nilID *int64
	id := int64(7)

	if got, ok := bindArg(decimal.RequireFromString("12.5")).(*big.Rat); !ok || got.Cmp(big.NewRat(25, 2)) != 0 {
		t.Errorf("bindArg(decimal) = %v, want 25/2", got)
	}
	if got := bindArg(nil); got != (bigquery.NullString{}) {
		t.Errorf("bindArg(nil) = %#v, want NullString", got)
	}
	if got := bindArg(local); got != local.UTC() {
		t.Errorf("bindArg(time) = %v, want UTC", got)
	}
	if got := bindArg(nilTime); got != (bigquery.NullTimestamp{}) {
		t.Errorf("bindArg(nil *time.Time) = %#v, want NullTimestamp", got)
	}
	if got := bindArg(nilID); got != (bigquery.NullInt64{}) {
		t.Errorf("bindArg(nil *int64) = %#v, want NullInt64", got)
	}
	if got := bindArg(&id); got != int64(7) {
		t.Errorf("bindArg(*int64) = %#v, want 7", got)
	}
	if got := bindArg(3); got != int64(3) {
		t.Errorf("bindArg(int) = %#v, want int64", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   bigquery.Value
		want any
	}{
		{"numeric", big.NewRat(-2401, 100), decimal.RequireFromString("-24.01")},
		{"date", civil.Date{Year: 2024, Month: 2, Day: 1}, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"string", "axis", "axis"},
		{"int", int64(4), int64(4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalize(tt.in)
			if err != nil {
				t.Fatalf("normalize() error = %v", err)
			}
			switch want := tt.want.(type) {
			case decimal.Decimal:
				if d, ok := got.(decimal.Decimal); !ok || !d.Equal(want) {
					t.Errorf("normalize() = %v, want %v", got, want)
				}
			case time.Time:
				if ts, ok := got.(time.Time); !ok || !ts.Equal(want) {
					t.Errorf("normalize() = %v, want %v", got, want)
				}
			default:
				if got != want {
					t.Errorf("normalize() = %v, want %v", got, want)
				}
			}
		})
	}
}
