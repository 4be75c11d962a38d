package criteria

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestDecode_WireShape(t *testing.T) {
	body := `{
		"filters": [
			{"key": "category", "value": ["FOOD", "FUEL"]},
			{"key": "account_id", "value": 7},
			{"key": "note", "value": null}
		],
		"sorts": [{"key": "transaction_date", "ascending": false}],
		"between": [{"key": "transaction_date", "range": {"start": "2024-01-01", "end": "2024-01-31"}}],
		"groupBy": [{"key": "category"}],
		"offset": 2,
		"limit": 10
	}`

	c, err := Decode(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := Criteria{
		Filters: []Filter{
			{Key: "category", Values: []any{"FOOD", "FUEL"}},
			{Key: "account_id", Value: json.Number("7")},
			{Key: "note"},
		},
		Sorts:   []Sort{{Key: "transaction_date"}},
		Between: []Between{{Key: "transaction_date", Range: Range{Start: "2024-01-01", End: "2024-01-31"}}},
		GroupBy: []GroupKey{{Key: "category"}},
		Offset:  2,
		Limit:   10,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}

	if !c.Filters[0].IsList() || c.Filters[1].IsList() {
		t.Error("Expected only the array filter to be a list")
	}
	if !c.Filters[2].IsNull() {
		t.Error("Expected null filter to match NULL")
	}
}

func TestDecode_EmptyBody(t *testing.T) {
	c, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Expected empty body to decode, got: %v", err)
	}
	if len(c.Keys()) != 0 {
		t.Errorf("Expected no keys, got: %v", c.Keys())
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKeys []string
		wantErr  bool
	}{
		{"criteria member", `{"criteria":{"filters":[{"key":"category","value":"FOOD"}],"sorts":[{"key":"amount"}]}}`, []string{"category", "amount"}, false},
		{"data member ignored", `{"data":{"x":1},"criteria":{"filters":[{"key":"category","value":"FOOD"}]}}`, []string{"category"}, false},
		{"empty body", ``, nil, false},
		{"no criteria", `{}`, nil, false},
		{"bare criteria is not read", `{"filters":[{"key":"category","value":"FOOD"}]}`, nil, false},
		{"invalid criteria", `{"criteria":{"limit":-1}}`, nil, true},
		{"malformed", `{"criteria":`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := DecodeRequest(strings.NewReader(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("DecodeRequest() error = %v, want ErrInvalid", err)
				}
				return
			}
			if diff := cmp.Diff(tt.wantKeys, c.Keys(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_EmptyListIsNotNull(t *testing.T) {
	c, err := Decode(strings.NewReader(`{"filters":[{"key":"category","value":[]}]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	f := c.Filters[0]
	if !f.IsList() || f.IsNull() || len(f.Values) != 0 {
		t.Errorf("Expected an empty list filter, got: %+v", f)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       Criteria
		wantErr bool
	}{
		{"zero value", Criteria{}, false},
		{"negative offset", Criteria{Offset: -1}, true},
		{"negative limit", Criteria{Limit: -5}, true},
		{"filter without key", Criteria{Filters: []Filter{{Value: "x"}}}, true},
		{"filter with value and values", Criteria{Filters: []Filter{{Key: "a", Value: "x", Values: []any{"y"}}}}, true},
		{"open range", Criteria{Between: []Between{{Key: "a", Range: Range{Start: 1}}}}, true},
		{"sort without key", Criteria{Sorts: []Sort{{}}}, true},
		{"group without key", Criteria{GroupBy: []GroupKey{{}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got: %v", err)
			}
		})
	}
}

func TestPage(t *testing.T) {
	tests := []struct {
		name       string
		c          Criteria
		wantLimit  int
		wantOffset int
	}{
		{"unlimited", Criteria{}, 0, 0},
		{"first page", Criteria{Limit: 10}, 10, 0},
		{"third page", Criteria{Limit: 10, Offset: 2}, 10, 20},
		{"offset without limit uses default page", Criteria{Offset: 3}, DefaultPageSize, 3 * DefaultPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset := tt.c.Page()
			if limit != tt.wantLimit || offset != tt.wantOffset {
				t.Errorf("Page() = (%d, %d), want (%d, %d)", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestFilterMarshalRoundTrip(t *testing.T) {
	c := Criteria{Filters: []Filter{{Key: "category", Values: []any{"FOOD"}}, {Key: "note"}}}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `{"key":"category","value":["FOOD"]}`) {
		t.Errorf("Expected list form, got: %s", data)
	}
	if !strings.Contains(string(data), `{"key":"note","value":null}`) {
		t.Errorf("Expected null form, got: %s", data)
	}
}

func TestKeys(t *testing.T) {
	c := Criteria{
		Filters: []Filter{{Key: "a", Value: 1}},
		Between: []Between{{Key: "b", Range: Range{Start: 1, End: 2}}},
		Sorts:   []Sort{{Key: "c"}},
		GroupBy: []GroupKey{{Key: "d"}},
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, c.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	if !c.Grouped() {
		t.Error("Expected grouped criteria")
	}
	if got := In("category"); !got.Filters[0].IsList() {
		t.Error("Expected In with no values to stay a list")
	}
}
