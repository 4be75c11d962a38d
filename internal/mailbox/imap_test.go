package mailbox

import (
	"testing"
	"time"
)

func TestSearchCriteria(t *testing.T) {
	q := Query{
		Since:   time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC),
		From:    "alerts@axisbank.com",
		BodyAny: []string{"a", "b", "c"},
	}
	c := searchCriteria(q)

	if want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC); !c.Since.Equal(want) {
		t.Errorf("Since = %v, want %v", c.Since, want)
	}
	if got := c.Header.Get("From"); got != q.From {
		t.Errorf("From = %q, want %q", got, q.From)
	}
	if len(c.Or) != 1 || c.Or[0][0].Body[0] != "a" {
		t.Fatalf("Expected a top-level OR on the first token, got %+v", c.Or)
	}
	nested := c.Or[0][1]
	if len(nested.Or) != 1 || nested.Or[0][0].Body[0] != "b" || nested.Or[0][1].Body[0] != "c" {
		t.Errorf("Expected nested OR of the remaining tokens, got %+v", nested)
	}

	single := searchCriteria(Query{BodyAny: []string{"only"}})
	if len(single.Or) != 0 || len(single.Body) != 1 {
		t.Errorf("Expected a plain BODY key for one token, got %+v", single)
	}
}
