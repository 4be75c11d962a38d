// Package criteria describes read queries against a repository: filters,
// inclusive ranges, sorts, grouping and pagination.
package criteria

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultPageSize is the page size used when Offset is set without Limit.
const DefaultPageSize = 25

// ErrInvalid marks a malformed criteria value.
var ErrInvalid = errors.New("invalid criteria")

// Criteria is the request-shaped description of a read.
type Criteria struct {
	Filters []Filter   `json:"filters,omitempty"`
	Sorts   []Sort     `json:"sorts,omitempty"`
	Between []Between  `json:"between,omitempty"`
	GroupBy []GroupKey `json:"groupBy,omitempty"`
	// Offset is a page index, not a row count.
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`
}

// Filter restricts Key to one value, or to any of Values. A nil Value with a
// nil Values list matches NULL; a non-nil empty Values list matches nothing.
type Filter struct {
	Key    string
	Value  any
	Values []any
}

// IsList reports whether the filter expands to an IN clause.
func (f Filter) IsList() bool { return f.Values != nil }

// IsNull reports whether the filter matches NULL.
func (f Filter) IsNull() bool { return f.Values == nil && f.Value == nil }

type filterWire struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// UnmarshalJSON accepts a scalar, null or an array for "value".
func (f *Filter) UnmarshalJSON(data []byte) error {
	var w filterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.Key = w.Key
	f.Value, f.Values = nil, nil

	raw := bytes.TrimSpace(w.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if raw[0] == '[' {
		values := []any{}
		if err := dec.Decode(&values); err != nil {
			return fmt.Errorf("filter %q: %w", w.Key, err)
		}
		f.Values = values
		return nil
	}

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("filter %q: %w", w.Key, err)
	}
	f.Value = v
	return nil
}

// MarshalJSON writes the list form when Values is set.
func (f Filter) MarshalJSON() ([]byte, error) {
	if f.IsList() {
		return json.Marshal(struct {
			Key   string `json:"key"`
			Value []any  `json:"value"`
		}{f.Key, f.Values})
	}
	return json.Marshal(struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}{f.Key, f.Value})
}

// Sort orders by Key. Earlier sorts take precedence.
type Sort struct {
	Key       string `json:"key"`
	Ascending bool   `json:"ascending"`
}

// Range is an inclusive [Start, End] interval.
type Range struct {
	Start any `json:"start"`
	End   any `json:"end"`
}

// Between restricts Key to Range, both ends included.
type Between struct {
	Key   string `json:"key"`
	Range Range  `json:"range"`
}

// GroupKey groups results by Key.
type GroupKey struct {
	Key string `json:"key"`
}

// Decode reads a criteria value from JSON and validates it.
func Decode(r io.Reader) (Criteria, error) {
	var c Criteria
	if err := decodeJSON(r, &c); err != nil {
		return Criteria{}, err
	}
	if err := c.Validate(); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

// Request is the body of a search request. Other members, such as data, are
// ignored.
type Request struct {
	Criteria Criteria `json:"criteria"`
}

// DecodeRequest reads a search request body, {"criteria": {...}}, and
// validates its criteria. An empty body or one without criteria matches
// everything.
func DecodeRequest(r io.Reader) (Criteria, error) {
	var req Request
	if err := decodeJSON(r, &req); err != nil {
		return Criteria{}, err
	}
	if err := req.Criteria.Validate(); err != nil {
		return Criteria{}, err
	}
	return req.Criteria, nil
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks structural rules that do not depend on a schema.
func (c Criteria) Validate() error {
	if c.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalid, c.Offset)
	}
	if c.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalid, c.Limit)
	}
	for i, f := range c.Filters {
		if f.Key == "" {
			return fmt.Errorf("%w: filter %d has no key", ErrInvalid, i)
		}
		if f.Value != nil && f.Values != nil {
			return fmt.Errorf("%w: filter %q has both value and values", ErrInvalid, f.Key)
		}
	}
	for i, b := range c.Between {
		if b.Key == "" {
			return fmt.Errorf("%w: between %d has no key", ErrInvalid, i)
		}
		if b.Range.Start == nil || b.Range.End == nil {
			return fmt.Errorf("%w: between %q needs start and end", ErrInvalid, b.Key)
		}
	}
	for i, s := range c.Sorts {
		if s.Key == "" {
			return fmt.Errorf("%w: sort %d has no key", ErrInvalid, i)
		}
	}
	for i, g := range c.GroupBy {
		if g.Key == "" {
			return fmt.Errorf("%w: groupBy %d has no key", ErrInvalid, i)
		}
	}
	return nil
}

// Keys returns every key the criteria references, in order of appearance.
func (c Criteria) Keys() []string {
	var keys []string
	for _, f := range c.Filters {
		keys = append(keys, f.Key)
	}
	for _, b := range c.Between {
		keys = append(keys, b.Key)
	}
	for _, s := range c.Sorts {
		keys = append(keys, s.Key)
	}
	for _, g := range c.GroupBy {
		keys = append(keys, g.Key)
	}
	return keys
}

// Grouped reports whether the criteria groups its results.
func (c Criteria) Grouped() bool { return len(c.GroupBy) > 0 }

// Page returns the row limit and row offset to apply. A zero limit means
// unlimited.
func (c Criteria) Page() (limit, offset int) {
	limit = c.Limit
	if c.Offset > 0 && limit == 0 {
		limit = DefaultPageSize
	}
	return limit, c.Offset * limit
}

// WithoutPaging drops offset and limit.
func (c Criteria) WithoutPaging() Criteria {
	c.Offset, c.Limit = 0, 0
	return c
}

// Where is a convenience for a single equality filter.
func Where(key string, value any) Criteria {
	return Criteria{Filters: []Filter{{Key: key, Value: value}}}
}

// In is a convenience for a single list filter.
func In(key string, values ...any) Criteria {
	if values == nil {
		values = []any{}
	}
	return Criteria{Filters: []Filter{{Key: key, Values: values}}}
}
