// Package query compiles criteria into parameterized SQL. Only column names
// from a Schema are ever written into statement text; every value is bound.
package query

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKey is returned for a criteria key outside the schema.
	ErrUnknownKey = errors.New("unknown criteria key")
	// ErrInvalidValue is returned when a criteria value cannot be coerced
	// to its column type.
	ErrInvalidValue = errors.New("invalid criteria value")
)

// Kind is the storage type of a column, used to coerce criteria values.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindDecimal
	KindTime
	KindBool
	// KindLabels columns hold serialized lists and cannot be queried.
	KindLabels
)

// Column is one allow-listed column.
type Column struct {
	Name string
	Kind Kind
}

// Queryable reports whether criteria may reference the column.
func (c Column) Queryable() bool { return c.Kind != KindLabels }

// Schema describes one table: its name, key column and allow-listed columns.
// Columns are listed in the order entity values are produced.
type Schema struct {
	Table   string
	Key     string
	Columns []Column
}

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (s Schema) index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names lists column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Validate checks that the key is one of the columns.
func (s Schema) Validate() error {
	if s.Table == "" {
		return fmt.Errorf("schema: missing table name")
	}
	if _, ok := s.Column(s.Key); !ok {
		return fmt.Errorf("schema %s: key %q is not a column", s.Table, s.Key)
	}
	return nil
}

func (s Schema) queryable(key string) (Column, error) {
	col, ok := s.Column(key)
	if !ok || !col.Queryable() {
		return Column{}, fmt.Errorf("%w: %q on %s", ErrUnknownKey, key, s.Table)
	}
	return col, nil
}
