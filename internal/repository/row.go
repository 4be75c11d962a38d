package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one result row keyed by column name. Executors normalise driver
// specific types to Go basics (string, []byte, int64, float64, bool,
// time.Time, decimal.Decimal, nil) before handing rows out.
type Row map[string]any

var rowTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// String returns the column as text; NULL is the empty string.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the column as an integer.
func (r Row) Int64(col string) (int64, error) {
	switch v := r[col].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case nil:
		return 0, fmt.Errorf("column %s: NULL integer", col)
	default:
		return 0, fmt.Errorf("column %s: unexpected integer type %T", col, v)
	}
}

// NullInt64 returns nil for NULL.
func (r Row) NullInt64(col string) (*int64, error) {
	if r[col] == nil {
		return nil, nil
	}
	v, err := r.Int64(col)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Decimal returns the column as a decimal; NULL is zero.
func (r Row) Decimal(col string) (decimal.Decimal, error) {
	switch v := r[col].(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case string:
		return decimal.NewFromString(v)
	case []byte:
		return decimal.NewFromString(string(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return decimal.Zero, fmt.Errorf("column %s: unexpected decimal type %T", col, v)
	}
}

// Time returns the column as a UTC time.
func (r Row) Time(col string) (time.Time, error) {
	switch v := r[col].(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseRowTime(col, v)
	case []byte:
		return parseRowTime(col, string(v))
	case nil:
		return time.Time{}, fmt.Errorf("column %s: NULL time", col)
	default:
		return time.Time{}, fmt.Errorf("column %s: unexpected time type %T", col, v)
	}
}

// NullTime returns nil for NULL or empty values.
func (r Row) NullTime(col string) (*time.Time, error) {
	if v := r[col]; v == nil || v == "" {
		return nil, nil
	}
	t, err := r.Time(col)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseRowTime(col, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range rowTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("column %s: unparseable time %q", col, s)
}

// Bool returns the column as a boolean; NULL is false.
func (r Row) Bool(col string) (bool, error) {
	switch v := r[col].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("column %s: unexpected bool type %T", col, v)
	}
}

// Labels decodes a JSON encoded list of strings; NULL is an empty list.
func (r Row) Labels(col string) ([]string, error) {
	var raw []byte
	switch v := r[col].(type) {
	case nil:
		return []string{}, nil
	case []string:
		return v, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, fmt.Errorf("column %s: unexpected labels type %T", col, v)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []string{}, nil
	}
	labels := []string{}
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("column %s: %w", col, err)
	}
	return labels, nil
}

// EncodeLabels is the storage form read back by Row.Labels.
func EncodeLabels(labels []string) string {
	if labels == nil {
		labels = []string{}
	}
	data, _ := json.Marshal(labels)
	return string(data)
}
