package query

import "strconv"

// Dialect captures the differences between storage engines that matter to
// the compiler: placeholder syntax, table qualification and row-value
// comparisons.
type Dialect struct {
	Name string
	// TablePrefix is prepended to every table name (e.g. a BigQuery dataset).
	TablePrefix string
	// Numbered selects $1, $2, ... placeholders instead of ?.
	Numbered bool
	// RowValues reports support for (a, b) IN (SELECT a, b ...).
	RowValues bool
}

var (
	// Postgres binds with $N.
	Postgres = Dialect{Name: "postgres", Numbered: true, RowValues: true}
	// SQLite binds with ?.
	SQLite = Dialect{Name: "sqlite", RowValues: true}
)

// BigQuery binds with positional ? parameters and qualifies tables with the
// dataset.
func BigQuery(dataset string) Dialect {
	prefix := ""
	if dataset != "" {
		prefix = dataset + "."
	}
	return Dialect{Name: "bigquery", TablePrefix: prefix}
}

// Placeholder renders the n-th (1-based) parameter marker.
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Table qualifies a bare table name.
func (d Dialect) Table(name string) string {
	return d.TablePrefix + name
}

// NullSafeEqual is the comparison operator that treats two NULLs as equal.
func (d Dialect) NullSafeEqual() string {
	if d.Name == SQLite.Name {
		return "IS"
	}
	return "IS NOT DISTINCT FROM"
}
