package query

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-reconciler/internal/criteria"
)

// Statement is SQL text plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Compiler turns criteria and entity values into statements for one dialect.
type Compiler struct {
	dialect Dialect
}

// NewCompiler creates a compiler for the dialect.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect { return c.dialect }

type builder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *builder) statement() Statement {
	return Statement{SQL: b.sb.String(), Args: b.args}
}

// check validates the criteria and every key it references before any text
// is produced.
func check(s Schema, cr criteria.Criteria) error {
	if err := cr.Validate(); err != nil {
		return err
	}
	for _, key := range cr.Keys() {
		if _, err := s.queryable(key); err != nil {
			return err
		}
	}
	return nil
}

// predicates renders the filter and range conditions, binding values in
// text order.
func (b *builder) predicates(s Schema, cr criteria.Criteria) ([]string, error) {
	var preds []string
	for _, f := range cr.Filters {
		col, _ := s.Column(f.Key)
		switch {
		case f.IsNull():
			preds = append(preds, col.Name+" IS NULL")
		case f.IsList():
			if len(f.Values) == 0 {
				preds = append(preds, "1 = 0")
				continue
			}
			marks := make([]string, len(f.Values))
			for i, v := range f.Values {
				cv, err := coerce(col, v)
				if err != nil {
					return nil, err
				}
				marks[i] = b.bind(cv)
			}
			preds = append(preds, col.Name+" IN ("+strings.Join(marks, ", ")+")")
		default:
			cv, err := coerce(col, f.Value)
			if err != nil {
				return nil, err
			}
			preds = append(preds, col.Name+" = "+b.bind(cv))
		}
	}
	for _, r := range cr.Between {
		col, _ := s.Column(r.Key)
		start, err := coerce(col, r.Range.Start)
		if err != nil {
			return nil, err
		}
		end, err := coerce(col, r.Range.End)
		if err != nil {
			return nil, err
		}
		preds = append(preds, col.Name+" BETWEEN "+b.bind(start)+" AND "+b.bind(end))
	}
	return preds, nil
}

func (b *builder) where(preds []string) {
	if len(preds) > 0 {
		b.write(" WHERE ", strings.Join(preds, " AND "))
	}
}

func (b *builder) page(limit, offset int) {
	if limit > 0 {
		b.write(" LIMIT ", b.bind(int64(limit)))
		if offset > 0 {
			b.write(" OFFSET ", b.bind(int64(offset)))
		}
	}
}

func direction(asc bool) string {
	if asc {
		return "ASC"
	}
	return "DESC"
}

// orderBy renders the declared sorts followed by the key as a tie-breaker,
// so that results, paged or not, come back in a stable order.
func orderBy(s Schema, sorts []criteria.Sort) string {
	var terms []string
	seen := map[string]bool{}
	for _, srt := range sorts {
		if seen[srt.Key] {
			continue
		}
		seen[srt.Key] = true
		terms = append(terms, srt.Key+" "+direction(srt.Ascending))
	}
	if !seen[s.Key] {
		terms = append(terms, s.Key+" ASC")
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

// Select compiles a full-row read. Without group-by it is a filtered,
// sorted, paged select. With group-by a keys-only subquery picks the page of
// groups and the outer select returns every matching row of those groups.
func (c *Compiler) Select(s Schema, cr criteria.Criteria) (Statement, error) {
	if err := check(s, cr); err != nil {
		return Statement{}, err
	}
	if cr.Grouped() {
		return c.selectGrouped(s, cr)
	}

	b := &builder{d: c.dialect}
	b.write("SELECT ", strings.Join(s.Names(), ", "), " FROM ", c.dialect.Table(s.Table))
	preds, err := b.predicates(s, cr)
	if err != nil {
		return Statement{}, err
	}
	b.where(preds)

	limit, offset := cr.Page()
	b.write(orderBy(s, cr.Sorts))
	b.page(limit, offset)
	return b.statement(), nil
}

func groupKeys(cr criteria.Criteria) []string {
	var keys []string
	seen := map[string]bool{}
	for _, g := range cr.GroupBy {
		if !seen[g.Key] {
			seen[g.Key] = true
			keys = append(keys, g.Key)
		}
	}
	return keys
}

// groupOrder orders groups: sorts on group keys apply directly, sorts on
// other columns use the smallest (ascending) or largest (descending) value
// within the group. Group keys break ties.
func groupOrder(cr criteria.Criteria, keys []string) string {
	isKey := map[string]bool{}
	for _, k := range keys {
		isKey[k] = true
	}
	var terms []string
	for _, srt := range cr.Sorts {
		switch {
		case isKey[srt.Key]:
			terms = append(terms, srt.Key+" "+direction(srt.Ascending))
		case srt.Ascending:
			terms = append(terms, "MIN("+srt.Key+") ASC")
		default:
			terms = append(terms, "MAX("+srt.Key+") DESC")
		}
	}
	for _, k := range keys {
		terms = append(terms, k+" ASC")
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func (c *Compiler) selectGrouped(s Schema, cr criteria.Criteria) (Statement, error) {
	keys := groupKeys(cr)
	keyList := strings.Join(keys, ", ")
	table := c.dialect.Table(s.Table)
	multi := len(keys) > 1 && !c.dialect.RowValues

	b := &builder{d: c.dialect}
	b.write("SELECT ", strings.Join(s.Names(), ", "), " FROM ", table)
	if multi {
		b.write(" AS outer_row")
	}

	outer, err := b.predicates(s, cr)
	if err != nil {
		return Statement{}, err
	}
	if len(outer) > 0 {
		b.write(" WHERE ", strings.Join(outer, " AND "), " AND ")
	} else {
		b.write(" WHERE ")
	}

	switch {
	case len(keys) == 1:
		b.write(keyList, " IN (")
	case !multi:
		b.write("(", keyList, ") IN (")
	default:
		b.write("EXISTS (SELECT 1 FROM (")
	}

	b.write("SELECT ", keyList, " FROM ", table)
	inner, err := b.predicates(s, cr)
	if err != nil {
		return Statement{}, err
	}
	b.where(inner)
	b.write(" GROUP BY ", keyList)
	b.write(groupOrder(cr, keys))
	limit, offset := cr.Page()
	b.page(limit, offset)

	if multi {
		joins := make([]string, len(keys))
		for i, k := range keys {
			joins[i] = "grp." + k + " = outer_row." + k
		}
		b.write(") AS grp WHERE ", strings.Join(joins, " AND "), ")")
	} else {
		b.write(")")
	}

	b.write(orderBy(s, cr.Sorts))
	return b.statement(), nil
}

// Count compiles the number of rows, or of groups when grouped, matching the
// criteria. Sorts and paging are ignored.
func (c *Compiler) Count(s Schema, cr criteria.Criteria) (Statement, error) {
	if err := check(s, cr); err != nil {
		return Statement{}, err
	}
	table := c.dialect.Table(s.Table)
	b := &builder{d: c.dialect}

	if cr.Grouped() {
		keyList := strings.Join(groupKeys(cr), ", ")
		b.write("SELECT COUNT(*) AS num_found FROM (SELECT ", keyList, " FROM ", table)
		preds, err := b.predicates(s, cr)
		if err != nil {
			return Statement{}, err
		}
		b.where(preds)
		b.write(" GROUP BY ", keyList, ") AS grp")
		return b.statement(), nil
	}

	b.write("SELECT COUNT(*) AS num_found FROM ", table)
	preds, err := b.predicates(s, cr)
	if err != nil {
		return Statement{}, err
	}
	b.where(preds)
	return b.statement(), nil
}

// FindByKey selects the row with the given key.
func (c *Compiler) FindByKey(s Schema, key any) Statement {
	b := &builder{d: c.dialect}
	b.write("SELECT ", strings.Join(s.Names(), ", "), " FROM ", c.dialect.Table(s.Table))
	b.write(" WHERE ", s.Key, " = ", b.bind(key))
	return b.statement()
}

// Insert writes one row; values follow the schema's column order.
func (c *Compiler) Insert(s Schema, values []any) (Statement, error) {
	if len(values) != len(s.Columns) {
		return Statement{}, fmt.Errorf("Insert: %s expects %d values, got %d", s.Table, len(s.Columns), len(values))
	}
	b := &builder{d: c.dialect}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = b.bind(v)
	}
	b.write("INSERT INTO ", c.dialect.Table(s.Table), " (", strings.Join(s.Names(), ", "), ") VALUES (", strings.Join(marks, ", "), ")")
	return b.statement(), nil
}

// Update rewrites every non-key column of the row identified by the key value
// found among values.
func (c *Compiler) Update(s Schema, values []any) (Statement, error) {
	b, err := c.update(s, values)
	if err != nil {
		return Statement{}, err
	}
	return b.statement(), nil
}

func (c *Compiler) update(s Schema, values []any) (*builder, error) {
	if len(values) != len(s.Columns) {
		return nil, fmt.Errorf("Update: %s expects %d values, got %d", s.Table, len(s.Columns), len(values))
	}
	b := &builder{d: c.dialect}
	var (
		sets []string
		key  any
	)
	for i, col := range s.Columns {
		if col.Name == s.Key {
			key = values[i]
			continue
		}
		sets = append(sets, col.Name+" = "+b.bind(values[i]))
	}
	b.write("UPDATE ", c.dialect.Table(s.Table), " SET ", strings.Join(sets, ", "))
	b.write(" WHERE ", s.Key, " = ", b.bind(key))
	return b, nil
}

// UpdateIf is Update guarded by the previous values of the guard columns:
// the row is only rewritten while each guard column still holds its value
// from prev. NULLs compare equal to NULL.
func (c *Compiler) UpdateIf(s Schema, values, prev []any, guard ...string) (Statement, error) {
	if len(prev) != len(s.Columns) {
		return Statement{}, fmt.Errorf("UpdateIf: %s expects %d previous values, got %d", s.Table, len(s.Columns), len(prev))
	}
	b, err := c.update(s, values)
	if err != nil {
		return Statement{}, err
	}
	for _, name := range guard {
		i := s.index(name)
		if i < 0 || name == s.Key {
			return Statement{}, fmt.Errorf("%w: %q on %s", ErrUnknownKey, name, s.Table)
		}
		b.write(" AND ", name, " ", c.dialect.NullSafeEqual(), " ", b.bind(prev[i]))
	}
	return b.statement(), nil
}

// DeleteByKey removes the row with the given key.
func (c *Compiler) DeleteByKey(s Schema, key any) Statement {
	b := &builder{d: c.dialect}
	b.write("DELETE FROM ", c.dialect.Table(s.Table), " WHERE ", s.Key, " = ", b.bind(key))
	return b.statement()
}

// DeleteAll removes every row. BigQuery rejects DELETE without WHERE.
func (c *Compiler) DeleteAll(s Schema) Statement {
	return Statement{SQL: "DELETE FROM " + c.dialect.Table(s.Table) + " WHERE 1 = 1"}
}
