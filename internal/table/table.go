// Package table holds string tables read from spreadsheet and CSV exports.
// Every cell is a trimmed string and an empty string is a null.
package table

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing column")

// Row maps column name to cell value.
type Row map[string]string

// Table is an ordered set of columns and rows.
type Table struct {
	Columns []string
	Rows    []Row
}

// New returns an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Has reports whether the table has column col.
func (t *Table) Has(col string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Require returns ErrMissingColumn naming every absent column.
func (t *Table) Require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// Append adds a row. Keys not in Columns are kept but not written.
func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, r)
}

// AddColumn appends col to Columns if absent.
func (t *Table) AddColumn(col string) {
	if !t.Has(col) {
		t.Columns = append(t.Columns, col)
	}
}

// Set assigns value to col in every row, adding the column if needed.
func (t *Table) Set(col, value string) {
	t.AddColumn(col)
	for _, r := range t.Rows {
		r[col] = value
	}
}

// Apply replaces every value of col with fn(row).
func (t *Table) Apply(col string, fn func(Row) string) {
	t.AddColumn(col)
	for _, r := range t.Rows {
		r[col] = fn(r)
	}
}

// Column returns the values of col in row order.
func (t *Table) Column(col string) []string {
	out := make([]string, 0, t.Len())
	for _, r := range t.Rows {
		out = append(out, r[col])
	}
	return out
}

// Rename renames columns in place. Unknown source columns are ignored.
func (t *Table) Rename(mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	for i, c := range t.Columns {
		if to, ok := mapping[c]; ok {
			t.Columns[i] = to
		}
	}
	for _, r := range t.Rows {
		for from, to := range mapping {
			v, ok := r[from]
			if !ok || from == to {
				continue
			}
			delete(r, from)
			r[to] = v
		}
	}
}

// Select returns a new table with exactly cols in that order. Every column
// must exist.
func (t *Table) Select(cols []string) (*Table, error) {
	if err := t.Require(cols...); err != nil {
		return nil, err
	}
	out := New(cols...)
	out.Rows = make([]Row, 0, t.Len())
	for _, r := range t.Rows {
		nr := make(Row, len(cols))
		for _, c := range cols {
			nr[c] = r[c]
		}
		out.Rows = append(out.Rows, nr)
	}
	return out, nil
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := New(t.Columns...)
	out.Rows = make([]Row, 0, t.Len())
	for _, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Filter returns a new table holding the rows keep accepts. Rows are shared.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.Columns...)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Unique returns the sorted distinct non-empty values of col.
func (t *Table) Unique(col string) []string {
	seen := make(map[string]struct{})
	for _, r := range t.Rows {
		if v := r[col]; v != "" {
			seen[v] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Duplicates returns the sorted keys built from cols that occur more than once.
// Composite keys are joined with "|".
func (t *Table) Duplicates(cols ...string) []string {
	counts := make(map[string]int)
	for _, r := range t.Rows {
		counts[t.key(r, cols)]++
	}
	dups := make(map[string]struct{})
	for k, n := range counts {
		if n > 1 {
			dups[k] = struct{}{}
		}
	}
	return sortedKeys(dups)
}

func (t *Table) key(r Row, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = r[c]
	}
	return strings.Join(parts, "|")
}

// NullCounts returns the number of empty cells per column, for columns with
// at least one.
func (t *Table) NullCounts(cols ...string) map[string]int {
	if len(cols) == 0 {
		cols = t.Columns
	}
	out := make(map[string]int)
	for _, r := range t.Rows {
		for _, c := range cols {
			if r[c] == "" {
				out[c]++
			}
		}
	}
	return out
}

// SortBy orders rows by the given columns, ascending.
func (t *Table) SortBy(cols ...string) {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		for _, c := range cols {
			a, b := t.Rows[i][c], t.Rows[j][c]
			if a != b {
				return a < b
			}
		}
		return false
	})
}

// Index maps each value of col to its first row.
func (t *Table) Index(col string) map[string]Row {
	idx := make(map[string]Row, t.Len())
	for _, r := range t.Rows {
		if _, ok := idx[r[col]]; !ok {
			idx[r[col]] = r
		}
	}
	return idx
}

// AntiJoin returns the sorted distinct values of col in t that do not occur
// in keys.
func (t *Table) AntiJoin(col string, keys []string) []string {
	return Difference(t.Unique(col), keys)
}

// Difference returns the sorted distinct values of a absent from b.
func Difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, v := range b {
		in[v] = struct{}{}
	}
	out := make(map[string]struct{})
	for _, v := range a {
		if _, ok := in[v]; !ok {
			out[v] = struct{}{}
		}
	}
	return sortedKeys(out)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
