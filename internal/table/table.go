// Package table provides the small in-memory, column-typed table used by the
// analysis stages. It is a thin layer over a gota DataFrame that adds the
// operations the pipeline needs (group-by aggregation, long-to-wide pivot,
// key joins) with the guarantee that no operation mutates its receiver.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var (
	// ErrColumnNotFound is returned when an operation names a column the table does not have.
	ErrColumnNotFound = errors.New("column not found")
	// ErrDuplicateColumn is returned when a join or pivot would produce two columns with one name.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrDuplicateEntry is returned by Pivot when an (index, name) pair occurs twice.
	ErrDuplicateEntry = errors.New("duplicate pivot entry")
	// ErrNoColumns is returned when a table would be built without any column.
	ErrNoColumns = errors.New("table needs at least one column")
)

// keySep joins multi-column group keys; it cannot appear in CSV text fields in practice.
const keySep = "\x1f"

// Column is a named, typed column used to build tables.
type Column struct {
	name string
	kind series.Type
	strs []string
	nums []float64
}

// StringCol returns a text column.
func StringCol(name string, vals []string) Column {
	return Column{name: name, kind: series.String, strs: vals}
}

// FloatCol returns a numeric column.
func FloatCol(name string, vals []float64) Column {
	return Column{name: name, kind: series.Float, nums: vals}
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

func (c Column) series() series.Series {
	if c.kind == series.Float {
		vals := c.nums
		if vals == nil {
			vals = []float64{}
		}
		return series.New(vals, series.Float, c.name)
	}
	vals := c.strs
	if vals == nil {
		vals = []string{}
	}
	return series.New(vals, series.String, c.name)
}

// Table is an immutable tabular container.
type Table struct {
	df dataframe.DataFrame
}

// New builds a table from columns of equal length.
func New(cols ...Column) (*Table, error) {
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}
	seen := make(map[string]struct{}, len(cols))
	ss := make([]series.Series, 0, len(cols))
	for _, c := range cols {
		if _, dup := seen[c.name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, c.name)
		}
		seen[c.name] = struct{}{}
		ss = append(ss, c.series())
	}
	df := dataframe.New(ss...)
	if df.Err != nil {
		return nil, fmt.Errorf("build table: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// FromDataFrame wraps an existing gota DataFrame.
func FromDataFrame(df dataframe.DataFrame) (*Table, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	return &Table{df: df}, nil
}

// ReadOptions controls CSV decoding.
type ReadOptions struct {
	// Delimiter defaults to ','.
	Delimiter rune
}

// ReadCSV decodes a CSV stream with a header row. Every column is read as text;
// numeric interpretation is left to the stages that need it. A header without
// data rows yields an empty table with those columns.
func ReadCSV(r io.Reader, opt ReadOptions) (*Table, error) {
	delim := opt.Delimiter
	if delim == 0 {
		delim = ','
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	header, more, err := peekHeader(data, delim)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if !more {
		cols := make([]Column, len(header))
		for i, name := range header {
			cols[i] = StringCol(name, nil)
		}
		return New(cols...)
	}
	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithDelimiter(delim),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read csv: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// peekHeader returns the header record and whether any record follows it.
func peekHeader(data []byte, delim rune) ([]string, bool, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, false, ErrNoColumns
	}
	if err != nil {
		return nil, false, err
	}
	_, err = cr.Read()
	if errors.Is(err, io.EOF) {
		return header, false, nil
	}
	return header, true, nil
}

// DataFrame exposes the underlying gota frame (a copy).
func (t *Table) DataFrame() dataframe.DataFrame { return t.df.Copy() }

// Names returns the column names in order.
func (t *Table) Names() []string { return t.df.Names() }

// Nrow returns the number of rows.
func (t *Table) Nrow() int { return t.df.Nrow() }

// Has reports whether the table has the named column.
func (t *Table) Has(col string) bool {
	for _, n := range t.df.Names() {
		if n == col {
			return true
		}
	}
	return false
}

func (t *Table) require(cols ...string) error {
	for _, c := range cols {
		if !t.Has(c) {
			return fmt.Errorf("%w: %s", ErrColumnNotFound, c)
		}
	}
	return nil
}

// Strings returns the textual values of a column.
func (t *Table) Strings(col string) ([]string, error) {
	if err := t.require(col); err != nil {
		return nil, err
	}
	return t.df.Col(col).Records(), nil
}

// Floats returns the numeric values of a column. Text that does not parse yields NaN.
func (t *Table) Floats(col string) ([]float64, error) {
	if err := t.require(col); err != nil {
		return nil, err
	}
	return t.df.Col(col).Float(), nil
}

// IsNumeric reports whether the column holds numbers.
func (t *Table) IsNumeric(col string) bool {
	if !t.Has(col) {
		return false
	}
	switch t.df.Col(col).Type() {
	case series.Float, series.Int:
		return true
	}
	return false
}

// Head returns the first n rows (all rows when n <= 0 or n >= Nrow).
func (t *Table) Head(n int) (*Table, error) {
	if n <= 0 || n >= t.Nrow() {
		return t, nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return t.subset(idx)
}

// Row is a read-only view of one record handed to Filter predicates.
type Row struct {
	index  map[string]int
	values []string
}

// Get returns the textual value of a column, or "" when the column is unknown.
func (r Row) Get(col string) string {
	i, ok := r.index[col]
	if !ok {
		return ""
	}
	return r.values[i]
}

// Float parses the column value as a number.
func (r Row) Float(col string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.Get(col)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Filter returns the rows for which pred is true.
func (t *Table) Filter(pred func(Row) bool) (*Table, error) {
	names := t.Names()
	index := make(map[string]int, len(names))
	cols := make([][]string, len(names))
	for i, n := range names {
		index[n] = i
		cols[i] = t.df.Col(n).Records()
	}
	var keep []int
	for r := 0; r < t.Nrow(); r++ {
		vals := make([]string, len(names))
		for c := range names {
			vals[c] = cols[c][r]
		}
		if pred(Row{index: index, values: vals}) {
			keep = append(keep, r)
		}
	}
	return t.subset(keep)
}

// subset rebuilds the table from the given row indexes, preserving column types.
func (t *Table) subset(rows []int) (*Table, error) {
	names := t.Names()
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		s := t.df.Col(n)
		if s.Type() == series.Float || s.Type() == series.Int {
			all := s.Float()
			vals := make([]float64, len(rows))
			for i, r := range rows {
				vals[i] = all[r]
			}
			cols = append(cols, FloatCol(n, vals))
			continue
		}
		all := s.Records()
		vals := make([]string, len(rows))
		for i, r := range rows {
			vals[i] = all[r]
		}
		cols = append(cols, StringCol(n, vals))
	}
	return New(cols...)
}

// Aggregation reduces one group's sub-table to a single number.
type Aggregation struct {
	Name   string
	Reduce func(group *Table) (float64, error)
}

// Count is the row-count aggregation.
func Count(name string) Aggregation {
	return Aggregation{Name: name, Reduce: func(g *Table) (float64, error) {
		return float64(g.Nrow()), nil
	}}
}

// GroupByAggregate returns one row per distinct key tuple, ordered by key,
// with the key columns first followed by one column per aggregation.
func (t *Table) GroupByAggregate(keys []string, aggs ...Aggregation) (*Table, error) {
	if len(keys) == 0 {
		return nil, errors.New("group by: no key columns")
	}
	if err := t.require(keys...); err != nil {
		return nil, fmt.Errorf("group by: %w", err)
	}
	keyVals := make([][]string, len(keys))
	for i, k := range keys {
		keyVals[i] = t.df.Col(k).Records()
	}
	groups := map[string][]int{}
	tuples := map[string][]string{}
	for r := 0; r < t.Nrow(); r++ {
		parts := make([]string, len(keys))
		for i := range keys {
			parts[i] = keyVals[i][r]
		}
		id := strings.Join(parts, keySep)
		if _, ok := groups[id]; !ok {
			tuples[id] = parts
		}
		groups[id] = append(groups[id], r)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	outKeys := make([][]string, len(keys))
	outAggs := make([][]float64, len(aggs))
	for _, id := range ids {
		sub, err := t.subset(groups[id])
		if err != nil {
			return nil, err
		}
		for i := range keys {
			outKeys[i] = append(outKeys[i], tuples[id][i])
		}
		for i, a := range aggs {
			v, err := a.Reduce(sub)
			if err != nil {
				return nil, fmt.Errorf("aggregate %s: %w", a.Name, err)
			}
			outAggs[i] = append(outAggs[i], v)
		}
	}
	cols := make([]Column, 0, len(keys)+len(aggs))
	for i, k := range keys {
		cols = append(cols, StringCol(k, outKeys[i]))
	}
	for i, a := range aggs {
		cols = append(cols, FloatCol(a.Name, outAggs[i]))
	}
	return New(cols...)
}

// Pivot reshapes long rows into one row per index value with one numeric
// column per distinct nameCol value. Missing (index, name) pairs get fill.
// The rename func maps a name value to its output column name; nil keeps it.
func (t *Table) Pivot(index, nameCol, valueCol string, fill float64, rename func(string) string) (*Table, error) {
	if err := t.require(index, nameCol, valueCol); err != nil {
		return nil, fmt.Errorf("pivot: %w", err)
	}
	if rename == nil {
		rename = func(s string) string { return s }
	}
	idx := t.df.Col(index).Records()
	names := t.df.Col(nameCol).Records()
	vals := t.df.Col(valueCol).Float()

	cells := map[string]map[string]float64{}
	nameSet := map[string]struct{}{}
	for r := range idx {
		row := cells[idx[r]]
		if row == nil {
			row = map[string]float64{}
			cells[idx[r]] = row
		}
		if _, dup := row[names[r]]; dup {
			return nil, fmt.Errorf("%w: %s=%s, %s=%s", ErrDuplicateEntry, index, idx[r], nameCol, names[r])
		}
		row[names[r]] = vals[r]
		nameSet[names[r]] = struct{}{}
	}
	keys := sortedKeys(cells)
	wide := make([]string, 0, len(nameSet))
	for n := range nameSet {
		wide = append(wide, n)
	}
	sort.Strings(wide)

	cols := make([]Column, 0, len(wide)+1)
	cols = append(cols, StringCol(index, keys))
	for _, n := range wide {
		out := make([]float64, len(keys))
		for i, k := range keys {
			v, ok := cells[k][n]
			if !ok {
				v = fill
			}
			out[i] = v
		}
		cols = append(cols, FloatCol(rename(n), out))
	}
	return New(cols...)
}

// JoinOnKey inner-joins two tables on a shared key column. Key values present
// on only one side are dropped.
func (t *Table) JoinOnKey(other *Table, key string) (*Table, error) {
	if err := t.require(key); err != nil {
		return nil, fmt.Errorf("join left: %w", err)
	}
	if err := other.require(key); err != nil {
		return nil, fmt.Errorf("join right: %w", err)
	}
	for _, n := range other.Names() {
		if n != key && t.Has(n) {
			return nil, fmt.Errorf("join: %w: %s", ErrDuplicateColumn, n)
		}
	}
	df := t.df.InnerJoin(other.df, key)
	if df.Err != nil {
		return nil, fmt.Errorf("join: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// Select keeps only the named columns, in the given order.
func (t *Table) Select(cols ...string) (*Table, error) {
	if err := t.require(cols...); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	df := t.df.Select(cols)
	if df.Err != nil {
		return nil, fmt.Errorf("select: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// Drop removes the named columns.
func (t *Table) Drop(cols ...string) (*Table, error) {
	if len(cols) == 0 {
		return t, nil
	}
	if err := t.require(cols...); err != nil {
		return nil, fmt.Errorf("drop: %w", err)
	}
	df := t.df.Drop(cols)
	if df.Err != nil {
		return nil, fmt.Errorf("drop: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// WithColumn returns a table with c added, or replacing the column of the same name.
func (t *Table) WithColumn(c Column) (*Table, error) {
	df := t.df.Mutate(c.series())
	if df.Err != nil {
		return nil, fmt.Errorf("set column %s: %w", c.name, df.Err)
	}
	return &Table{df: df}, nil
}

// Rename changes a column name.
func (t *Table) Rename(oldName, newName string) (*Table, error) {
	if err := t.require(oldName); err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	if oldName == newName {
		return t, nil
	}
	if t.Has(newName) {
		return nil, fmt.Errorf("rename: %w: %s", ErrDuplicateColumn, newName)
	}
	df := t.df.Rename(newName, oldName)
	if df.Err != nil {
		return nil, fmt.Errorf("rename: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// SortBy orders rows by a column, ascending.
func (t *Table) SortBy(col string) (*Table, error) {
	if err := t.require(col); err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	if t.Nrow() < 2 {
		return t, nil
	}
	df := t.df.Arrange(dataframe.Sort(col))
	if df.Err != nil {
		return nil, fmt.Errorf("sort: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	return t.df.WriteCSV(w)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
