package orm

import (
	"database/sql"
	"sort"
)

// Row is one tuple returned by a data source.
type Row interface {
	// FieldIndex returns the position of the named column, or -1.
	FieldIndex(name string) int
	// Value returns the value at position i.
	Value(i int) any
}

// Rows is a closable result set handle.
type Rows interface {
	Len() int
	Row(i int) Row
	Close() error
}

// ResultSet is a materialized Rows.
type ResultSet struct {
	columns []string
	index   map[string]int
	values  [][]any
	closed  bool
}

// NewResultSet returns a ResultSet with the given columns and rows.
func NewResultSet(columns []string, rows ...[]any) *ResultSet {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}
	return &ResultSet{columns: columns, index: index, values: rows}
}

// Append adds one row. Values are positional against Columns.
func (rs *ResultSet) Append(values ...any) {
	rs.values = append(rs.values, values)
}

func (rs *ResultSet) Columns() []string { return rs.columns }
func (rs *ResultSet) Len() int          { return len(rs.values) }
func (rs *ResultSet) Row(i int) Row     { return resultRow{rs: rs, i: i} }

// Close releases the rows. It is safe to call more than once.
func (rs *ResultSet) Close() error {
	rs.closed = true
	rs.values = nil
	return nil
}

// Closed reports whether Close has been called.
func (rs *ResultSet) Closed() bool { return rs.closed }

type resultRow struct {
	rs *ResultSet
	i  int
}

func (r resultRow) FieldIndex(name string) int {
	if i, ok := r.rs.index[name]; ok {
		return i
	}
	return -1
}

func (r resultRow) Value(i int) any {
	vals := r.rs.values[r.i]
	if i < 0 || i >= len(vals) {
		return nil
	}
	return vals[i]
}

// RowOf builds a Row from a column map. Columns are ordered by name.
func RowOf(values map[string]any) Row {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = values[c]
	}
	return NewResultSet(cols, vals).Row(0)
}

// ScanRows materializes *sql.Rows into a ResultSet and closes them.
func ScanRows(rows *sql.Rows) (*ResultSet, error) {
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	rs := NewResultSet(cols)
	for rows.Next() {
		vals := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		rs.Append(vals...)
	}
	return rs, rows.Err() //nolint:wrapcheck // pass through
}

// prefixedRow exposes the columns of row that carry prefix, without it.
type prefixedRow struct {
	Row
	prefix string
}

func (r prefixedRow) FieldIndex(name string) int {
	return r.Row.FieldIndex(r.prefix + name)
}

// singleRows wraps one Row as Rows.
type singleRows struct{ row Row }

func (s singleRows) Len() int     { return 1 }
func (s singleRows) Row(int) Row  { return s.row }
func (s singleRows) Close() error { return nil }
