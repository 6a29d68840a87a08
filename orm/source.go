package orm

import (
	"context"
	"fmt"
	"strings"
)

// DataSource executes one resolved statement.
type DataSource interface {
	Select(ctx context.Context, st *Statement) (Rows, error)
}

// SQLSource is a DataSource over a Querier.
type SQLSource struct {
	db Querier
}

// NewSQLSource returns a DataSource executing through db.
func NewSQLSource(db Querier) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) Select(ctx context.Context, st *Statement) (Rows, error) {
	query, args := s.Render(st)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return ScanRows(rows)
}

// Render builds the SQL text and arguments for st in the source's dialect.
func (s *SQLSource) Render(st *Statement) (string, []any) {
	d := s.db.dialect()
	qualify := len(st.Joins) > 0

	var b strings.Builder
	b.WriteString("SELECT ")
	if st.Select != nil {
		b.WriteString(*st.Select)
	} else {
		cols := make([]string, len(st.Columns))
		for i, c := range st.Columns {
			cols[i] = renderColumn(d, c, qualify)
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(d.QuoteIdent(st.Table))
	for _, j := range st.Joins {
		fmt.Fprintf(&b, " INNER JOIN %s ON %s.%s = %s.%s",
			d.QuoteIdent(j.Table),
			d.QuoteIdent(j.Table), d.QuoteIdent(j.Column),
			d.QuoteIdent(j.OnTable), d.QuoteIdent(j.OnColumn),
		)
	}
	var args []any
	for i, w := range st.Where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		if w.Column != "" {
			if qualify || (w.Table != "" && w.Table != st.Table) {
				fmt.Fprintf(&b, "%s.%s = ?", d.QuoteIdent(w.Table), d.QuoteIdent(w.Column))
			} else {
				fmt.Fprintf(&b, "%s = ?", d.QuoteIdent(w.Column))
			}
		} else {
			b.WriteString(w.Clause)
		}
		args = append(args, w.Args...)
	}
	if len(st.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(st.OrderBy, ", "))
	}
	if st.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *st.Limit)
	}
	if st.Offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *st.Offset)
	}
	return rewritePlaceholders(d, b.String()), args
}

func renderColumn(d Dialect, c Column, qualify bool) string {
	s := d.QuoteIdent(c.Name)
	if qualify {
		s = d.QuoteIdent(c.Table) + "." + s
	}
	if c.Alias != "" {
		s += " AS " + d.QuoteIdent(c.Alias)
	}
	return s
}

// rewritePlaceholders converts ? to dialect-specific placeholders ($1, $2, …).
func rewritePlaceholders(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	idx := 1
	for i := range len(query) {
		if query[i] == '?' {
			b.WriteString(d.Placeholder(idx))
			idx++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
