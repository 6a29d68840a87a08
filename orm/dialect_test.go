package orm_test

import (
	"testing"

	"github.com/mickamy/ormgraph/orm"
)

func TestPlaceholder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect orm.Dialect
		index   int
		want    string
	}{
		{"mysql/1", orm.MySQL, 1, "?"},
		{"mysql/10", orm.MySQL, 10, "?"},
		{"postgres/1", orm.PostgreSQL, 1, "$1"},
		{"postgres/10", orm.PostgreSQL, 10, "$10"},
		{"sqlite/3", orm.SQLite, 3, "?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.dialect.Placeholder(tt.index); got != tt.want {
				t.Errorf("Placeholder(%d) = %q, want %q", tt.index, got, tt.want)
			}
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect orm.Dialect
		want    string
	}{
		{"mysql", orm.MySQL, "`order`"},
		{"postgres", orm.PostgreSQL, `"order"`},
		{"sqlite", orm.SQLite, `"order"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.dialect.QuoteIdent("order"); got != tt.want {
				t.Errorf("QuoteIdent = %q, want %q", got, tt.want)
			}
		})
	}
}
