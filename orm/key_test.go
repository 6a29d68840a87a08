package orm_test

import (
	"testing"
	"time"

	"github.com/mickamy/ormgraph/orm"
)

func TestKey_Equal(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		a, b orm.Key
		mode orm.CompareMode
		want bool
	}{
		{"key/int widths", orm.NewKey("Order", 1), orm.NewKey("Order", int64(1)), orm.CompareKey, true},
		{"key/bytes and string", orm.NewKey("Tag", []byte("rush")), orm.NewKey("Tag", "rush"), orm.CompareKey, true},
		{"key/time zones", orm.NewKey("Day", ts), orm.NewKey("Day", ts.In(time.FixedZone("X", 3600))), orm.CompareKey, true},
		{"key/different", orm.NewKey("Order", 1), orm.NewKey("Order", 2), orm.CompareKey, false},
		{"key/different type", orm.NewKey("Order", 1), orm.NewKey("Item", 1), orm.CompareKey, false},
		{"key/untyped", orm.NewKey("", 1), orm.NewKey("Item", 1), orm.CompareKey, true},
		{"key/composite", orm.NewKey("OrderTag", 1, 100), orm.NewKey("OrderTag", 1, 101), orm.CompareKey, false},
		{"key/empty", orm.Key{}, orm.Key{}, orm.CompareKey, false},
		{"key/ignores token", orm.Key{Values: []any{1}, Token: 1}, orm.Key{Values: []any{1}, Token: 2}, orm.CompareKey, true},
		{"token/equal", orm.Key{Values: []any{1}, Token: 5}, orm.Key{Values: []any{2}, Token: int64(5)}, orm.CompareToken, true},
		{"token/absent uses key", orm.NewKey("Customer", 7), orm.NewKey("Customer", 8), orm.CompareToken, false},
		{"token/absent same key", orm.NewKey("Customer", 7), orm.NewKey("Customer", int64(7)), orm.CompareToken, true},
		{"token/one side absent", orm.Key{Values: []any{1}, Token: 5}, orm.Key{Values: []any{2}}, orm.CompareToken, false},
		{"both/token differs", orm.Key{Values: []any{1}, Token: 1}, orm.Key{Values: []any{1}, Token: 2}, orm.CompareBoth, false},
		{"both/equal", orm.Key{Values: []any{1}, Token: 1}, orm.Key{Values: []any{1}, Token: 1}, orm.CompareBoth, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.a.Equal(tt.b, tt.mode); got != tt.want {
				t.Errorf("%s.Equal(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestKey_String(t *testing.T) {
	t.Parallel()

	k := orm.Key{Type: "OrderTag", Values: []any{1, int64(100)}, Token: 3}
	if got, want := k.String(), "OrderTag(1,100)@3"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
