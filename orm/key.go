package orm

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// CompareMode selects which parts of a Key take part in equality.
type CompareMode int

const (
	// CompareKey compares primary-key values only.
	CompareKey CompareMode = iota
	// CompareToken compares concurrency tokens only. Keys of a type
	// without a token fall back to their primary-key values.
	CompareToken
	// CompareBoth requires both primary-key values and tokens to match.
	CompareBoth
)

// Key identifies a row: its primary-key values plus an optional
// concurrency token.
type Key struct {
	Type   string
	Values []any
	Token  any
}

// NewKey returns a Key for typeName with the given primary-key values.
func NewKey(typeName string, values ...any) Key {
	return Key{Type: typeName, Values: values}
}

// IsZero reports whether the key carries no primary-key values.
func (k Key) IsZero() bool { return len(k.Values) == 0 }

// Equal compares two keys under mode. The type names are compared only when
// both keys carry one.
func (k Key) Equal(other Key, mode CompareMode) bool {
	if k.Type != "" && other.Type != "" && k.Type != other.Type {
		return false
	}
	switch mode {
	case CompareToken:
		if k.Token == nil || other.Token == nil {
			return k.valuesEqual(other)
		}
		return valueEqual(k.Token, other.Token)
	case CompareBoth:
		return k.valuesEqual(other) && valueEqual(k.Token, other.Token)
	default:
		return k.valuesEqual(other)
	}
}

func (k Key) valuesEqual(other Key) bool {
	if len(k.Values) == 0 || len(k.Values) != len(other.Values) {
		return false
	}
	for i := range k.Values {
		if !valueEqual(k.Values[i], other.Values[i]) {
			return false
		}
	}
	return true
}

func (k Key) String() string {
	parts := make([]string, len(k.Values))
	for i, v := range k.Values {
		parts[i] = fmt.Sprint(normalize(v))
	}
	s := k.Type + "(" + strings.Join(parts, ",") + ")"
	if k.Token != nil {
		s += "@" + fmt.Sprint(normalize(k.Token))
	}
	return s
}

// normalize folds driver and Go representations of the same value together
// so that int and int64, or []byte and string, compare equal.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return v
		}
		return normalize(dv)
	}
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x) //nolint:gosec // keys fit in int64
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x) //nolint:gosec // keys fit in int64
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return v
}

func valueEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// signature renders args as a stable string for deduplicating statements.
func signature(args []any) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "%T:%v", normalize(a), normalize(a))
	}
	return b.String()
}
