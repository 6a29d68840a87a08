package orm

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// BindMode selects how a row is written onto a data model.
type BindMode int

const (
	// BindAll hydrates a fresh model from every declared field.
	BindAll BindMode = iota
	// BindDifferences rebinds onto an existing model. Columns absent from the
	// row keep their prior values.
	BindDifferences
)

type fieldFlags uint8

const (
	flagPrimaryKey fieldFlags = 1 << iota
	flagToken
)

// FieldOption marks a field as primary key or concurrency token.
type FieldOption func(*fieldFlags)

// PrimaryKey marks the field as (part of) the primary key.
func PrimaryKey() FieldOption { return func(f *fieldFlags) { *f |= flagPrimaryKey } }

// Token marks the field as the concurrency token.
func Token() FieldOption { return func(f *fieldFlags) { *f |= flagToken } }

// Field binds one column of M. Build fields with Col.
type Field[M any] struct {
	Column string
	flags  fieldFlags
	set    func(m *M, src any) error
	get    func(m *M) any
}

// Col declares a field stored at ptr(m). Source values are converted with the
// same rules database/sql applies when scanning.
//
//	orm.Col("id", func(o *Order) *int { return &o.ID }, orm.PrimaryKey())
func Col[M, V any](column string, ptr func(*M) *V, opts ...FieldOption) Field[M] {
	f := Field[M]{Column: column}
	for _, o := range opts {
		o(&f.flags)
	}
	f.set = func(m *M, src any) error {
		var n sql.Null[V]
		if err := n.Scan(src); err != nil {
			return errors.Wrapf(err, "orm: bind column %q", column)
		}
		*ptr(m) = n.V
		return nil
	}
	f.get = func(m *M) any { return *ptr(m) }
	return f
}

// Binder binds rows onto M and derives their identity keys.
// The field table is resolved once, when the Binder is built.
type Binder[M any] struct {
	typeName string
	fields   []Field[M]
	byColumn map[string]int
	pk       []int
	token    int
}

// NewBinder validates fields and returns a Binder for typeName.
func NewBinder[M any](typeName string, fields []Field[M]) (*Binder[M], error) {
	b := &Binder[M]{
		typeName: typeName,
		fields:   fields,
		byColumn: make(map[string]int, len(fields)),
		token:    -1,
	}
	for i, f := range fields {
		if f.set == nil {
			return nil, errors.Newf("orm: %s: field %q was not built with Col", typeName, f.Column)
		}
		if _, dup := b.byColumn[f.Column]; dup {
			return nil, errors.Newf("orm: %s: duplicate column %q", typeName, f.Column)
		}
		b.byColumn[f.Column] = i
		if f.flags&flagPrimaryKey != 0 {
			b.pk = append(b.pk, i)
		}
		if f.flags&flagToken != 0 {
			if b.token >= 0 {
				return nil, errors.Newf("orm: %s: more than one concurrency token", typeName)
			}
			b.token = i
		}
	}
	return b, nil
}

// Columns returns the declared column names in declaration order.
func (b *Binder[M]) Columns() []string {
	cols := make([]string, len(b.fields))
	for i, f := range b.fields {
		cols[i] = f.Column
	}
	return cols
}

// PrimaryKey returns the primary-key column names.
func (b *Binder[M]) PrimaryKey() []string {
	cols := make([]string, len(b.pk))
	for i, idx := range b.pk {
		cols[i] = b.fields[idx].Column
	}
	return cols
}

// Bind writes row onto into (a new model when into is nil) and returns the
// model with the names of the fields that changed.
func (b *Binder[M]) Bind(ctx context.Context, row Row, mode BindMode, into *M) (*M, []string, error) {
	m := into
	if m == nil {
		m = new(M)
	}
	var changed []string
	matched := 0
	for _, f := range b.fields {
		i := row.FieldIndex(f.Column)
		if i < 0 {
			continue
		}
		matched++
		if mode == BindDifferences {
			before := f.get(m)
			if err := f.set(m, row.Value(i)); err != nil {
				return nil, nil, errors.Wrapf(err, "orm: %s", b.typeName)
			}
			if !valueEqual(before, f.get(m)) {
				changed = append(changed, f.Column)
			}
			continue
		}
		if err := f.set(m, row.Value(i)); err != nil {
			return nil, nil, errors.Wrapf(err, "orm: %s", b.typeName)
		}
		changed = append(changed, f.Column)
	}
	if matched == 0 {
		return nil, nil, errors.Wrapf(ErrNoBindableField, "%s", b.typeName)
	}
	applyStatus(ctx, row, m)
	return m, changed, nil
}

// CreateKey extracts the identity key of row.
func (b *Binder[M]) CreateKey(row Row) (Key, error) {
	k := Key{Type: b.typeName, Values: make([]any, len(b.pk))}
	for i, idx := range b.pk {
		col := b.fields[idx].Column
		pos := row.FieldIndex(col)
		if pos < 0 {
			return Key{}, errors.Wrapf(ErrMissingKey, "%s.%s", b.typeName, col)
		}
		k.Values[i] = row.Value(pos)
	}
	if b.token >= 0 {
		if pos := row.FieldIndex(b.fields[b.token].Column); pos >= 0 {
			k.Token = row.Value(pos)
		}
	}
	return k, nil
}

// KeyOf returns the identity key held by a bound model.
func (b *Binder[M]) KeyOf(m *M) Key {
	k := Key{Type: b.typeName, Values: make([]any, len(b.pk))}
	for i, idx := range b.pk {
		k.Values[i] = b.fields[idx].get(m)
	}
	if b.token >= 0 {
		k.Token = b.fields[b.token].get(m)
	}
	return k
}

// Get reads column from m through the precomputed accessor.
func (b *Binder[M]) Get(m *M, column string) (any, bool) {
	i, ok := b.byColumn[column]
	if !ok {
		return nil, false
	}
	return b.fields[i].get(m), true
}

// Status is the activation state derived from the well-known
// activated_at / expired_at columns.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusActive
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

const (
	ActivatedColumn = "activated_at"
	ExpiredColumn   = "expired_at"
)

// StatusSetter is implemented by models that track activation status.
type StatusSetter interface {
	SetStatus(Status)
}

func applyStatus(ctx context.Context, row Row, m any) {
	setter, ok := m.(StatusSetter)
	if !ok {
		return
	}
	ai, ei := row.FieldIndex(ActivatedColumn), row.FieldIndex(ExpiredColumn)
	if ai < 0 && ei < 0 {
		return
	}
	var activated, expired any
	if ai >= 0 {
		activated = row.Value(ai)
	}
	if ei >= 0 {
		expired = row.Value(ei)
	}
	setter.SetStatus(deriveStatus(now(ctx), activated, expired))
}

func deriveStatus(at time.Time, activated, expired any) Status {
	if t, ok := asTime(expired); ok && !at.Before(t) {
		return StatusExpired
	}
	if t, ok := asTime(activated); ok && at.Before(t) {
		return StatusPending
	}
	return StatusActive
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05", "2006-01-02"}

func asTime(v any) (time.Time, bool) {
	switch x := normalize(v).(type) {
	case time.Time:
		return x, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
