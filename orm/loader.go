package orm

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/mickamy/ormgraph/internal/naming"
	"github.com/mickamy/ormgraph/scope"
)

// EntityLoader is the type-erased view of a defined entity type. Only
// *Type values implement it.
type EntityLoader interface {
	TypeName() string
	Table() string
	Columns() []string
	PrimaryKey() []string
	Associations() []*Association
	Association(name string) (*Association, bool)
	CreateKey(row Row) (Key, error)

	bind(ctx context.Context, row Row) (*Record, error)
	construct(ctx context.Context, rec *Record, c *Containers) (any, error)
	value(model any, column string) (any, bool)
}

// Constructor builds an entity from its bound model and association
// containers. It should consume the associations it keeps; the rest are
// disposed after it returns.
type Constructor[M, E any] func(ctx context.Context, m *M, c *Containers) (E, error)

// TableNamer can be implemented by model structs to override the
// auto-derived table name.
type TableNamer interface {
	TableName() string
}

// ResolveTableName returns the table name for type T.
// If T implements TableNamer (value or pointer receiver), that name is used;
// otherwise fallback is returned.
func ResolveTableName[T any](fallback string) string {
	var zero T
	if tn, ok := any(&zero).(TableNamer); ok {
		return tn.TableName()
	}
	return fallback
}

// Type is a defined entity type: model M bound from rows, entity E built
// by the constructor.
type Type[M, E any] struct {
	name      string
	table     string
	binder    *Binder[M]
	newEntity Constructor[M, E]
	assocs    []*Association
	byName    map[string]*Association
}

var _ EntityLoader = (*Type[struct{}, struct{}])(nil)

// Define declares entity type name. The table defaults to the plural
// snake_case of name unless M implements TableNamer.
func Define[M, E any](name string, fields []Field[M], construct Constructor[M, E], assocs ...*Association) (*Type[M, E], error) {
	if construct == nil {
		return nil, errors.Newf("orm: %s: constructor is required", name)
	}
	binder, err := NewBinder(name, fields)
	if err != nil {
		return nil, err
	}
	t := &Type[M, E]{
		name:      name,
		table:     ResolveTableName[M](naming.TableName(name)),
		binder:    binder,
		newEntity: construct,
		byName:    make(map[string]*Association, len(assocs)),
	}
	for _, a := range assocs {
		if _, dup := t.byName[a.name]; dup {
			return nil, errors.Wrapf(ErrDuplicateAssociation, "%s.%s", name, a.name)
		}
		c, err := t.resolve(a)
		if err != nil {
			return nil, err
		}
		t.assocs = append(t.assocs, c)
		t.byName[c.name] = c
	}
	return t, nil
}

// resolve copies a and binds its parent-side accessors to the field table.
func (t *Type[M, E]) resolve(a *Association) (*Association, error) {
	c := a.clone()
	if c.parentKey == "" && c.kind != Reference {
		if pk := t.binder.PrimaryKey(); len(pk) == 1 {
			c.parentKey = pk[0]
		}
	}
	if c.parentKey != "" {
		i, ok := t.binder.byColumn[c.parentKey]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownColumn, "%s.%s: parent key %q", t.name, c.name, c.parentKey)
		}
		get := t.binder.fields[i].get
		c.parentGet = func(model any) (any, bool) {
			m, ok := model.(*M)
			if !ok {
				return nil, false
			}
			return get(m), true
		}
	}
	refs := &refCollector{}
	for _, s := range c.where {
		if s.HasRefs() {
			s.Apply(refs)
		}
	}
	for _, col := range refs.columns {
		if _, ok := t.binder.byColumn[col]; !ok {
			return nil, errors.Wrapf(ErrUnknownColumn, "%s.%s: condition references %q", t.name, c.name, col)
		}
	}
	return c, nil
}

func (t *Type[M, E]) TypeName() string     { return t.name }
func (t *Type[M, E]) Table() string        { return t.table }
func (t *Type[M, E]) Columns() []string    { return t.binder.Columns() }
func (t *Type[M, E]) PrimaryKey() []string { return t.binder.PrimaryKey() }
func (t *Type[M, E]) Binder() *Binder[M]   { return t.binder }
func (t *Type[M, E]) CreateKey(row Row) (Key, error) {
	return t.binder.CreateKey(row)
}

// Associations returns the declared associations in declaration order.
func (t *Type[M, E]) Associations() []*Association {
	return append([]*Association(nil), t.assocs...)
}

func (t *Type[M, E]) Association(name string) (*Association, bool) {
	a, ok := t.byName[name]
	return a, ok
}

// SaveOrder partitions the owned associations by save priority.
func (t *Type[M, E]) SaveOrder() (before, after []*Association) {
	for _, a := range t.assocs {
		if !a.owned {
			continue
		}
		if a.priority == SaveBeforeParent {
			before = append(before, a)
		} else {
			after = append(after, a)
		}
	}
	return before, after
}

func (t *Type[M, E]) bind(ctx context.Context, row Row) (*Record, error) {
	m, _, err := t.binder.Bind(ctx, row, BindAll, nil)
	if err != nil {
		return nil, err
	}
	return &Record{loader: t, row: row, model: m, key: t.binder.KeyOf(m)}, nil
}

func (t *Type[M, E]) construct(ctx context.Context, rec *Record, c *Containers) (any, error) {
	m, ok := rec.model.(*M)
	if !ok {
		return nil, errors.Newf("orm: %s: record holds %T", t.name, rec.model)
	}
	return invoke(func() (any, error) {
		e, err := t.newEntity(ctx, m, c)
		if err != nil {
			return nil, err
		}
		return e, nil
	})
}

func (t *Type[M, E]) value(model any, column string) (any, bool) {
	m, ok := model.(*M)
	if !ok {
		return nil, false
	}
	return t.binder.Get(m, column)
}

// Record is a bound row: its model, key and, after a full-load batch, the
// records of its resolved associations.
type Record struct {
	loader   EntityLoader
	row      Row
	model    any
	key      Key
	junction *Record
	assocs   map[string][]*Record
}

func (r *Record) Type() string      { return r.loader.TypeName() }
func (r *Record) Model() any        { return r.model }
func (r *Record) Key() Key          { return r.key }
func (r *Record) Junction() *Record { return r.junction }

// Association returns the records resolved for name, and whether the
// association was resolved at all.
func (r *Record) Association(name string) ([]*Record, bool) {
	recs, ok := r.assocs[name]
	return recs, ok
}

func (r *Record) setAssociation(name string, recs []*Record) {
	if r.assocs == nil {
		r.assocs = make(map[string][]*Record)
	}
	r.assocs[name] = recs
}

// Schema is the entity-type registry.
type Schema struct {
	mu      sync.RWMutex
	loaders map[string]EntityLoader
}

// NewSchema returns a Schema holding loaders.
func NewSchema(loaders ...EntityLoader) (*Schema, error) {
	s := &Schema{loaders: make(map[string]EntityLoader, len(loaders))}
	for _, l := range loaders {
		if err := s.Register(l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register adds l. Registering the same type name twice fails.
func (s *Schema) Register(l EntityLoader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.loaders[l.TypeName()]; dup {
		return errors.Wrapf(ErrDuplicateType, "%s", l.TypeName())
	}
	s.loaders[l.TypeName()] = l
	return nil
}

// GetLoader returns the loader declared for typeName.
func (s *Schema) GetLoader(typeName string) (EntityLoader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loaders[typeName]
	if !ok {
		return nil, errors.Wrapf(ErrLoaderNotFound, "%s", typeName)
	}
	return l, nil
}

// CreateKey extracts the identity key of a typeName row.
func (s *Schema) CreateKey(typeName string, row Row) (Key, error) {
	l, err := s.GetLoader(typeName)
	if err != nil {
		return Key{}, err
	}
	return l.CreateKey(row)
}

type refCollector struct {
	columns []string
}

func (r *refCollector) ApplyWhere(_ string, args []any) {
	for _, a := range args {
		if ref, ok := a.(scope.Ref); ok {
			r.columns = append(r.columns, ref.Column())
		}
	}
}
func (r *refCollector) ApplyOrderBy(string) {}
func (r *refCollector) ApplyLimit(int)      {}
func (r *refCollector) ApplyOffset(int)     {}
func (r *refCollector) ApplySelect(string)  {}
