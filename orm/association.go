package orm

import (
	"github.com/mickamy/ormgraph/scope"
)

// Kind classifies an association.
type Kind int

const (
	// Child is an owned 1:N or 1:1 association. The parent owns the child's
	// lifecycle.
	Child Kind = iota
	// Link is an M:N association through a junction row. The parent owns the
	// junction row, not the linked entity.
	Link
	// Reference is an N:1 or 1:1 association that is not owned.
	Reference
)

func (k Kind) String() string {
	switch k {
	case Child:
		return "child"
	case Link:
		return "link"
	case Reference:
		return "reference"
	default:
		return "unknown"
	}
}

// SavePriority orders an owned association relative to its parent on save.
type SavePriority int

const (
	SaveAfterParent SavePriority = iota
	SaveBeforeParent
)

// Association declares one child, link or reference relationship of an
// entity type. It is immutable once its owning type is defined.
type Association struct {
	name        string
	kind        Kind
	targets     []string
	polymorphic bool

	// Child: column on the target holding the parent key.
	// Reference: column on the target matched by the parent-held key
	// (empty means the target's primary key).
	// Link: column on the junction holding the parent key.
	foreignKey string
	// Column on the parent supplying the key value. Child and Link default
	// to the parent's primary key.
	parentKey string

	junction  string
	otherKey  string
	targetKey string

	where    scope.Scopes
	lazy     bool
	owned    bool
	priority SavePriority

	// Resolved by Define against the owning type's field table.
	parentGet func(model any) (any, bool)
}

// AssociationOption configures an Association.
type AssociationOption func(*Association)

// Children declares an owned association whose target rows carry the
// parent's key in foreignKey.
//
//	orm.Children("Items", "Item", "order_id")
func Children(name, target, foreignKey string, opts ...AssociationOption) *Association {
	a := &Association{name: name, kind: Child, targets: []string{target}, foreignKey: foreignKey, owned: true}
	return a.apply(opts)
}

// Links declares an M:N association through junction. junctionKey is the
// junction column holding the parent key, otherKey the junction column
// holding the target key.
//
//	orm.Links("Tags", "OrderTag", "Tag", "order_id", "tag_id")
func Links(name, junction, target, junctionKey, otherKey string, opts ...AssociationOption) *Association {
	a := &Association{
		name: name, kind: Link, targets: []string{target},
		junction: junction, foreignKey: junctionKey, otherKey: otherKey, owned: true,
	}
	return a.apply(opts)
}

// Refers declares a non-owned association resolved through the parent-held
// key in parentKey. An empty parentKey requires WithCondition.
//
//	orm.Refers("Customer", "Customer", "customer_id")
func Refers(name, target, parentKey string, opts ...AssociationOption) *Association {
	a := &Association{name: name, kind: Reference, targets: []string{target}, parentKey: parentKey}
	return a.apply(opts)
}

func (a *Association) apply(opts []AssociationOption) *Association {
	for _, o := range opts {
		o(a)
	}
	return a
}

// WithCondition ANDs scopes into the association's sub-query. Literal
// arguments are copied as-is; scope.Ref arguments are read from the parent.
// Clauses are rendered verbatim. A Links sub-query joins the junction
// table, so its clauses must qualify columns with their table name:
//
//	orm.WithCondition(scope.Where("order_tags.tag_id <> ?", 101))
func WithCondition(scopes ...scope.Scope) AssociationOption {
	return func(a *Association) { a.where = a.where.Append(scopes...) }
}

// WithParentKey overrides the parent column supplying the key value.
func WithParentKey(column string) AssociationOption {
	return func(a *Association) { a.parentKey = column }
}

// WithTargetKey overrides the target column a Reference or Link matches.
func WithTargetKey(column string) AssociationOption {
	return func(a *Association) {
		if a.kind == Link {
			a.targetKey = column
			return
		}
		a.foreignKey = column
	}
}

// WithVariants makes the association polymorphic over the given target
// types. Zero variants is valid and always resolves to an empty result.
func WithVariants(types ...string) AssociationOption {
	return func(a *Association) {
		a.targets = append([]string(nil), types...)
		a.polymorphic = true
	}
}

// Lazy defers the association until first access, even on full load.
func Lazy() AssociationOption { return func(a *Association) { a.lazy = true } }

// SaveBefore saves the association before its parent.
func SaveBefore() AssociationOption { return func(a *Association) { a.priority = SaveBeforeParent } }

// SaveAfter saves the association after its parent. This is the default.
func SaveAfter() AssociationOption { return func(a *Association) { a.priority = SaveAfterParent } }

func (a *Association) Name() string               { return a.name }
func (a *Association) Kind() Kind                 { return a.kind }
func (a *Association) IsLazy() bool               { return a.lazy }
func (a *Association) IsOwned() bool              { return a.owned }
func (a *Association) IsPolymorphic() bool        { return a.polymorphic }
func (a *Association) SavePriority() SavePriority { return a.priority }
func (a *Association) ForeignKey() string         { return a.foreignKey }
func (a *Association) ParentKey() string          { return a.parentKey }
func (a *Association) Junction() string           { return a.junction }
func (a *Association) Condition() scope.Scopes    { return a.where.Append() }

// Targets returns the target type names, one per variant.
func (a *Association) Targets() []string { return append([]string(nil), a.targets...) }

func (a *Association) clone() *Association {
	c := *a
	c.targets = append([]string(nil), a.targets...)
	c.where = a.where.Append()
	return &c
}
