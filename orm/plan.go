package orm

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/mickamy/ormgraph/scope"
)

// Mode selects how much of the association graph is hydrated up front.
type Mode int

const (
	// FullLoad resolves every non-lazy association in the same batch.
	FullLoad Mode = iota
	// LazyLoad binds root rows only. Associations resolve on first access.
	LazyLoad
)

func (m Mode) String() string {
	if m == LazyLoad {
		return "lazy"
	}
	return "full"
}

// Planner expands association descriptors into sub-queries.
type Planner struct {
	schema *Schema
}

// NewPlanner returns a Planner resolving target types through schema.
func NewPlanner(schema *Schema) *Planner {
	return &Planner{schema: schema}
}

// Expand attaches one sub-query per non-lazy association (and per variant
// of a polymorphic one) to q, recursively for the targets' own
// associations. Resolved records are attached to their parent record under
// the association name.
func (p *Planner) Expand(q *Query, onFailure FailureFunc) error {
	return p.expand(q, []string{q.loader.TypeName()}, onFailure)
}

func (p *Planner) expand(q *Query, path []string, onFailure FailureFunc) error {
	for _, a := range q.loader.Associations() {
		if a.lazy {
			continue
		}
		if err := p.attach(q, a, path, onFailure); err != nil {
			return err
		}
	}
	return nil
}

// ForParent builds the sub-queries of a single association for one known
// parent record. Deferred references are resolved to literals and the
// targets' own associations are not expanded.
func (p *Planner) ForParent(parent *Record, a *Association, onFailure FailureFunc) (*Query, error) {
	root := NewQuery(parent.loader)
	if err := p.attach(root, a, nil, onFailure); err != nil {
		return nil, err
	}
	for _, sub := range root.subs {
		for i, w := range sub.wheres {
			args, err := resolveArgs(w.args, parent)
			if err != nil {
				return nil, err
			}
			sub.wheres[i].args = args
		}
	}
	return root, nil
}

// attach registers the sub-queries of a on q. A nil path disables nested
// expansion.
func (p *Planner) attach(q *Query, a *Association, path []string, onFailure FailureFunc) error {
	targets := make([]EntityLoader, 0, len(a.targets))
	for _, name := range a.targets {
		if path != nil && slices.Contains(path, name) {
			return errors.Wrapf(ErrSelfReference, "%s.%s -> %s", q.loader.TypeName(), a.name, name)
		}
		l, err := p.schema.GetLoader(name)
		if err != nil {
			return errors.Wrapf(err, "%s.%s", q.loader.TypeName(), a.name)
		}
		targets = append(targets, l)
	}

	name := a.name
	resolved := func(_ context.Context, parent *Record, recs []*Record) {
		parent.setAssociation(name, recs)
	}
	ready := ReadyFunc(resolved)
	if a.polymorphic {
		j := newJoin(len(targets), resolved)
		if len(targets) == 0 {
			q.OnNestedProcessed(j.empty)
			return nil
		}
		ready = j.add
	}

	for _, target := range targets {
		sub := q.BeginSubQuery(target, ready, onFailure)
		sub.assoc = a
		if err := p.conditions(sub, a, target); err != nil {
			return err
		}
		if path != nil {
			if err := p.expand(sub, append(slices.Clone(path), target.TypeName()), onFailure); err != nil {
				return err
			}
		}
		sub.EndSubQuery()
	}
	return nil
}

// conditions adds the key equality and the conditional expression of a to
// sub. At least one of them must exist.
func (p *Planner) conditions(sub *Query, a *Association, target EntityLoader) error {
	keyed := false
	switch a.kind {
	case Link:
		junction, err := p.schema.GetLoader(a.junction)
		if err != nil {
			return errors.Wrapf(err, "%s: junction", a.name)
		}
		targetKey := a.targetKey
		if targetKey == "" {
			pk := target.PrimaryKey()
			if len(pk) != 1 {
				return errors.Wrapf(ErrNoCondition, "%s: %s has no single primary key", a.name, target.TypeName())
			}
			targetKey = pk[0]
		}
		jt := junction.Table()
		sub.joins = append(sub.joins, Join{Table: jt, Column: a.otherKey, OnTable: target.Table(), OnColumn: targetKey})
		for _, c := range junction.Columns() {
			sub.extra = append(sub.extra, Column{Table: jt, Name: c, Alias: junctionPrefix(junction) + c})
		}
		sub.junction = junction
		if a.parentGet != nil {
			sub.addKeyCondition(jt, a.foreignKey, scope.Ref(a.parentKey))
			keyed = true
		}
	default:
		fk := a.foreignKey
		if fk == "" && a.kind == Reference {
			if pk := target.PrimaryKey(); len(pk) == 1 {
				fk = pk[0]
			}
		}
		if fk != "" && a.parentGet != nil {
			sub.addKeyCondition(target.Table(), fk, scope.Ref(a.parentKey))
			keyed = true
		}
	}
	for _, s := range a.where {
		s.Apply(sub)
	}
	if !keyed && !a.where.HasFilter() {
		return errors.Wrapf(ErrNoCondition, "%s", a.name)
	}
	return nil
}

// junctionPrefix is the alias prefix of junction columns selected
// alongside a linked target.
func junctionPrefix(junction EntityLoader) string {
	return junction.Table() + "__"
}
