package orm

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/mickamy/ormgraph/scope"
)

// ReadyFunc receives the records a sub-query produced for one parent record.
type ReadyFunc func(ctx context.Context, parent *Record, recs []*Record)

// FailureFunc receives a *SubQueryError when a sub-query fails.
type FailureFunc func(err error)

// Query selects rows of one entity type and carries the sub-queries that
// execute with it in the same batch.
// Builder methods return a new Query; the receiver is never modified.
// BeginSubQuery and EndSubQuery mutate the receiver.
type Query struct {
	id     uuid.UUID
	loader EntityLoader
	assoc  *Association

	wheres   []condition
	joins    []Join
	extra    []Column
	orderBys []string
	selects  *string
	limit    *int
	offset   *int

	parent    *Query
	subs      []*Query
	open      bool
	onReady   ReadyFunc
	onFailure FailureFunc
	processed []func(ctx context.Context, parent *Record)
	junction  EntityLoader
}

type condition struct {
	table  string
	column string
	clause string
	args   []any
}

// NewQuery returns an unfiltered query over loader's table.
func NewQuery(loader EntityLoader) *Query {
	return &Query{id: uuid.New(), loader: loader}
}

func (q *Query) ID() uuid.UUID             { return q.id }
func (q *Query) Loader() EntityLoader      { return q.loader }
func (q *Query) Subs() []*Query            { return append([]*Query(nil), q.subs...) }
func (q *Query) Parent() *Query            { return q.parent }
func (q *Query) Association() *Association { return q.assoc }

// HasFilter reports whether the query restricts its row set.
func (q *Query) HasFilter() bool {
	return len(q.wheres) > 0 || q.limit != nil || q.offset != nil
}

// clone returns a shallow copy with slices copied to avoid aliasing.
func (q *Query) clone() *Query {
	q2 := *q
	q2.id = uuid.New()
	q2.wheres = append([]condition(nil), q.wheres...)
	q2.joins = append([]Join(nil), q.joins...)
	q2.extra = append([]Column(nil), q.extra...)
	q2.orderBys = append([]string(nil), q.orderBys...)
	q2.subs = nil
	q2.processed = nil
	return &q2
}

// --- Builder methods ---

func (q *Query) Where(clause string, args ...any) *Query {
	q2 := q.clone()
	q2.ApplyWhere(clause, args)
	return q2
}

func (q *Query) OrderBy(clause string) *Query {
	q2 := q.clone()
	q2.ApplyOrderBy(clause)
	return q2
}

func (q *Query) Limit(n int) *Query {
	q2 := q.clone()
	q2.ApplyLimit(n)
	return q2
}

func (q *Query) Offset(n int) *Query {
	q2 := q.clone()
	q2.ApplyOffset(n)
	return q2
}

// Scopes applies the given scope.Scope values to the query.
func (q *Query) Scopes(scopes ...scope.Scope) *Query {
	q2 := q.clone()
	for _, s := range scopes {
		s.Apply(q2)
	}
	return q2
}

// --- scope.Applier implementation ---

func (q *Query) ApplyWhere(clause string, args []any) {
	q.wheres = append(q.wheres, condition{clause: clause, args: append([]any(nil), args...)})
}

func (q *Query) ApplyOrderBy(clause string) { q.orderBys = append(q.orderBys, clause) }
func (q *Query) ApplyLimit(n int)           { q.limit = &n }
func (q *Query) ApplyOffset(n int)          { q.offset = &n }
func (q *Query) ApplySelect(columns string) { q.selects = &columns }

var _ scope.Applier = (*Query)(nil)

// --- Batch registration ---

// BeginSubQuery registers a sub-query over loader in q's batch and returns
// it for building. onReady fires once per parent record with the rows bound
// for that parent; onFailure receives execution failures.
func (q *Query) BeginSubQuery(loader EntityLoader, onReady ReadyFunc, onFailure FailureFunc) *Query {
	sub := NewQuery(loader)
	sub.parent = q
	sub.open = true
	sub.onReady = onReady
	sub.onFailure = onFailure
	q.subs = append(q.subs, sub)
	return sub
}

// EndSubQuery seals a sub-query and returns its parent.
func (q *Query) EndSubQuery() *Query {
	q.open = false
	return q.parent
}

// OnNestedProcessed subscribes fn to the signal raised after every
// sub-query of q has run for one parent record.
func (q *Query) OnNestedProcessed(fn func(ctx context.Context, parent *Record)) {
	q.processed = append(q.processed, fn)
}

func (q *Query) addKeyCondition(table, column string, arg any) {
	q.wheres = append(q.wheres, condition{table: table, column: column, args: []any{arg}})
}

// Statement renders the root statement. Deferred references cannot be
// resolved without a parent and are reported as errors.
func (q *Query) Statement() (*Statement, error) {
	return q.statement(nil)
}

func (q *Query) statement(parent *Record) (*Statement, error) {
	st := &Statement{
		QueryID: q.id,
		Table:   q.loader.Table(),
		Joins:   append([]Join(nil), q.joins...),
		OrderBy: append([]string(nil), q.orderBys...),
		Select:  q.selects,
		Limit:   q.limit,
		Offset:  q.offset,
	}
	for _, c := range q.loader.Columns() {
		st.Columns = append(st.Columns, Column{Table: st.Table, Name: c})
	}
	st.Columns = append(st.Columns, q.extra...)
	for _, w := range q.wheres {
		args, err := resolveArgs(w.args, parent)
		if err != nil {
			return nil, err
		}
		st.Where = append(st.Where, Condition{Table: w.table, Column: w.column, Clause: w.clause, Args: args})
	}
	return st, nil
}

// resolveArgs replaces scope.Ref arguments with the parent's values.
func resolveArgs(args []any, parent *Record) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		ref, ok := a.(scope.Ref)
		if !ok {
			out[i] = a
			continue
		}
		if parent == nil {
			return nil, errors.Wrapf(ErrUnknownColumn, "reference %q has no parent row", ref.Column())
		}
		v, ok := parent.loader.value(parent.model, ref.Column())
		if !ok {
			return nil, errors.Wrapf(ErrUnknownColumn, "%s.%s", parent.Type(), ref.Column())
		}
		out[i] = v
	}
	return out, nil
}

// Column is one selected column. Alias is empty unless the column is
// renamed in the result.
type Column struct {
	Table string
	Name  string
	Alias string
}

// Condition is one resolved WHERE fragment. When Column is set the
// fragment is Table.Column = Args[0]; otherwise Clause is used verbatim.
type Condition struct {
	Table  string
	Column string
	Clause string
	Args   []any
}

// Join is an INNER JOIN of Table on Table.Column = OnTable.OnColumn.
type Join struct {
	Table    string
	Column   string
	OnTable  string
	OnColumn string
}

// Statement is a dialect-neutral SELECT with every argument resolved.
type Statement struct {
	QueryID uuid.UUID
	Table   string
	Columns []Column
	Joins   []Join
	Where   []Condition
	OrderBy []string
	Select  *string
	Limit   *int
	Offset  *int
}

// Args returns the statement's arguments in placeholder order.
func (st *Statement) Args() []any {
	var args []any
	for _, w := range st.Where {
		args = append(args, w.Args...)
	}
	return args
}
