package orm

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Session assembles entity graphs for one schema and data source. It is
// safe for concurrent use; each call runs its own batch.
type Session struct {
	schema   *Schema
	src      DataSource
	registry *Registry
	planner  *Planner
	exec     *executor
	log      *zap.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRegistry enables live synchronization of returned collections
// through r.
func WithRegistry(r *Registry) SessionOption {
	return func(s *Session) { s.registry = r }
}

// WithZap sets the session logger.
func WithZap(l *zap.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// NewSession returns a Session reading through src.
func NewSession(schema *Schema, src DataSource, opts ...SessionOption) *Session {
	s := &Session{
		schema:  schema,
		src:     src,
		planner: NewPlanner(schema),
		exec:    &executor{src: src},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Schema() *Schema     { return s.schema }
func (s *Session) Registry() *Registry { return s.registry }

// Query returns an unfiltered query over typeName.
func (s *Session) Query(typeName string) (*Query, error) {
	l, err := s.schema.GetLoader(typeName)
	if err != nil {
		return nil, err
	}
	return NewQuery(l), nil
}

// Plan is a prepared query tree. It can be processed once.
type Plan struct {
	root     *Query
	mode     Mode
	consumed bool
}

func (p *Plan) Mode() Mode    { return p.mode }
func (p *Plan) Query() *Query { return p.root }

// Statement renders the root statement the caller executes before
// ProcessResult.
func (p *Plan) Statement() (*Statement, error) { return p.root.Statement() }

// Prepare builds the plan for q. Configuration errors in the association
// graph surface here.
func (s *Session) Prepare(_ context.Context, q *Query, mode Mode) (*Plan, error) {
	root := q.clone()
	if mode == FullLoad {
		if err := s.planner.Expand(root, s.subQueryFailed); err != nil {
			return nil, err
		}
	}
	return &Plan{root: root, mode: mode}, nil
}

func (s *Session) subQueryFailed(err error) {
	var serr *SubQueryError
	if errors.As(err, &serr) {
		s.log.Warn("sub-query failed",
			zap.Stringer("query", serr.QueryID),
			zap.String("association", serr.Association),
			zap.Error(serr.Err),
		)
		return
	}
	s.log.Warn("sub-query failed", zap.Error(err))
}

// FullEntities loads the entities matching q with their whole association
// graph.
func FullEntities[E any](ctx context.Context, s *Session, q *Query) (*Collection[E], error) {
	return load[E](ctx, s, q, FullLoad)
}

// LazyEntities loads the entities matching q. Their associations resolve
// on first access.
func LazyEntities[E any](ctx context.Context, s *Session, q *Query) (*Collection[E], error) {
	return load[E](ctx, s, q, LazyLoad)
}

func load[E any](ctx context.Context, s *Session, q *Query, mode Mode) (*Collection[E], error) {
	plan, err := s.Prepare(ctx, q, mode)
	if err != nil {
		return nil, err
	}
	st, err := plan.Statement()
	if err != nil {
		return nil, err
	}
	rows, err := s.src.Select(ctx, st)
	if err != nil {
		return nil, errors.Wrapf(err, "orm: select %s", plan.root.loader.TypeName())
	}
	return ProcessResult[E](ctx, s, plan, rows)
}

// ProcessResult assembles the root rows of plan. The sub-queries of plan
// run against the session's data source. rows is closed before returning.
//
// On a full load every row-level failure of the batch is returned as one
// *AggregateError. Binding failures keep the entities that did assemble;
// a failed sub-query discards the whole result.
func ProcessResult[E any](ctx context.Context, s *Session, plan *Plan, rows Rows) (*Collection[E], error) {
	defer func() { _ = rows.Close() }()
	if plan.consumed {
		return nil, errors.WithStack(ErrPlanConsumed)
	}
	plan.consumed = true

	b := newBatch()
	defer b.close()
	recs := s.exec.process(ctx, plan.root, rows, b)
	if b.subFailed {
		return nil, &AggregateError{Errs: b.errs}
	}

	coll := NewCollection[E]()
	for _, rec := range recs {
		e, life, err := s.build(ctx, rec, plan.mode, b)
		if err != nil {
			b.fail(err)
			continue
		}
		v, ok := e.(E)
		if !ok {
			var zero E
			life.Dispose()
			disposeEntity(e)
			b.fail(errors.Newf("orm: %s: entity %T is not %T", rec.Type(), e, zero))
			continue
		}
		if !coll.add(v, rec.key, CompareKey, life) {
			life.Dispose()
			disposeEntity(v)
		}
	}
	s.log.Debug("assembled",
		zap.String("type", plan.root.loader.TypeName()),
		zap.Stringer("mode", plan.mode),
		zap.Int("rows", rows.Len()),
		zap.Int("entities", coll.Len()),
	)

	if s.registry != nil && s.registry.Enabled() && !plan.root.HasFilter() {
		o := &collectionObserver[E]{
			registry: s.registry,
			coll:     coll,
			loader:   plan.root.loader,
			build:    entityBuilder[E](s, plan.root.loader, plan.mode),
		}
		o.observe()
	}
	if len(b.errs) > 0 {
		return coll, &AggregateError{Errs: b.errs}
	}
	return coll, nil
}

// build constructs the entity of rec. Resolved associations are built
// first, bottom-up; lazy ones become deferred handles. The returned
// lifetime owns the handles the constructor took.
func (s *Session) build(ctx context.Context, rec *Record, mode Mode, b *batch) (any, *lifetime, error) {
	state := &LazyState{}
	life := &lifetime{}
	c := newContainers(life)
	for _, a := range rec.loader.Associations() {
		sl := &slot{assoc: a}
		recs, resolved := rec.Association(a.name)
		if mode == LazyLoad || a.lazy || !resolved {
			sl.load = s.deferred(rec, a, state)
		} else {
			sl.items = s.buildItems(ctx, recs, mode, b)
		}
		sl.live = s.liveScope(rec, a, state, mode)
		c.put(sl)
	}
	e, err := rec.loader.construct(ctx, rec, c)
	c.Dispose()
	if err != nil {
		life.Dispose()
		return nil, nil, err
	}
	if err := state.Set(e); err != nil {
		life.Dispose()
		return nil, nil, err
	}
	if l, ok := e.(Loadable); ok && mode == FullLoad {
		l.OnLoaded()
	}
	return e, life, nil
}

func (s *Session) buildItems(ctx context.Context, recs []*Record, mode Mode, b *batch) []item {
	items := make([]item, 0, len(recs))
	for _, r := range recs {
		e, life, err := s.build(ctx, r, mode, b)
		if err != nil {
			b.fail(err)
			continue
		}
		it := item{entity: e, key: r.key, life: life}
		if r.junction != nil {
			j, jlife, err := s.build(ctx, r.junction, mode, b)
			if err != nil {
				b.fail(err)
				disposeItems([]item{it})
				continue
			}
			it.junction = j
			life.add(jlife)
		}
		items = append(items, it)
	}
	return items
}

// deferred returns the loader of a lazy association of rec. It runs its
// own batch scoped to rec and builds the targets lazily.
func (s *Session) deferred(rec *Record, a *Association, state *LazyState) loadFunc {
	return func(ctx context.Context) ([]item, error) {
		if _, ok := state.Owner(); !ok {
			return nil, errors.Wrapf(ErrNotConstructed, "%s.%s", rec.Type(), a.name)
		}
		if !state.Alive() {
			return nil, errors.Wrapf(ErrDisposed, "%s.%s", rec.Type(), a.name)
		}
		root, err := s.planner.ForParent(rec, a, s.subQueryFailed)
		if err != nil {
			return nil, err
		}
		parent := &Record{loader: rec.loader, row: rec.row, model: rec.model, key: rec.key}
		b := newBatch()
		defer b.close()
		s.exec.fanOut(ctx, root, parent, b)
		if len(b.errs) > 0 {
			return nil, &AggregateError{Errs: b.errs}
		}
		recs, _ := parent.Association(a.name)
		items := s.buildItems(ctx, recs, LazyLoad, b)
		if len(b.errs) > 0 {
			disposeItems(items)
			return nil, &AggregateError{Errs: b.errs}
		}
		return items, nil
	}
}

// liveScope reports how a child handle of rec observes its targets, or nil
// when it must not.
func (s *Session) liveScope(rec *Record, a *Association, state *LazyState, mode Mode) *liveScope {
	if s.registry == nil || !s.registry.Enabled() {
		return nil
	}
	if a.kind != Child || a.where.HasFilter() || a.foreignKey == "" || a.parentGet == nil {
		return nil
	}
	value, ok := a.parentGet(rec.model)
	if !ok {
		return nil
	}
	targets := make([]EntityLoader, 0, len(a.targets))
	for _, name := range a.targets {
		l, err := s.schema.GetLoader(name)
		if err != nil {
			return nil
		}
		targets = append(targets, l)
	}
	return &liveScope{session: s, targets: targets, column: a.foreignKey, value: value, state: state, mode: mode}
}

// assembleRow builds one entity of loader from row, resolving its
// associations according to mode. Live observers use it on insert; the
// collection that accepts the entity takes over the returned lifetime.
func (s *Session) assembleRow(ctx context.Context, loader EntityLoader, row Row, mode Mode) (any, Key, *lifetime, error) {
	rec, err := loader.bind(ctx, row)
	if err != nil {
		return nil, Key{}, nil, err
	}
	b := newBatch()
	defer b.close()
	if mode == FullLoad {
		q := NewQuery(loader)
		if err := s.planner.Expand(q, s.subQueryFailed); err != nil {
			return nil, Key{}, nil, err
		}
		s.exec.fanOut(ctx, q, rec, b)
		if b.subFailed {
			return nil, Key{}, nil, &AggregateError{Errs: b.errs}
		}
	}
	e, life, err := s.build(ctx, rec, mode, b)
	if err != nil {
		return nil, Key{}, nil, err
	}
	if len(b.errs) > 0 {
		life.Dispose()
		disposeEntity(e)
		return nil, Key{}, nil, &AggregateError{Errs: b.errs}
	}
	return e, rec.key, life, nil
}

type buildFunc[E any] func(ctx context.Context, row Row) (E, Key, *lifetime, error)

func entityBuilder[E any](s *Session, loader EntityLoader, mode Mode) buildFunc[E] {
	return func(ctx context.Context, row Row) (E, Key, *lifetime, error) {
		var zero E
		e, key, life, err := s.assembleRow(ctx, loader, row, mode)
		if err != nil {
			return zero, Key{}, nil, err
		}
		v, ok := e.(E)
		if !ok {
			life.Dispose()
			disposeEntity(e)
			return zero, Key{}, nil, errors.Newf("orm: %s: entity %T is not %T", loader.TypeName(), e, zero)
		}
		return v, key, life, nil
	}
}
