package orm

import (
	"context"

	"github.com/google/uuid"
)

// batch is the state of one round trip: cached sub-query results and the
// failures accumulated while processing. It is never shared across requests.
type batch struct {
	errs      []error
	subFailed bool
	cache     map[string]Rows
	opened    []Rows
}

func newBatch() *batch {
	return &batch{cache: make(map[string]Rows)}
}

func (b *batch) fail(err error) {
	b.errs = append(b.errs, err)
	if _, ok := err.(*SubQueryError); ok {
		b.subFailed = true
	}
}

// selectOnce runs st unless the same sub-query already ran with identical
// arguments in this batch.
func (b *batch) selectOnce(ctx context.Context, src DataSource, id uuid.UUID, st *Statement) (Rows, error) {
	key := id.String() + "#" + signature(st.Args())
	if rows, ok := b.cache[key]; ok {
		return rows, nil
	}
	rows, err := src.Select(ctx, st)
	if err != nil {
		return nil, err
	}
	b.cache[key] = rows
	b.opened = append(b.opened, rows)
	return rows, nil
}

func (b *batch) close() {
	for _, rows := range b.opened {
		_ = rows.Close()
	}
	b.opened = nil
	b.cache = nil
}

// executor drives a query tree against a DataSource. Sub-queries are
// logically concurrent but run as interleaved callbacks on the caller's
// goroutine.
type executor struct {
	src DataSource
}

// process binds rows for q and runs q's sub-queries for every bound record.
// Binding failures are queued on b so sibling rows still bind.
func (e *executor) process(ctx context.Context, q *Query, rows Rows, b *batch) []*Record {
	recs := make([]*Record, 0, rows.Len())
	for i := range rows.Len() {
		row := rows.Row(i)
		rec, err := q.loader.bind(ctx, row)
		if err != nil {
			b.fail(err)
			continue
		}
		if q.junction != nil {
			jr, err := q.junction.bind(ctx, prefixedRow{Row: row, prefix: junctionPrefix(q.junction)})
			if err != nil {
				b.fail(err)
				continue
			}
			rec.junction = jr
		}
		recs = append(recs, rec)
	}
	for _, rec := range recs {
		e.fanOut(ctx, q, rec, b)
	}
	return recs
}

// fanOut runs every sub-query of q for parent, then raises q's
// nested-queries-processed signal for parent.
func (e *executor) fanOut(ctx context.Context, q *Query, parent *Record, b *batch) {
	for _, sub := range q.subs {
		recs, err := e.runSub(ctx, sub, parent, b)
		if err != nil {
			name := ""
			if sub.assoc != nil {
				name = sub.assoc.name
			}
			serr := &SubQueryError{QueryID: sub.id, Association: name, Err: err}
			b.fail(serr)
			if sub.onFailure != nil {
				sub.onFailure(serr)
			}
			continue
		}
		if sub.onReady != nil {
			sub.onReady(ctx, parent, recs)
		}
	}
	for _, fn := range q.processed {
		fn(ctx, parent)
	}
}

func (e *executor) runSub(ctx context.Context, sub *Query, parent *Record, b *batch) ([]*Record, error) {
	st, err := sub.statement(parent)
	if err != nil {
		return nil, err
	}
	rows, err := b.selectOnce(ctx, e.src, sub.id, st)
	if err != nil {
		return nil, err
	}
	return e.process(ctx, sub, rows, b), nil
}

// join correlates the variants of one polymorphic association. Each
// parent record completes once all n variants reported.
type join struct {
	n       int
	pending map[*Record]*joinState
	done    func(ctx context.Context, parent *Record, recs []*Record)
}

type joinState struct {
	count int
	recs  []*Record
}

func newJoin(n int, done func(ctx context.Context, parent *Record, recs []*Record)) *join {
	return &join{n: n, pending: make(map[*Record]*joinState), done: done}
}

func (j *join) add(ctx context.Context, parent *Record, recs []*Record) {
	st, ok := j.pending[parent]
	if !ok {
		st = &joinState{}
		j.pending[parent] = st
	}
	st.count++
	st.recs = append(st.recs, recs...)
	if st.count == j.n {
		delete(j.pending, parent)
		j.done(ctx, parent, st.recs)
	}
}

// empty completes a parent for an association with no variants.
func (j *join) empty(ctx context.Context, parent *Record) {
	j.done(ctx, parent, []*Record{})
}
