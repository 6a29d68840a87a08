package orm

import (
	"context"
	"database/sql"
	"errors"
)

var errStubQuerier = errors.New("stub querier: no rows")

// StubQuerier is a Querier that only renders: it records every query and
// fails it. Exported for use in orm_test package.
type StubQuerier struct {
	D       Dialect
	Queries []StubQuery
}

// StubQuery holds a captured query string and its args.
type StubQuery struct {
	SQL  string
	Args []any
}

func NewStubQuerier(d Dialect) *StubQuerier {
	return &StubQuerier{D: d}
}

func (sq *StubQuerier) QueryContext(_ context.Context, query string, args ...any) (*sql.Rows, error) {
	sq.Queries = append(sq.Queries, StubQuery{query, args})
	return nil, errStubQuerier
}

func (sq *StubQuerier) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	sq.Queries = append(sq.Queries, StubQuery{query, args})
	return nil, errStubQuerier
}

func (sq *StubQuerier) dialect() Dialect { return sq.D }

var _ Querier = (*StubQuerier)(nil)

// JoinHarness drives a join node and counts its combined callbacks per
// parent record.
type JoinHarness struct {
	j     *join
	Calls map[*Record]int
	Got   map[*Record][]*Record
}

func NewJoinHarness(n int) *JoinHarness {
	p := &JoinHarness{Calls: map[*Record]int{}, Got: map[*Record][]*Record{}}
	p.j = newJoin(n, func(_ context.Context, parent *Record, recs []*Record) {
		p.Calls[parent]++
		p.Got[parent] = recs
	})
	return p
}

func (p *JoinHarness) Add(ctx context.Context, parent *Record, recs ...*Record) {
	p.j.add(ctx, parent, recs)
}

func (p *JoinHarness) Empty(ctx context.Context, parent *Record) { p.j.empty(ctx, parent) }

// NewTestRecord returns a record carrying only a key.
func NewTestRecord(k Key) *Record { return &Record{key: k} }
