package orm_test

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/mickamy/ormgraph/orm"
	"github.com/mickamy/ormgraph/scope"
)

type Order struct {
	ID         int64
	CustomerID int64
	Region     string
	Version    int64

	Items    *orm.Many[*Item]
	Customer *orm.One[*Customer]
	Tags     *orm.Many[*Tag]
	Notes    *orm.Many[Note]
	Depot    *orm.One[*Depot]

	loaded bool
}

func (o *Order) OnLoaded() { o.loaded = true }

type Item struct {
	ID      int64
	OrderID int64
	SKU     string
}

type Customer struct {
	ID   int64
	Name string
}

type Tag struct {
	ID        int64
	Name      string
	disposals int
}

func (t *Tag) Dispose() { t.disposals++ }

type OrderTag struct {
	OrderID int64
	TagID   int64
}

type Note interface {
	Text() string
}

type Memo struct {
	ID      int64
	OrderID int64
	Body    string
}

func (m *Memo) Text() string { return "memo:" + m.Body }

type Flag struct {
	ID      int64
	OrderID int64
	Body    string
}

func (f *Flag) Text() string { return "flag:" + f.Body }

type Depot struct {
	ID     int64
	Region string
}

const fixtureSQL = `
CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER NOT NULL, region TEXT NOT NULL, version INTEGER NOT NULL DEFAULT 1);
CREATE TABLE items (id INTEGER PRIMARY KEY, order_id INTEGER NOT NULL, sku TEXT NOT NULL);
CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE order_tags (order_id INTEGER NOT NULL, tag_id INTEGER NOT NULL);
CREATE TABLE memos (id INTEGER PRIMARY KEY, order_id INTEGER NOT NULL, body TEXT NOT NULL);
CREATE TABLE flags (id INTEGER PRIMARY KEY, order_id INTEGER NOT NULL, body TEXT NOT NULL);
CREATE TABLE depots (id INTEGER PRIMARY KEY, region TEXT NOT NULL);
INSERT INTO orders (id, customer_id, region) VALUES (1, 9, 'east'), (2, 8, 'west'), (3, 9, 'east');
INSERT INTO items (id, order_id, sku) VALUES (10, 1, 'A'), (11, 1, 'B'), (12, 2, 'C');
INSERT INTO customers (id, name) VALUES (9, 'Acme'), (8, 'Globex');
INSERT INTO tags (id, name) VALUES (100, 'rush'), (101, 'gift');
INSERT INTO order_tags (order_id, tag_id) VALUES (1, 100), (1, 101), (2, 100);
INSERT INTO memos (id, order_id, body) VALUES (1, 1, 'call first'), (2, 2, 'fragile');
INSERT INTO flags (id, order_id, body) VALUES (1, 1, 'vip');
INSERT INTO depots (id, region) VALUES (50, 'east'), (51, 'west');
`

type fixtureConfig struct {
	skipTags bool
	tagsAs   bool
	tagWhere []scope.Scope
	extra    []*orm.Association
	registry *orm.Registry
}

type fixture struct {
	cfg      fixtureConfig
	db       *orm.DB
	src      *recordingSource
	schema   *orm.Schema
	session  *orm.Session
	registry *orm.Registry

	mu   sync.Mutex
	tags []*Tag
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func self[M any](_ context.Context, m *M, _ *orm.Containers) (*M, error) {
	return m, nil
}

func openDB(t *testing.T) *orm.DB {
	t.Helper()
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })
	for _, stmt := range strings.Split(fixtureSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return orm.New(raw, orm.SQLite)
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()
	return newFixtureOn(t, openDB(t), cfg)
}

func newFixtureOn(t *testing.T, db *orm.DB, cfg fixtureConfig) *fixture {
	t.Helper()
	f := &fixture{cfg: cfg, db: db, registry: cfg.registry}
	f.src = &recordingSource{next: orm.NewSQLSource(f.db), fail: map[string]error{}}
	f.schema = must(orm.NewSchema(f.loaders()...))
	var opts []orm.SessionOption
	if cfg.registry != nil {
		opts = append(opts, orm.WithRegistry(cfg.registry))
	}
	f.session = orm.NewSession(f.schema, f.src, opts...)
	return f
}

func (f *fixture) loaders() []orm.EntityLoader {
	assocs := append([]*orm.Association{
		orm.Children("Items", "Item", "order_id"),
		orm.Refers("Customer", "Customer", "customer_id"),
		orm.Links("Tags", "OrderTag", "Tag", "order_id", "tag_id", orm.WithCondition(f.cfg.tagWhere...)),
	}, f.cfg.extra...)

	order := must(orm.Define[Order, *Order]("Order", []orm.Field[Order]{
		orm.Col("id", func(o *Order) *int64 { return &o.ID }, orm.PrimaryKey()),
		orm.Col("customer_id", func(o *Order) *int64 { return &o.CustomerID }),
		orm.Col("region", func(o *Order) *string { return &o.Region }),
		orm.Col("version", func(o *Order) *int64 { return &o.Version }, orm.Token()),
	}, f.newOrder, assocs...))

	item := must(orm.Define[Item, *Item]("Item", []orm.Field[Item]{
		orm.Col("id", func(i *Item) *int64 { return &i.ID }, orm.PrimaryKey()),
		orm.Col("order_id", func(i *Item) *int64 { return &i.OrderID }),
		orm.Col("sku", func(i *Item) *string { return &i.SKU }),
	}, self[Item]))

	customer := must(orm.Define[Customer, *Customer]("Customer", []orm.Field[Customer]{
		orm.Col("id", func(c *Customer) *int64 { return &c.ID }, orm.PrimaryKey()),
		orm.Col("name", func(c *Customer) *string { return &c.Name }),
	}, self[Customer]))

	tag := must(orm.Define[Tag, *Tag]("Tag", []orm.Field[Tag]{
		orm.Col("id", func(t *Tag) *int64 { return &t.ID }, orm.PrimaryKey()),
		orm.Col("name", func(t *Tag) *string { return &t.Name }),
	}, f.newTag))

	orderTag := must(orm.Define[OrderTag, *OrderTag]("OrderTag", []orm.Field[OrderTag]{
		orm.Col("order_id", func(j *OrderTag) *int64 { return &j.OrderID }),
		orm.Col("tag_id", func(j *OrderTag) *int64 { return &j.TagID }),
	}, self[OrderTag]))

	memo := must(orm.Define[Memo, Note]("Memo", []orm.Field[Memo]{
		orm.Col("id", func(m *Memo) *int64 { return &m.ID }, orm.PrimaryKey()),
		orm.Col("order_id", func(m *Memo) *int64 { return &m.OrderID }),
		orm.Col("body", func(m *Memo) *string { return &m.Body }),
	}, func(_ context.Context, m *Memo, _ *orm.Containers) (Note, error) { return m, nil }))

	flag := must(orm.Define[Flag, Note]("Flag", []orm.Field[Flag]{
		orm.Col("id", func(m *Flag) *int64 { return &m.ID }, orm.PrimaryKey()),
		orm.Col("order_id", func(m *Flag) *int64 { return &m.OrderID }),
		orm.Col("body", func(m *Flag) *string { return &m.Body }),
	}, func(_ context.Context, m *Flag, _ *orm.Containers) (Note, error) { return m, nil }))

	depot := must(orm.Define[Depot, *Depot]("Depot", []orm.Field[Depot]{
		orm.Col("id", func(d *Depot) *int64 { return &d.ID }, orm.PrimaryKey()),
		orm.Col("region", func(d *Depot) *string { return &d.Region }),
	}, self[Depot]))

	return []orm.EntityLoader{order, item, customer, tag, orderTag, memo, flag, depot}
}

func (f *fixture) newOrder(_ context.Context, o *Order, c *orm.Containers) (*Order, error) {
	var err error
	if o.Items, err = orm.ChildrenOf[*Item](c, "Items"); err != nil {
		return nil, err
	}
	if o.Customer, err = orm.ReferenceOf[*Customer](c, "Customer"); err != nil {
		return nil, err
	}
	if f.cfg.tagsAs {
		// Taking the links as the wrong entity type fails for orders with tags.
		if _, err := orm.LinksOf[*Customer](c, "Tags"); err != nil {
			return nil, err
		}
	} else if !f.cfg.skipTags {
		if o.Tags, err = orm.LinksOf[*Tag](c, "Tags"); err != nil {
			return nil, err
		}
	}
	names := c.Names()
	if slices.Contains(names, "Notes") {
		if o.Notes, err = orm.ChildrenOf[Note](c, "Notes"); err != nil {
			return nil, err
		}
	}
	if slices.Contains(names, "Depot") {
		if o.Depot, err = orm.ReferenceOf[*Depot](c, "Depot"); err != nil {
			return nil, err
		}
	}
	if f.cfg.skipTags {
		// Disposing early must not dispose the untaken tags a second time.
		c.Dispose()
	}
	return o, nil
}

func (f *fixture) newTag(_ context.Context, t *Tag, _ *orm.Containers) (*Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, t)
	return t, nil
}

func (f *fixture) exec(t *testing.T, query string, args ...any) {
	t.Helper()
	if _, err := f.db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func (f *fixture) orders(t *testing.T, scopes ...scope.Scope) *orm.Query {
	t.Helper()
	q := must(f.session.Query("Order"))
	return q.Scopes(scopes...).OrderBy("id")
}

// recordingSource records every statement and can fail selected tables.
type recordingSource struct {
	next orm.DataSource

	mu    sync.Mutex
	stmts []*orm.Statement
	fail  map[string]error
}

func (r *recordingSource) Select(ctx context.Context, st *orm.Statement) (orm.Rows, error) {
	r.mu.Lock()
	r.stmts = append(r.stmts, st)
	err := r.fail[st.Table]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.next.Select(ctx, st)
}

func (r *recordingSource) statements(table string) []*orm.Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*orm.Statement
	for _, st := range r.stmts {
		if st.Table == table {
			out = append(out, st)
		}
	}
	return out
}

func (r *recordingSource) failOn(table string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[table] = err
}
