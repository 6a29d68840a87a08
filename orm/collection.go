package orm

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// ChangeKind tells whether a Change added or removed an item.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
)

func (k ChangeKind) String() string {
	if k == Removed {
		return "removed"
	}
	return "added"
}

// Change describes one mutation of a Collection.
type Change[E any] struct {
	Kind ChangeKind
	Item E
	Key  Key
}

// Collection is a keyed list of entities. It may be kept in sync with
// later insert and delete notifications while it is not disposed.
type Collection[E any] struct {
	mu        sync.RWMutex
	items     []E
	keys      []Key
	lives     []*lifetime
	disposed  bool
	subs      []func(Change[E])
	onDispose []func()
}

// NewCollection returns an empty collection.
func NewCollection[E any]() *Collection[E] {
	return &Collection[E]{}
}

// Items returns a snapshot of the entities.
func (c *Collection[E]) Items() []E {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]E(nil), c.items...)
}

// Keys returns a snapshot of the entity keys, aligned with Items.
func (c *Collection[E]) Keys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Key(nil), c.keys...)
}

func (c *Collection[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Contains reports whether an entity with key is present under mode.
func (c *Collection[E]) Contains(key Key, mode CompareMode) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexOf(key, mode) >= 0
}

func (c *Collection[E]) indexOf(key Key, mode CompareMode) int {
	for i, k := range c.keys {
		if k.Equal(key, mode) {
			return i
		}
	}
	return -1
}

// OnChange subscribes fn to additions and removals. fn runs outside the
// collection lock on the notifying goroutine.
func (c *Collection[E]) OnChange(fn func(Change[E])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Dispose detaches the collection, and the association handles of its
// entities, from live synchronization. Later calls are no-ops.
func (c *Collection[E]) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	hooks := c.onDispose
	c.onDispose = nil
	lives := c.lives
	c.lives = nil
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	for _, l := range lives {
		l.Dispose()
	}
}

func (c *Collection[E]) Disposed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.disposed
}

func (c *Collection[E]) whenDisposed(fn func()) {
	c.mu.Lock()
	if !c.disposed {
		c.onDispose = append(c.onDispose, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// add appends item unless the collection is disposed or an entity with an
// equal key is present. On success the collection owns life. A rejected
// item is left to the caller.
func (c *Collection[E]) add(item E, key Key, mode CompareMode, life *lifetime) bool {
	c.mu.Lock()
	if c.disposed || c.indexOf(key, mode) >= 0 {
		c.mu.Unlock()
		return false
	}
	c.items = append(c.items, item)
	c.keys = append(c.keys, key)
	c.lives = append(c.lives, life)
	subs := c.subs
	c.mu.Unlock()
	for _, fn := range subs {
		fn(Change[E]{Kind: Added, Item: item, Key: key})
	}
	return true
}

// removeMatching removes every entity whose primary key equals key and
// disposes their association handles.
func (c *Collection[E]) removeMatching(key Key) int {
	var (
		removed []Change[E]
		lives   []*lifetime
	)
	c.mu.Lock()
	for i := 0; i < len(c.keys); i++ {
		if !c.keys[i].Equal(key, CompareKey) {
			continue
		}
		removed = append(removed, Change[E]{Kind: Removed, Item: c.items[i], Key: c.keys[i]})
		lives = append(lives, c.lives[i])
		c.items = append(c.items[:i], c.items[i+1:]...)
		c.keys = append(c.keys[:i], c.keys[i+1:]...)
		c.lives = append(c.lives[:i], c.lives[i+1:]...)
		i--
	}
	subs := c.subs
	c.mu.Unlock()
	for _, ch := range removed {
		for _, fn := range subs {
			fn(ch)
		}
	}
	for _, l := range lives {
		l.Dispose()
	}
	return len(removed)
}

// item is one assembled association entry. life holds the handles built
// for the entity and its junction.
type item struct {
	entity   any
	key      Key
	junction any
	life     *lifetime
}

// disposeItems releases entries that no handle took.
func disposeItems(items []item) {
	for _, it := range items {
		it.life.Dispose()
		disposeEntity(it.entity)
		disposeEntity(it.junction)
	}
}

type loadFunc func(ctx context.Context) ([]item, error)

// Many is the handle of a to-many association. A handle created by a full
// load is resolved; a lazy one loads on the first Get.
type Many[T any] struct {
	mu        sync.Mutex
	name      string
	coll      *Collection[T]
	junctions []any
	loaded    bool
	load      loadFunc
}

func newMany[T any](name string, items []item, load loadFunc) (*Many[T], error) {
	m := &Many[T]{name: name, coll: NewCollection[T](), load: load}
	if load == nil {
		if err := m.fill(items); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// fill adds items. Nothing is added when any entity has the wrong type.
func (m *Many[T]) fill(items []item) error {
	vals := make([]T, len(items))
	for i, it := range items {
		v, ok := it.entity.(T)
		if !ok {
			var zero T
			return errors.Newf("orm: %s: entity %T is not %T", m.name, it.entity, zero)
		}
		vals[i] = v
	}
	for i, it := range items {
		if !m.coll.add(vals[i], it.key, CompareKey, it.life) {
			disposeItems(items[i : i+1])
			continue
		}
		m.junctions = append(m.junctions, it.junction)
	}
	m.loaded = true
	return nil
}

// Get returns the associated entities, loading them first if needed.
func (m *Many[T]) Get(ctx context.Context) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coll.Disposed() {
		return nil, errors.Wrapf(ErrDisposed, "%s", m.name)
	}
	if !m.loaded {
		items, err := m.load(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.fill(items); err != nil {
			disposeItems(items)
			return nil, err
		}
	}
	return m.coll.Items(), nil
}

// Loaded reports whether the entities are in memory.
func (m *Many[T]) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Junctions returns the junction entities of a link association, aligned
// with the entities as they were loaded.
func (m *Many[T]) Junctions() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.junctions...)
}

// Collection exposes the underlying collection, for change subscriptions.
func (m *Many[T]) Collection() *Collection[T] { return m.coll }

func (m *Many[T]) Dispose() { m.coll.Dispose() }

// One is the handle of a to-one association.
type One[T any] struct {
	many *Many[T]
}

// Get returns the associated entity and whether one exists.
func (o *One[T]) Get(ctx context.Context) (T, bool, error) {
	var zero T
	items, err := o.many.Get(ctx)
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}

// Must returns the associated entity or ErrNotFound.
func (o *One[T]) Must(ctx context.Context) (T, error) {
	v, ok, err := o.Get(ctx)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, errors.Wrapf(ErrNotFound, "%s", o.many.name)
	}
	return v, nil
}

func (o *One[T]) Loaded() bool { return o.many.Loaded() }
func (o *One[T]) Dispose()     { o.many.Dispose() }
