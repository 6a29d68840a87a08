package orm

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Disposer is implemented by entities that hold resources. Entities loaded
// for an association the constructor did not take are disposed.
type Disposer interface {
	Dispose()
}

// Loadable is implemented by entities that want to know when their full
// association graph has been assembled.
type Loadable interface {
	OnLoaded()
}

func disposeEntity(e any) {
	if d, ok := e.(Disposer); ok {
		d.Dispose()
	}
}

// lifetime collects the handles built for one entity. They are disposed
// together when the entity leaves its collection.
type lifetime struct {
	mu       sync.Mutex
	handles  []Disposer
	disposed bool
}

// add attaches d, or disposes it at once when l is already disposed.
func (l *lifetime) add(d Disposer) {
	l.mu.Lock()
	if !l.disposed {
		l.handles = append(l.handles, d)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	d.Dispose()
}

func (l *lifetime) Dispose() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true
	handles := l.handles
	l.handles = nil
	l.mu.Unlock()
	for _, d := range handles {
		d.Dispose()
	}
}

// slot is one association entry of a Containers.
type slot struct {
	assoc    *Association
	items    []item
	load     loadFunc
	live     *liveScope
	consumed bool
}

// Containers carries the association entries of one record into its
// constructor. Each entry can be taken once; entries left untaken are
// disposed when the constructor returns.
type Containers struct {
	mu       sync.Mutex
	slots    map[string]*slot
	life     *lifetime
	disposed bool
}

func newContainers(life *lifetime) *Containers {
	return &Containers{slots: make(map[string]*slot), life: life}
}

func (c *Containers) put(s *slot) {
	c.slots[s.assoc.name] = s
}

// take marks the named entry consumed and returns it.
func (c *Containers) take(name string, kinds ...Kind) (*slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, errors.Wrapf(ErrDisposed, "containers: %s", name)
	}
	s, ok := c.slots[name]
	if !ok {
		return nil, errors.Newf("orm: no association %q in containers", name)
	}
	match := false
	for _, k := range kinds {
		if s.assoc.kind == k {
			match = true
		}
	}
	if !match {
		return nil, errors.Wrapf(ErrKindMismatch, "%s is a %s association", name, s.assoc.kind)
	}
	if s.consumed {
		return nil, errors.Newf("orm: association %q already consumed", name)
	}
	s.consumed = true
	return s, nil
}

// release hands back an entry whose handle could not be built, so that
// its entities are still disposed.
func (c *Containers) release(s *slot) {
	c.mu.Lock()
	if !c.disposed {
		s.consumed = false
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	disposeItems(s.items)
}

// Names returns the association names carried.
func (c *Containers) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.slots))
	for n := range c.slots {
		names = append(names, n)
	}
	return names
}

// Dispose disposes every untaken entry. Only the first call has an effect.
func (c *Containers) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	var pending []item
	for _, s := range c.slots {
		if !s.consumed {
			pending = append(pending, s.items...)
		}
	}
	c.mu.Unlock()
	disposeItems(pending)
}

// ChildrenOf takes the child association name as a handle.
func ChildrenOf[T any](c *Containers, name string) (*Many[T], error) {
	s, err := c.take(name, Child)
	if err != nil {
		return nil, err
	}
	m, err := newMany[T](name, s.items, s.load)
	if err != nil {
		c.release(s)
		return nil, err
	}
	if s.live != nil {
		observeChildren(s.live, m)
	}
	c.life.add(m)
	return m, nil
}

// LinksOf takes the link association name as a handle. The junction
// entities are available through Many.Junctions.
func LinksOf[T any](c *Containers, name string) (*Many[T], error) {
	s, err := c.take(name, Link)
	if err != nil {
		return nil, err
	}
	m, err := newMany[T](name, s.items, s.load)
	if err != nil {
		c.release(s)
		return nil, err
	}
	c.life.add(m)
	return m, nil
}

// ReferenceOf takes the reference association name as a handle.
func ReferenceOf[T any](c *Containers, name string) (*One[T], error) {
	s, err := c.take(name, Reference)
	if err != nil {
		return nil, err
	}
	m, err := newMany[T](name, s.items, s.load)
	if err != nil {
		c.release(s)
		return nil, err
	}
	c.life.add(m)
	return &One[T]{many: m}, nil
}
