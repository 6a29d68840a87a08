package orm

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer keeps a previously returned collection in sync with change
// notifications. Callbacks of an observer that is not alive are no-ops.
type Observer interface {
	Alive() bool
	OnRecordInserted(ctx context.Context, row Row) error
	OnRecordDeleted(key Key)
}

// Registry dispatches insert and delete notifications to the observers
// registered per entity type. Notifications may arrive on any goroutine.
type Registry struct {
	mu        sync.Mutex
	enabled   bool
	compare   CompareMode
	observers map[string][]registration
	log       *zap.Logger
}

type registration struct {
	id  uuid.UUID
	obs Observer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLiveSync enables or disables registration. Enabled by default.
func WithLiveSync(enabled bool) RegistryOption {
	return func(r *Registry) { r.enabled = enabled }
}

// WithKeyCompare sets the key comparison used to deduplicate inserts.
// Deletes always match on primary key.
func WithKeyCompare(mode CompareMode) RegistryOption {
	return func(r *Registry) { r.compare = mode }
}

// WithRegistryLogger sets the logger for registration and delivery events.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry returns an enabled Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		enabled:   true,
		compare:   CompareKey,
		observers: make(map[string][]registration),
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

func (r *Registry) CompareMode() CompareMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.compare
}

// Register adds obs under typeName. Registering the same observer twice, or
// registering while disabled, is a no-op.
func (r *Registry) Register(typeName string, obs Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	for _, reg := range r.observers[typeName] {
		if reg.obs == obs {
			return
		}
	}
	reg := registration{id: uuid.New(), obs: obs}
	r.observers[typeName] = append(r.observers[typeName], reg)
	r.log.Debug("observer registered", zap.String("type", typeName), zap.Stringer("id", reg.id))
}

// Unregister removes obs from typeName. Unknown observers, and any call
// while disabled, are no-ops.
func (r *Registry) Unregister(typeName string, obs Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	regs := r.observers[typeName]
	for i, reg := range regs {
		if reg.obs != obs {
			continue
		}
		r.observers[typeName] = append(regs[:i:i], regs[i+1:]...)
		r.log.Debug("observer unregistered", zap.String("type", typeName), zap.Stringer("id", reg.id))
		break
	}
	if len(r.observers[typeName]) == 0 {
		delete(r.observers, typeName)
	}
}

// Len returns the number of observers held for typeName, dead ones
// included until the next notification prunes them.
func (r *Registry) Len(typeName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observers[typeName])
}

// snapshot returns the live observers of typeName and drops dead ones.
func (r *Registry) snapshot(typeName string) []Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.observers[typeName]
	live := regs[:0]
	out := make([]Observer, 0, len(regs))
	for _, reg := range regs {
		if !reg.obs.Alive() {
			r.log.Debug("observer pruned", zap.String("type", typeName), zap.Stringer("id", reg.id))
			continue
		}
		live = append(live, reg)
		out = append(out, reg.obs)
	}
	if len(live) == 0 {
		delete(r.observers, typeName)
	} else {
		r.observers[typeName] = live
	}
	return out
}

// NotifyInserted delivers an inserted typeName row to every live observer.
// Observer failures are collected; delivery continues.
func (r *Registry) NotifyInserted(ctx context.Context, typeName string, row Row) error {
	var errs []error
	for _, obs := range r.snapshot(typeName) {
		if err := obs.OnRecordInserted(ctx, row); err != nil {
			r.log.Warn("insert notification failed", zap.String("type", typeName), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errs: errs}
	}
	return nil
}

// NotifyDeleted delivers a deleted typeName key to every live observer.
func (r *Registry) NotifyDeleted(typeName string, key Key) {
	for _, obs := range r.snapshot(typeName) {
		obs.OnRecordDeleted(key)
	}
}

// parentScope restricts an observer to rows whose foreign key holds the
// owning entity's key.
type parentScope struct {
	column string
	value  any
	state  *LazyState
}

func (p *parentScope) matches(row Row) bool {
	i := row.FieldIndex(p.column)
	return i >= 0 && valueEqual(row.Value(i), p.value)
}

// collectionObserver applies notifications for one entity type to a
// Collection.
type collectionObserver[E any] struct {
	registry *Registry
	coll     *Collection[E]
	loader   EntityLoader
	ready    func() bool
	scope    *parentScope
	build    buildFunc[E]
}

func (o *collectionObserver[E]) Alive() bool {
	if o.coll.Disposed() {
		return false
	}
	return o.scope == nil || o.scope.state == nil || o.scope.state.Alive()
}

func (o *collectionObserver[E]) OnRecordInserted(ctx context.Context, row Row) error {
	if !o.Alive() || (o.ready != nil && !o.ready()) {
		return nil
	}
	if o.scope != nil && !o.scope.matches(row) {
		return nil
	}
	mode := o.registry.CompareMode()
	key, err := o.loader.CreateKey(row)
	if err != nil {
		return err
	}
	if o.coll.Contains(key, mode) {
		return nil
	}
	e, key, life, err := o.build(ctx, row)
	if err != nil {
		return err
	}
	// A concurrent insert of the same key, or a Dispose, may have won.
	if !o.coll.add(e, key, mode, life) {
		life.Dispose()
		disposeEntity(e)
	}
	return nil
}

func (o *collectionObserver[E]) OnRecordDeleted(key Key) {
	if !o.Alive() {
		return
	}
	o.coll.removeMatching(key)
}

// observe registers o and unregisters it when the collection is disposed.
func (o *collectionObserver[E]) observe() {
	name := o.loader.TypeName()
	o.registry.Register(name, o)
	o.coll.whenDisposed(func() { o.registry.Unregister(name, o) })
}

// liveScope carries what a child handle needs to observe its target types.
type liveScope struct {
	session *Session
	targets []EntityLoader
	column  string
	value   any
	state   *LazyState
	mode    Mode
}

func observeChildren[T any](ls *liveScope, m *Many[T]) {
	for _, target := range ls.targets {
		o := &collectionObserver[T]{
			registry: ls.session.registry,
			coll:     m.coll,
			loader:   target,
			ready:    m.Loaded,
			scope:    &parentScope{column: ls.column, value: ls.value, state: ls.state},
			build:    entityBuilder[T](ls.session, target, ls.mode),
		}
		o.observe()
	}
}
