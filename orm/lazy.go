package orm

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// LazyState hands a constructed entity back to the deferred association
// handles created before it existed. It can be set once.
type LazyState struct {
	mu    sync.RWMutex
	set   bool
	owner any
}

// Set records owner. A second call fails with ErrLazyStateSet.
func (s *LazyState) Set(owner any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return errors.WithStack(ErrLazyStateSet)
	}
	s.owner = owner
	s.set = true
	return nil
}

// Owner returns the entity, and false while it is still being constructed.
func (s *LazyState) Owner() (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, s.set
}

// Alive reports whether the owner exists and has not been disposed.
func (s *LazyState) Alive() bool {
	owner, ok := s.Owner()
	if !ok {
		return false
	}
	if d, ok := owner.(interface{ Disposed() bool }); ok {
		return !d.Disposed()
	}
	return true
}
