package orm

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a to-one association expects an entity but
// resolves to none.
var ErrNotFound = errors.New("orm: not found")

// Configuration errors. They are raised while defining types or building a
// plan and are never retried.
var (
	ErrLoaderNotFound       = errors.New("orm: loader not found")
	ErrDuplicateType        = errors.New("orm: duplicate entity type")
	ErrDuplicateAssociation = errors.New("orm: duplicate association name")
	ErrNoCondition          = errors.New("orm: no conditional expression found")
	ErrSelfReference        = errors.New("orm: self-referential association")
	ErrUnknownColumn        = errors.New("orm: unknown column")
)

// Binding and lifecycle errors.
var (
	ErrNoBindableField = errors.New("orm: no scheme found to bind row to type")
	ErrMissingKey      = errors.New("orm: row lacks primary key column")
	ErrPlanConsumed    = errors.New("orm: plan already processed")
	ErrDisposed        = errors.New("orm: disposed")
	ErrLazyStateSet    = errors.New("orm: lazy state already set")
	ErrNotConstructed  = errors.New("orm: association accessed before its owner was constructed")
	ErrKindMismatch    = errors.New("orm: association kind mismatch")
)

// SubQueryError reports the failure of one sub-query in a batch.
type SubQueryError struct {
	QueryID     uuid.UUID
	Association string
	Err         error
}

func (e *SubQueryError) Error() string {
	return fmt.Sprintf("orm: sub-query %s (%s): %v", e.QueryID, e.Association, e.Err)
}

func (e *SubQueryError) Unwrap() error { return e.Err }

// AggregateError collects every row-level failure of one batch.
type AggregateError struct {
	Errs []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("orm: %d failure(s) in batch: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error { return e.Errs }

// invoke runs a user-supplied constructor or accessor. A panic carrying an
// error is surfaced as that error, not wrapped in a panic message.
func invoke[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			if perr, ok := p.(error); ok {
				err = errors.WithStack(errors.UnwrapAll(perr))
				return
			}
			err = errors.Newf("orm: panic in constructor: %v", p)
		}
	}()
	return fn()
}
