package repo

import (
	"context"

	"github.com/mickamy/ormgraph/example/model"
	"github.com/mickamy/ormgraph/orm"
	"github.com/mickamy/ormgraph/scope"
)

// OrderRepository loads order graphs through a session.
type OrderRepository struct {
	session *orm.Session
}

func NewOrderRepository(db orm.Querier, opts ...orm.SessionOption) (*OrderRepository, error) {
	schema, err := model.Schema()
	if err != nil {
		return nil, err
	}
	return &OrderRepository{session: orm.NewSession(schema, orm.NewSQLSource(db), opts...)}, nil
}

// FindAll loads orders with their items, customer and tags in one batch.
func (r *OrderRepository) FindAll(ctx context.Context, scopes ...scope.Scope) (*orm.Collection[*model.Order], error) {
	q, err := r.session.Query("Order")
	if err != nil {
		return nil, err
	}
	return orm.FullEntities[*model.Order](ctx, r.session, q.Scopes(scopes...).OrderBy("id"))
}

// Browse loads orders only; associations load on first access.
func (r *OrderRepository) Browse(ctx context.Context, scopes ...scope.Scope) (*orm.Collection[*model.Order], error) {
	q, err := r.session.Query("Order")
	if err != nil {
		return nil, err
	}
	return orm.LazyEntities[*model.Order](ctx, r.session, q.Scopes(scopes...).OrderBy("id"))
}
