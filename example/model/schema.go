package model

import "github.com/mickamy/ormgraph/orm"

// Schema declares every entity type of the example.
func Schema() (*orm.Schema, error) {
	order, err := DefineOrder()
	if err != nil {
		return nil, err
	}
	item, err := DefineItem()
	if err != nil {
		return nil, err
	}
	customer, err := DefineCustomer()
	if err != nil {
		return nil, err
	}
	tag, err := DefineTag()
	if err != nil {
		return nil, err
	}
	orderTag, err := DefineOrderTag()
	if err != nil {
		return nil, err
	}
	return orm.NewSchema(order, item, customer, tag, orderTag)
}
