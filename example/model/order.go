package model

import "github.com/mickamy/ormgraph/orm"

//go:generate go run github.com/mickamy/ormgraph -type=Order,Item,Customer,Tag,OrderTag

type Order struct {
	ID         int64  `db:"id,primaryKey"`
	CustomerID int64  `db:"customer_id"`
	Status     string `db:"status"`
	Version    int64  `db:"version,token"`

	Items    *orm.Many[*Item]    `rel:"child,foreign_key:order_id"`
	Customer *orm.One[*Customer] `rel:"reference,parent_key:customer_id"`
	Tags     *orm.Many[*Tag]     `rel:"link,junction:OrderTag,foreign_key:order_id,references:tag_id"`
}

type Item struct {
	ID      int64  `db:"id,primaryKey"`
	OrderID int64  `db:"order_id"`
	SKU     string `db:"sku"`
	Qty     int    `db:"qty"`
}

type Customer struct {
	ID   int64  `db:"id,primaryKey"`
	Name string `db:"name"`
}

type Tag struct {
	ID   int64  `db:"id,primaryKey"`
	Name string `db:"name"`
}

type OrderTag struct {
	OrderID int64 `db:"order_id"`
	TagID   int64 `db:"tag_id"`
}
