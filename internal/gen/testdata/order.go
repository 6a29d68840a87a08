package testdata

import (
	"time"

	"github.com/mickamy/ormgraph/orm"
)

type Order struct {
	ID         int64     `db:"id,primaryKey"`
	CustomerID int64     `db:"customer_id"`
	Version    int64     `db:"version,token"`
	PlacedAt   time.Time `db:"placed_at"`
	Note       string    `db:"-"`
	internal   string    // unexported, skipped

	Items    *orm.Many[*Item]     `rel:"child"`
	Customer *orm.One[*Customer]  `rel:"reference,lazy"`
	Tags     *orm.Many[*Tag]      `rel:"link,junction:OrderTag"`
	Payments *orm.Many[*Payment]  `rel:"child,foreign_key:paid_order_id,save_before"`
	Depot    *orm.One[*Warehouse] `rel:"reference,target:Depot,parent_key:region,target_key:region"`
}

type Item struct {
	ID      int64
	OrderID int64
	SKU     string `db:"sku"`
}

type OrderTag struct {
	OrderID int64 `db:"order_id"`
	TagID   int64 `db:"tag_id"`
}
