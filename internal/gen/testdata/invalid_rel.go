package testdata

import "github.com/mickamy/ormgraph/orm"

type Invoice struct {
	ID    int64
	Lines *orm.Many[*Line] `rel:"link"`
}
