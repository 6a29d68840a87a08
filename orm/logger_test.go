package orm_test

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mickamy/ormgraph/orm"
)

func TestZapLogger_LogsEveryStatement(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	db := openDB(t).Debug(orm.NewZapLogger(zap.New(core)))
	f := newFixtureOn(t, db, fixtureConfig{})

	if _, err := orm.FullEntities[*Order](context.Background(), f.session, f.orders(t)); err != nil {
		t.Fatalf("FullEntities: %v", err)
	}

	var want int
	for _, table := range []string{"orders", "items", "customers", "tags"} {
		want += len(f.src.statements(table))
	}
	entries := logs.FilterMessage("orm query").All()
	if len(entries) != want {
		t.Fatalf("logged %d statements, want %d", len(entries), want)
	}
	first := entries[0]
	if first.Level != zapcore.DebugLevel {
		t.Errorf("level = %v, want debug", first.Level)
	}
	if sql, _ := first.ContextMap()["sql"].(string); !strings.Contains(sql, "orders") {
		t.Errorf("first statement = %q, want the orders select", sql)
	}
}

func TestDB_DebugLeavesOriginalSilent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	base := openDB(t)
	_ = base.Debug(orm.NewZapLogger(zap.New(core)))
	f := newFixtureOn(t, base, fixtureConfig{})

	if _, err := orm.LazyEntities[*Order](context.Background(), f.session, f.orders(t)); err != nil {
		t.Fatalf("LazyEntities: %v", err)
	}
	if n := logs.Len(); n != 0 {
		t.Errorf("original DB logged %d entries, want 0", n)
	}
}
