package gen_test

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mickamy/ormgraph/internal/gen"
)

func testdataPath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

func TestParse(t *testing.T) {
	t.Parallel()

	infos, err := gen.Parse(testdataPath("order.go"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("len(infos) = %d, want 3", len(infos))
	}
	for _, info := range infos {
		if info.Package != "testdata" {
			t.Errorf("%s: Package = %q, want %q", info.Name, info.Package, "testdata")
		}
	}

	t.Run("Order fields", func(t *testing.T) {
		t.Parallel()

		order, err := gen.Find(infos, "Order")
		if err != nil {
			t.Fatal(err)
		}
		want := []gen.FieldInfo{
			{Name: "ID", Column: "id", GoType: "int64", PrimaryKey: true},
			{Name: "CustomerID", Column: "customer_id", GoType: "int64"},
			{Name: "Version", Column: "version", GoType: "int64", Token: true},
			{Name: "PlacedAt", Column: "placed_at", GoType: "time.Time"},
		}
		if diff := cmp.Diff(want, order.Fields); diff != "" {
			t.Errorf("fields mismatch (-want +got):\n%s", diff)
		}
		imports := []gen.ImportInfo{
			{Name: "time", Path: "time"},
			{Name: "orm", Path: "github.com/mickamy/ormgraph/orm"},
		}
		if diff := cmp.Diff(imports, order.Imports); diff != "" {
			t.Errorf("imports mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Order relations", func(t *testing.T) {
		t.Parallel()

		order, err := gen.Find(infos, "Order")
		if err != nil {
			t.Fatal(err)
		}
		want := []gen.RelationInfo{
			{FieldName: "Items", Kind: gen.RelChild, Handle: "Many", ElemType: "*Item", Target: "Item", ForeignKey: "order_id"},
			{FieldName: "Customer", Kind: gen.RelReference, Handle: "One", ElemType: "*Customer", Target: "Customer", ParentKey: "customer_id", Lazy: true},
			{
				FieldName: "Tags", Kind: gen.RelLink, Handle: "Many", ElemType: "*Tag", Target: "Tag",
				Junction: "OrderTag", ForeignKey: "order_id", References: "tag_id",
			},
			{FieldName: "Payments", Kind: gen.RelChild, Handle: "Many", ElemType: "*Payment", Target: "Payment", ForeignKey: "paid_order_id", SaveBefore: true},
			{
				FieldName: "Depot", Kind: gen.RelReference, Handle: "One", ElemType: "*Warehouse", Target: "Depot",
				ParentKey: "region", TargetKey: "region",
			},
		}
		if diff := cmp.Diff(want, order.Relations); diff != "" {
			t.Errorf("relations mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Item defaults", func(t *testing.T) {
		t.Parallel()

		item, err := gen.Find(infos, "Item")
		if err != nil {
			t.Fatal(err)
		}
		pk := item.PrimaryKeyFields()
		if len(pk) != 1 || pk[0].Column != "id" {
			t.Errorf("PrimaryKeyFields = %+v", pk)
		}
		if item.Fields[1].Column != "order_id" || item.Fields[2].Column != "sku" {
			t.Errorf("Fields = %+v", item.Fields)
		}
	})
}

func TestParseJunctionWithoutPrimaryKey(t *testing.T) {
	t.Parallel()

	infos, err := gen.Parse(testdataPath("order.go"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	junction, err := gen.Find(infos, "OrderTag")
	if err != nil {
		t.Fatal(err)
	}
	if pk := junction.PrimaryKeyFields(); len(pk) != 0 {
		t.Errorf("PrimaryKeyFields = %+v, want none", pk)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	if _, err := gen.Parse(testdataPath("invalid_rel.go")); err == nil {
		t.Error("link without junction: expected error, got nil")
	}
	if _, err := gen.Parse("nonexistent.go"); err == nil {
		t.Error("missing file: expected error, got nil")
	}
	infos, err := gen.Parse(testdataPath("order.go"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gen.Find(infos, "Refund"); err == nil {
		t.Error("Find unknown struct: expected error, got nil")
	}
}
