package federation_test

import (
	"testing"

	"github.com/orbitquery/queryengine/internal/dialect/federation"
	"github.com/orbitquery/queryengine/internal/ir"
)

func TestGenerate_SimpleSelect(t *testing.T) {
	parts := ir.SqlParts{
		Select: []ir.ColumnRef{{TableAlias: "t0", ColumnName: "id"}},
		From:   ir.TableRef{PhysicalName: "orders", Alias: "t0", Catalog: "lake"},
		Where: ir.Comparison{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "status"},
			Operator: "=",
			ParamIdx: []int{0},
		},
	}
	sql, params := federation.Generate(parts, []any{"open"})

	want := `SELECT "t0"."id" AS "t0__id" FROM "lake"."orders" AS "t0" WHERE "t0"."status" = ?`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if len(params) != 1 || params[0] != "open" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestGenerate_InExpandsArrayIntoPositionalPlaceholders(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.Comparison{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "id"},
			Operator: "in",
			ParamIdx: []int{0},
		},
	}
	sql, params := federation.Generate(parts, []any{[]string{"a", "b", "c"}})

	want := `SELECT * FROM "orders" AS "t0" WHERE "t0"."id" IN (?, ?, ?)`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if len(params) != 3 || params[0] != "a" || params[1] != "b" || params[2] != "c" {
		t.Fatalf("unexpected expanded params: %v", params)
	}
}

func TestGenerate_CaseInsensitiveUsesLowerLike(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.FuncApplication{
			Column:          ir.ColumnRef{TableAlias: "t0", ColumnName: "name"},
			Operator:        "contains",
			ParamIdx:        0,
			CaseInsensitive: true,
		},
	}
	sql, params := federation.Generate(parts, []any{"50%_off"})

	want := `SELECT * FROM "orders" AS "t0" WHERE lower("t0"."name") LIKE lower(?) ESCAPE '\'`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if params[0] != `%50\%\_off%` {
		t.Fatalf("unexpected escaped pattern: %v", params[0])
	}
}

func TestGenerate_ArrayContainsAll(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.ArrayOp{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "tags"},
			Operator: "arrayContainsAll",
			ParamIdx: []int{0},
		},
	}
	sql, params := federation.Generate(parts, []any{[]string{"x", "y"}})

	want := `SELECT * FROM "orders" AS "t0" WHERE cardinality(array_except(ARRAY[?, ?], "t0"."tags")) = 0`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if len(params) != 2 {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestGenerate_CatalogOmittedWhenEmpty(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "public.orders", Alias: "t0"},
	}
	sql, _ := federation.Generate(parts, nil)

	want := `SELECT * FROM "public"."orders" AS "t0"`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}
