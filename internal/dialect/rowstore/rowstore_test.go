package rowstore_test

import (
	"testing"

	"github.com/orbitquery/queryengine/internal/dialect/rowstore"
	"github.com/orbitquery/queryengine/internal/ir"
	"github.com/orbitquery/queryengine/internal/registry"
)

func TestGenerate_SimpleSelect(t *testing.T) {
	parts := ir.SqlParts{
		Select: []ir.ColumnRef{{TableAlias: "t0", ColumnName: "id"}},
		From:   ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.Comparison{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "status"},
			ColType:  registry.TypeString,
			Operator: "=",
			ParamIdx: []int{0},
		},
	}
	sql, params := rowstore.Generate(parts, []any{"open"})

	want := `SELECT "t0"."id" AS "t0__id" FROM "orders" AS "t0" WHERE "t0"."status" = $1`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if len(params) != 1 || params[0] != "open" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestGenerate_InUsesAnyWithColumnOnLeft(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.Comparison{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "id"},
			ColType:  registry.TypeUUID,
			Operator: "in",
			ParamIdx: []int{0},
		},
	}
	sql, _ := rowstore.Generate(parts, []any{[]string{"a", "b"}})

	want := `SELECT * FROM "orders" AS "t0" WHERE "t0"."id" = ANY($1::uuid[])`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestGenerate_NotInUsesAll(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.Comparison{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "id"},
			ColType:  registry.TypeUUID,
			Operator: "notIn",
			ParamIdx: []int{0},
		},
	}
	sql, _ := rowstore.Generate(parts, []any{[]string{"a", "b"}})

	want := `SELECT * FROM "orders" AS "t0" WHERE "t0"."id" <> ALL($1::uuid[])`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestGenerate_CountModeOmitsTrailingClauses(t *testing.T) {
	limit := 10
	parts := ir.SqlParts{
		CountMode: true,
		From:      ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Limit:     &limit,
		GroupBy:   []ir.ColumnRef{{TableAlias: "t0", ColumnName: "status"}},
	}
	sql, _ := rowstore.Generate(parts, nil)

	want := `SELECT COUNT(*) FROM "orders" AS "t0"`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestGenerate_GroupWrappingAndNegation(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.Group{
			Logic:  "or",
			Negate: true,
			Nodes: []ir.WhereNode{
				ir.Comparison{Column: ir.ColumnRef{TableAlias: "t0", ColumnName: "a"}, Operator: "=", ParamIdx: []int{0}},
				ir.Comparison{Column: ir.ColumnRef{TableAlias: "t0", ColumnName: "b"}, Operator: "=", ParamIdx: []int{1}},
			},
		},
	}
	sql, params := rowstore.Generate(parts, []any{1, 2})

	want := `SELECT * FROM "orders" AS "t0" WHERE NOT ("t0"."a" = $1 OR "t0"."b" = $2)`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if len(params) != 2 {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestGenerate_ArrayContainsAndContainsAll(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.Group{
			Logic: "and",
			Nodes: []ir.WhereNode{
				ir.ArrayOp{Column: ir.ColumnRef{TableAlias: "t0", ColumnName: "tags"}, ColType: registry.TypeString, Operator: "arrayContains", ParamIdx: []int{0}},
				ir.ArrayOp{Column: ir.ColumnRef{TableAlias: "t0", ColumnName: "tags"}, ColType: registry.TypeString, Operator: "arrayContainsAll", ParamIdx: []int{1}},
			},
		},
	}
	sql, _ := rowstore.Generate(parts, []any{"x", []string{"x", "y"}})

	want := `SELECT * FROM "orders" AS "t0" WHERE ($1::text = ANY("t0"."tags") AND "t0"."tags" @> $2::text[])`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestGenerate_ExistsSubquery(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.ExistsNode{
			Negate: false,
			Sub: ir.CorrelatedSubquery{
				From:      ir.TableRef{PhysicalName: "refunds", Alias: "s0"},
				JoinLeft:  ir.ColumnRef{TableAlias: "s0", ColumnName: "order_id"},
				JoinRight: ir.ColumnRef{TableAlias: "t0", ColumnName: "id"},
			},
		},
	}
	sql, _ := rowstore.Generate(parts, nil)

	want := `SELECT * FROM "orders" AS "t0" WHERE EXISTS (SELECT 1 FROM "refunds" AS "s0" WHERE "s0"."order_id" = "t0"."id")`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestGenerate_PatternWrapEscaping(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "orders", Alias: "t0"},
		Where: ir.FuncApplication{
			Column:          ir.ColumnRef{TableAlias: "t0", ColumnName: "name"},
			Operator:        "contains",
			ParamIdx:        0,
			CaseInsensitive: true,
		},
	}
	sql, params := rowstore.Generate(parts, []any{"50%_off"})

	want := `SELECT * FROM "orders" AS "t0" WHERE "t0"."name" ILIKE $1 ESCAPE '\'`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if params[0] != `%50\%\_off%` {
		t.Fatalf("unexpected escaped pattern: %v", params[0])
	}
}
