package columnar_test

import (
	"testing"

	"github.com/orbitquery/queryengine/internal/dialect/columnar"
	"github.com/orbitquery/queryengine/internal/ir"
	"github.com/orbitquery/queryengine/internal/registry"
)

func TestGenerate_SimpleSelect(t *testing.T) {
	parts := ir.SqlParts{
		Select: []ir.ColumnRef{{TableAlias: "t0", ColumnName: "id"}},
		From:   ir.TableRef{PhysicalName: "events", Alias: "t0"},
		Where: ir.Comparison{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "status"},
			ColType:  registry.TypeString,
			Operator: "=",
			ParamIdx: []int{0},
		},
	}
	sql, params := columnar.Generate(parts, []any{"open"})

	want := "SELECT `t0`.`id` FROM `events` AS `t0` WHERE `t0`.`status` = {p1:String}"
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if len(params) != 1 || params[0] != "open" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestGenerate_InUsesNamedArrayPlaceholder(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "events", Alias: "t0"},
		Where: ir.Comparison{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "id"},
			ColType:  registry.TypeUUID,
			Operator: "in",
			ParamIdx: []int{0},
		},
	}
	sql, _ := columnar.Generate(parts, []any{[]string{"a", "b"}})

	want := "SELECT * FROM `events` AS `t0` WHERE `t0`.`id` IN ({p1:Array(UUID)})"
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestGenerate_CaseInsensitiveUsesIlikeFunction(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "events", Alias: "t0"},
		Where: ir.FuncApplication{
			Column:          ir.ColumnRef{TableAlias: "t0", ColumnName: "name"},
			Operator:        "contains",
			ParamIdx:        0,
			CaseInsensitive: true,
		},
	}
	sql, params := columnar.Generate(parts, []any{"50%_off"})

	want := "SELECT * FROM `events` AS `t0` WHERE ilike(`t0`.`name`, {p1:String})"
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if params[0] != `%50\%\_off%` {
		t.Fatalf("unexpected escaped pattern: %v", params[0])
	}
}

func TestGenerate_StartsWithUsesRawValueFunction(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "events", Alias: "t0"},
		Where: ir.FuncApplication{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "name"},
			Operator: "startsWith",
			ParamIdx: 0,
		},
	}
	sql, params := columnar.Generate(parts, []any{"acme"})

	want := "SELECT * FROM `events` AS `t0` WHERE startsWith(`t0`.`name`, {p1:String})"
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if params[0] != "acme" {
		t.Fatalf("expected raw value, got: %v", params[0])
	}
}

func TestGenerate_ArrayOps(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "events", Alias: "t0"},
		Where: ir.ArrayOp{
			Column:   ir.ColumnRef{TableAlias: "t0", ColumnName: "tags"},
			ColType:  registry.TypeString,
			Operator: "arrayContains",
			ParamIdx: []int{0},
		},
	}
	sql, _ := columnar.Generate(parts, []any{"x"})

	want := "SELECT * FROM `events` AS `t0` WHERE has(`t0`.`tags`, {p1:String})"
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestGenerate_NotBetweenWrapsInNot(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "events", Alias: "t0"},
		Where: ir.Between{
			Column: ir.ColumnRef{TableAlias: "t0", ColumnName: "amount"},
			Negate: true,
			FromIdx: 0,
			ToIdx:   1,
		},
	}
	sql, _ := columnar.Generate(parts, []any{10, 20})

	want := "SELECT * FROM `events` AS `t0` WHERE NOT (`t0`.`amount` BETWEEN {p1:String} AND {p2:String})"
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestGenerate_BetweenUsesColTypeNotString(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "events", Alias: "t0"},
		Where: ir.Between{
			Column:  ir.ColumnRef{TableAlias: "t0", ColumnName: "amount"},
			ColType: registry.TypeDecimal,
			FromIdx: 0,
			ToIdx:   1,
		},
	}
	sql, _ := columnar.Generate(parts, []any{10, 20})

	want := "SELECT * FROM `events` AS `t0` WHERE `t0`.`amount` BETWEEN {p1:Decimal64(9)} AND {p2:Decimal64(9)}"
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestGenerate_Levenshtein(t *testing.T) {
	parts := ir.SqlParts{
		From: ir.TableRef{PhysicalName: "events", Alias: "t0"},
		Where: ir.FuncApplication{
			Column:        ir.ColumnRef{TableAlias: "t0", ColumnName: "name"},
			Operator:      "levenshteinLte",
			ParamIdx:      0,
			ExtraParamIdx: 1,
		},
	}
	sql, _ := columnar.Generate(parts, []any{"acme", 2})

	want := "SELECT * FROM `events` AS `t0` WHERE editDistance(`t0`.`name`, {p1:String}) <= {p2:UInt32}"
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}
