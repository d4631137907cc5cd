package validate_test

import (
	"testing"

	"github.com/orbitquery/queryengine/internal/access"
	"github.com/orbitquery/queryengine/internal/errs"
	"github.com/orbitquery/queryengine/internal/qdef"
	"github.com/orbitquery/queryengine/internal/registry"
	"github.com/orbitquery/queryengine/internal/validate"
)

func testSnapshot() *registry.Snapshot {
	orders := registry.Table{
		ID:          "t-orders",
		LogicalName: "orders",
		DatabaseID:  "db1",
		Columns: []registry.Column{
			{LogicalName: "id", Type: registry.TypeUUID},
			{LogicalName: "customerId", Type: registry.TypeUUID},
			{LogicalName: "total", Type: registry.TypeDecimal},
			{LogicalName: "tags", Type: registry.TypeStringArray},
		},
		PrimaryKey: []string{"id"},
		Relations: []registry.Relation{
			{FromColumn: "customerId", ReferencesTable: "t-customers", ReferencesCol: "id"},
		},
	}
	customers := registry.Table{
		ID:          "t-customers",
		LogicalName: "customers",
		DatabaseID:  "db1",
		Columns: []registry.Column{
			{LogicalName: "id", Type: registry.TypeUUID},
			{LogicalName: "name", Type: registry.TypeString},
		},
		PrimaryKey: []string{"id"},
	}

	return &registry.Snapshot{
		Roles: map[string]*registry.Role{
			"admin": {ID: "admin", AllTables: true},
		},
		Indexes: registry.Indexes{
			TablesByLogicalName: map[string]*registry.Table{"orders": &orders, "customers": &customers},
			TablesByID:          map[string]*registry.Table{orders.ID: &orders, customers.ID: &customers},
		},
	}
}

func adminCtx() access.Context {
	return access.Context{Scopes: []access.Scope{{Name: "user", RoleIDs: []string{"admin"}}}}
}

func codes(err *errs.Error) []string {
	if err == nil {
		return nil
	}
	rawErrs, _ := err.Details()["errors"].([]*errs.Error)
	out := make([]string, 0, len(rawErrs))
	for _, e := range rawErrs {
		out = append(out, e.Code())
	}
	return out
}

func TestValidate_UnknownFromTable(t *testing.T) {
	snap := testSnapshot()
	def := &qdef.Definition{From: "nonexistent", ExecuteMode: qdef.ExecData}

	err := validate.Validate(snap, def, adminCtx())
	if err == nil {
		t.Fatal("expected validation error")
	}
	got := codes(err)
	if len(got) != 1 || got[0] != errs.CodeUnknownTable {
		t.Fatalf("expected single UNKNOWN_TABLE, got %v", got)
	}
}

func TestValidate_ValidSimpleQuery(t *testing.T) {
	snap := testSnapshot()
	def := &qdef.Definition{From: "orders", ExecuteMode: qdef.ExecData}

	if err := validate.Validate(snap, def, adminCtx()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestValidate_UnknownColumn(t *testing.T) {
	snap := testSnapshot()
	def := &qdef.Definition{
		From: "orders", HasColumns: true, Columns: []string{"bogus"},
		ExecuteMode: qdef.ExecData,
	}

	err := validate.Validate(snap, def, adminCtx())
	got := codes(err)
	if len(got) != 1 || got[0] != errs.CodeUnknownColumn {
		t.Fatalf("expected single UNKNOWN_COLUMN, got %v", got)
	}
}

func TestValidate_JoinUnreachable(t *testing.T) {
	snap := testSnapshot()
	// add an island table with no relation to orders/customers
	island := registry.Table{ID: "t-island", LogicalName: "island", DatabaseID: "db1",
		Columns: []registry.Column{{LogicalName: "id", Type: registry.TypeUUID}}, PrimaryKey: []string{"id"}}
	snap.Indexes.TablesByLogicalName["island"] = &island
	snap.Indexes.TablesByID[island.ID] = &island

	def := &qdef.Definition{
		From:        "orders",
		Joins:       []qdef.JoinSpec{{Table: "island"}},
		ExecuteMode: qdef.ExecData,
	}

	err := validate.Validate(snap, def, adminCtx())
	got := codes(err)
	if len(got) != 1 || got[0] != errs.CodeInvalidJoin {
		t.Fatalf("expected single INVALID_JOIN, got %v", got)
	}
}

func TestValidate_ByIDsWithGroupByRejected(t *testing.T) {
	snap := testSnapshot()
	def := &qdef.Definition{
		From:        "orders",
		ByIDs:       []any{"a", "b"},
		GroupBy:     []string{"total"},
		ExecuteMode: qdef.ExecData,
	}

	err := validate.Validate(snap, def, adminCtx())
	got := codes(err)
	found := false
	for _, c := range got {
		if c == errs.CodeInvalidByIDs {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected INVALID_BY_IDS among %v", got)
	}
}

func TestValidate_BetweenRequiresBothBounds(t *testing.T) {
	snap := testSnapshot()
	def := &qdef.Definition{
		From: "orders",
		Filters: qdef.ValueCompare{
			Column: "total", Operator: qdef.OpBetween,
			Value: qdef.Between{From: 1.0, To: nil},
		},
		ExecuteMode: qdef.ExecData,
	}

	err := validate.Validate(snap, def, adminCtx())
	got := codes(err)
	if len(got) != 1 || got[0] != errs.CodeInvalidValue {
		t.Fatalf("expected single INVALID_VALUE, got %v", got)
	}
}

func TestValidate_ArrayOpOnNonArrayColumnRejected(t *testing.T) {
	snap := testSnapshot()
	def := &qdef.Definition{
		From: "orders",
		Filters: qdef.ValueCompare{
			Column: "total", Operator: qdef.OpArrayContains, Value: 1.0,
		},
		ExecuteMode: qdef.ExecData,
	}

	err := validate.Validate(snap, def, adminCtx())
	got := codes(err)
	if len(got) != 1 || got[0] != errs.CodeInvalidFilter {
		t.Fatalf("expected single INVALID_FILTER, got %v", got)
	}
}

func TestValidate_HavingRejectsBaseColumn(t *testing.T) {
	snap := testSnapshot()
	def := &qdef.Definition{
		From:         "orders",
		Aggregations: []qdef.Aggregation{{Function: "sum", Column: "total", Alias: "totalSum"}},
		Having: qdef.ValueCompare{
			Column: "total", Operator: qdef.OpGt, Value: 10.0,
		},
		ExecuteMode: qdef.ExecData,
	}

	err := validate.Validate(snap, def, adminCtx())
	got := codes(err)
	if len(got) != 1 || got[0] != errs.CodeInvalidHaving {
		t.Fatalf("expected single INVALID_HAVING, got %v", got)
	}
}

func TestValidate_AggregationOnArrayRejectedExceptCount(t *testing.T) {
	snap := testSnapshot()
	def := &qdef.Definition{
		From:         "orders",
		Aggregations: []qdef.Aggregation{{Function: "sum", Column: "tags", Alias: "x"}},
		ExecuteMode:  qdef.ExecData,
	}

	err := validate.Validate(snap, def, adminCtx())
	got := codes(err)
	if len(got) != 1 || got[0] != errs.CodeInvalidAggregate {
		t.Fatalf("expected single INVALID_AGGREGATION, got %v", got)
	}
}

func TestValidate_OffsetWithoutLimitRejected(t *testing.T) {
	snap := testSnapshot()
	offset := 5
	def := &qdef.Definition{From: "orders", Offset: &offset, ExecuteMode: qdef.ExecData}

	err := validate.Validate(snap, def, adminCtx())
	got := codes(err)
	if len(got) != 1 || got[0] != errs.CodeInvalidLimit {
		t.Fatalf("expected single INVALID_LIMIT, got %v", got)
	}
}

func TestValidate_UnknownRole(t *testing.T) {
	snap := testSnapshot()
	def := &qdef.Definition{From: "orders", ExecuteMode: qdef.ExecData}
	ctx := access.Context{Scopes: []access.Scope{{Name: "user", RoleIDs: []string{"ghost"}}}}

	err := validate.Validate(snap, def, ctx)
	got := codes(err)
	found := false
	for _, c := range got {
		if c == errs.CodeUnknownRole {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected UNKNOWN_ROLE among %v", got)
	}
}
