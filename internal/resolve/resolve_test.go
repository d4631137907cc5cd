package resolve_test

import (
	"strings"
	"testing"

	"github.com/orbitquery/queryengine/internal/access"
	"github.com/orbitquery/queryengine/internal/dialect/rowstore"
	"github.com/orbitquery/queryengine/internal/qdef"
	"github.com/orbitquery/queryengine/internal/registry"
	"github.com/orbitquery/queryengine/internal/resolve"
)

func ordersSnapshot() *registry.Snapshot {
	orders := &registry.Table{
		ID:          "t-orders",
		LogicalName: "orders",
		DatabaseID:  "db-row",
		Columns: []registry.Column{
			{LogicalName: "id", PhysicalName: "id", Type: registry.TypeUUID},
			{LogicalName: "name", PhysicalName: "name", Type: registry.TypeString},
		},
		PrimaryKey: []string{"id"},
	}
	return &registry.Snapshot{
		Roles: map[string]*registry.Role{},
		Indexes: registry.Indexes{
			TablesByLogicalName: map[string]*registry.Table{"orders": orders},
			TablesByID:          map[string]*registry.Table{orders.ID: orders},
		},
	}
}

func TestResolveValueCompare_StartsWith_DefaultsCaseSensitive(t *testing.T) {
	snap := ordersSnapshot()
	def := &qdef.Definition{
		From: "orders",
		Filters: qdef.ValueCompare{
			Column:   "name",
			Operator: qdef.OpStartsWith,
			Value:    "Acme",
		},
		ExecuteMode: qdef.ExecData,
	}

	result, err := resolve.Resolve(snap, def, access.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sql, _ := rowstore.Generate(result.Parts, result.Params)
	if !strings.Contains(sql, " LIKE ") || strings.Contains(sql, "ILIKE") {
		t.Fatalf("expected case-sensitive LIKE by default, got: %s", sql)
	}
}

func TestResolveValueCompare_StartsWith_CaseInsensitiveOptIn(t *testing.T) {
	snap := ordersSnapshot()
	def := &qdef.Definition{
		From: "orders",
		Filters: qdef.ValueCompare{
			Column:          "name",
			Operator:        qdef.OpStartsWith,
			Value:           "Acme",
			CaseInsensitive: true,
		},
		ExecuteMode: qdef.ExecData,
	}

	result, err := resolve.Resolve(snap, def, access.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sql, _ := rowstore.Generate(result.Parts, result.Params)
	if !strings.Contains(sql, "ILIKE") {
		t.Fatalf("expected ILIKE when CaseInsensitive is set, got: %s", sql)
	}
}
