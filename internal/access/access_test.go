package access_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/orbitquery/queryengine/internal/access"
	"github.com/orbitquery/queryengine/internal/registry"
)

func snapWithRoles(roles map[string]*registry.Role, table *registry.Table) *registry.Snapshot {
	return &registry.Snapshot{
		Roles: roles,
		Indexes: registry.Indexes{
			TablesByID: map[string]*registry.Table{table.ID: table},
		},
	}
}

func ordersTable() *registry.Table {
	return &registry.Table{
		ID:          "t-orders",
		LogicalName: "orders",
		Columns: []registry.Column{
			{LogicalName: "id", Type: registry.TypeUUID},
			{LogicalName: "email", Type: registry.TypeString, MaskingFn: registry.MaskEmail},
			{LogicalName: "total", Type: registry.TypeDecimal},
		},
	}
}

func TestResolve_NoScopes_Unrestricted(t *testing.T) {
	table := ordersTable()
	snap := snapWithRoles(map[string]*registry.Role{}, table)

	got := access.Resolve(snap, table.ID, access.Context{})

	if !got.Allowed || !got.AllColumns {
		t.Fatalf("expected unrestricted access, got %+v", got)
	}
	if got.MaskingFnByColumn["email"] != registry.MaskEmail {
		t.Fatalf("expected default masking to still apply, got %+v", got.MaskingFnByColumn)
	}
}

func TestResolve_EmptyScope_Denies(t *testing.T) {
	table := ordersTable()
	snap := snapWithRoles(map[string]*registry.Role{}, table)

	got := access.Resolve(snap, table.ID, access.Context{Scopes: []access.Scope{{Name: "user"}}})

	if got.Allowed {
		t.Fatalf("expected empty scope to deny access, got %+v", got)
	}
}

func TestResolve_UnionWithinScope(t *testing.T) {
	table := ordersTable()
	roles := map[string]*registry.Role{
		"viewer": {ID: "viewer", Tables: []registry.RoleTableGrant{
			{TableID: table.ID, AllowedColumns: []string{"id"}},
		}},
		"billing": {ID: "billing", Tables: []registry.RoleTableGrant{
			{TableID: table.ID, AllowedColumns: []string{"total"}},
		}},
	}
	snap := snapWithRoles(roles, table)

	got := access.Resolve(snap, table.ID, access.Context{
		Scopes: []access.Scope{{Name: "user", RoleIDs: []string{"viewer", "billing"}}},
	})

	want := map[string]bool{"id": true, "total": true}
	if diff := cmp.Diff(want, got.AllowedColumns, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("union mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_IntersectAcrossScopes(t *testing.T) {
	table := ordersTable()
	roles := map[string]*registry.Role{
		"viewer": {ID: "viewer", Tables: []registry.RoleTableGrant{
			{TableID: table.ID, AllowedColumns: []string{"id", "total"}},
		}},
		"restricted-service": {ID: "restricted-service", Tables: []registry.RoleTableGrant{
			{TableID: table.ID, AllowedColumns: []string{"id"}},
		}},
	}
	snap := snapWithRoles(roles, table)

	got := access.Resolve(snap, table.ID, access.Context{
		Scopes: []access.Scope{
			{Name: "user", RoleIDs: []string{"viewer"}},
			{Name: "service", RoleIDs: []string{"restricted-service"}},
		},
	})

	want := map[string]bool{"id": true}
	if diff := cmp.Diff(want, got.AllowedColumns, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("intersection mismatch (-want +got):\n%s", diff)
	}
	if got.AllowsColumn("total") {
		t.Fatalf("expected total to be excluded by intersection")
	}
}

func TestResolve_StarIsIdentity(t *testing.T) {
	table := ordersTable()
	roles := map[string]*registry.Role{
		"admin": {ID: "admin", AllTables: true},
		"restricted-service": {ID: "restricted-service", Tables: []registry.RoleTableGrant{
			{TableID: table.ID, AllowedColumns: []string{"id"}},
		}},
	}
	snap := snapWithRoles(roles, table)

	got := access.Resolve(snap, table.ID, access.Context{
		Scopes: []access.Scope{
			{Name: "user", RoleIDs: []string{"admin"}},
			{Name: "service", RoleIDs: []string{"restricted-service"}},
		},
	})

	want := map[string]bool{"id": true}
	if diff := cmp.Diff(want, got.AllowedColumns, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("'*' identity mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_RoleMaskingOverridesDefault(t *testing.T) {
	table := ordersTable()
	roles := map[string]*registry.Role{
		"auditor": {ID: "auditor", Tables: []registry.RoleTableGrant{
			{TableID: table.ID, AllColumns: true, MaskedColumns: []string{"total"}},
		}},
	}
	snap := snapWithRoles(roles, table)

	got := access.Resolve(snap, table.ID, access.Context{
		Scopes: []access.Scope{{Name: "user", RoleIDs: []string{"auditor"}}},
	})

	if got.MaskingFnByColumn["email"] != registry.MaskEmail {
		t.Fatalf("expected default email masking to still apply, got %+v", got.MaskingFnByColumn)
	}
	if got.MaskingFnByColumn["total"] != registry.MaskFull {
		t.Fatalf("expected role-declared mask on total to fall back to full, got %+v", got.MaskingFnByColumn)
	}
}
