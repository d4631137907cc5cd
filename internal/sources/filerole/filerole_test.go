package filerole_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/orbitquery/queryengine/internal/sources/filerole"
)

const doc = `
- id: admin
  tables: "*"
- id: support
  tables:
    - tableId: t-orders
      allowedColumns: "*"
      maskedColumns: [email]
    - tableId: t-customers
      allowedColumns: [id, name]
`

func TestLoad_StarAndExplicitGrants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	roles, err := filerole.Provider{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(roles))
	}

	admin := roles[0]
	if admin.ID != "admin" || !admin.AllTables {
		t.Fatalf("expected admin role with AllTables, got %+v", admin)
	}

	support := roles[1]
	if support.ID != "support" || len(support.Tables) != 2 {
		t.Fatalf("unexpected support role: %+v", support)
	}
	if !support.Tables[0].AllColumns {
		t.Fatalf("expected AllColumns for t-orders grant: %+v", support.Tables[0])
	}
	if len(support.Tables[0].MaskedColumns) != 1 || support.Tables[0].MaskedColumns[0] != "email" {
		t.Fatalf("unexpected masked columns: %+v", support.Tables[0].MaskedColumns)
	}
	if len(support.Tables[1].AllowedColumns) != 2 {
		t.Fatalf("unexpected allowed columns: %+v", support.Tables[1].AllowedColumns)
	}
}
