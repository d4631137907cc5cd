package rowstore

import (
	"strings"
	"testing"
)

func TestDSN_IncludesAllFields(t *testing.T) {
	cfg := Config{
		DatabaseID: "db-row", Host: "pg.internal", Port: "5432",
		Database: "orders", User: "app", Password: "secret",
	}
	dsn := cfg.DSN()

	for _, want := range []string{"host=pg.internal", "port=5432", "dbname=orders", "user=app", "password=secret"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
}
