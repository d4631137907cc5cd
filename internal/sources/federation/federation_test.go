package federation

import (
	"strings"
	"testing"
)

func TestBuildDSN_IncludesCatalogAndSchema(t *testing.T) {
	dsn, err := buildDSN(Config{
		Host: "trino.internal", Port: "8080",
		Catalog: "lake", Schema: "public",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(dsn, "catalog=lake") || !strings.Contains(dsn, "schema=public") {
		t.Fatalf("dsn missing catalog/schema: %s", dsn)
	}
	if !strings.HasPrefix(dsn, "http://trino.internal:8080") {
		t.Fatalf("unexpected scheme/host: %s", dsn)
	}
}

func TestBuildDSN_SSLEnabledUsesHTTPS(t *testing.T) {
	dsn, err := buildDSN(Config{Host: "h", Port: "443", Catalog: "c", Schema: "s", SSLEnabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(dsn, "https://") {
		t.Fatalf("expected https scheme: %s", dsn)
	}
}

func TestBuildDSN_UserPasswordEmbedded(t *testing.T) {
	dsn, err := buildDSN(Config{Host: "h", Port: "1", Catalog: "c", Schema: "s", User: "bob", Password: "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(dsn, "bob:secret@") {
		t.Fatalf("expected embedded credentials: %s", dsn)
	}
}
