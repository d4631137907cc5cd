package exec_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/orbitquery/queryengine/internal/exec"
	"github.com/orbitquery/queryengine/internal/sources"
)

func TestCacheKeys_SubstitutesEachID(t *testing.T) {
	got := exec.CacheKeys("user:{id}", "id", []any{"1", "2", "3"})
	want := []string{"user:1", "user:2", "user:3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("CacheKeys mismatch (-want +got):\n%s", diff)
	}
}

func TestPartitionHits_SplitsHitsAndMisses(t *testing.T) {
	ids := []any{"1", "2", "3"}
	keys := []string{"user:1", "user:2", "user:3"}
	hits := map[string]sources.CacheEntry{
		"user:1": {"id": "1", "name": "Alice"},
		"user:3": {"id": "3", "name": "Carol"},
	}

	hitRows, missing := exec.PartitionHits(ids, keys, hits)

	wantMissing := []any{"2"}
	if diff := cmp.Diff(wantMissing, missing); diff != "" {
		t.Fatalf("missing ids mismatch (-want +got):\n%s", diff)
	}
	if len(hitRows) != 2 {
		t.Fatalf("expected 2 hit rows, got %d", len(hitRows))
	}
	if hitRows[0]["name"] != "Alice" || hitRows[1]["name"] != "Carol" {
		t.Fatalf("unexpected hit rows: %v", hitRows)
	}
}

func TestPartitionHits_AllMiss(t *testing.T) {
	ids := []any{"1", "2"}
	keys := []string{"user:1", "user:2"}
	hitRows, missing := exec.PartitionHits(ids, keys, map[string]sources.CacheEntry{})

	if len(hitRows) != 0 {
		t.Fatalf("expected no hits, got %v", hitRows)
	}
	if diff := cmp.Diff(ids, missing); diff != "" {
		t.Fatalf("missing ids mismatch (-want +got):\n%s", diff)
	}
}
