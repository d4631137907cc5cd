package exec

import (
	"fmt"
	"strings"

	"github.com/orbitquery/queryengine/internal/sources"
)

// CacheKeys substitutes each id into pattern's sole `{pkColumn}` placeholder
// (cache strategy only ever applies to a single-PK-column byIds lookup),
// returning one key per id in the same order.
func CacheKeys(pattern, pkColumn string, ids []any) []string {
	placeholder := "{" + pkColumn + "}"
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = strings.Replace(pattern, placeholder, fmt.Sprintf("%v", id), 1)
	}
	return keys
}

// PartitionHits splits ids into cache hits (decoded rows, already in
// logical-name form) and the ids that missed, preserving id order in both
// outputs.
func PartitionHits(ids []any, keys []string, hits map[string]sources.CacheEntry) (hitRows []map[string]any, missingIDs []any) {
	for i, id := range ids {
		if row, ok := hits[keys[i]]; ok {
			hitRows = append(hitRows, map[string]any(row))
		} else {
			missingIDs = append(missingIDs, id)
		}
	}
	return hitRows, missingIDs
}
