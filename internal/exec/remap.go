package exec

import (
	"github.com/orbitquery/queryengine/internal/ir"
	"github.com/orbitquery/queryengine/internal/plan"
	"github.com/orbitquery/queryengine/internal/sources"
)

// Remap rewrites one backend row's keys to logical names per mappings,
// reading each column under the SQL alias convention the generating
// dialect used: tAlias__physicalName for row-store/federation,
// tAlias.physicalName for columnar.
func Remap(dialect plan.Dialect, row sources.Row, mappings []ir.ColumnMapping) map[string]any {
	out := make(map[string]any, len(mappings))
	for _, m := range mappings {
		key := sqlKey(dialect, m)
		v, ok := row[key]
		if !ok {
			continue
		}
		out[m.LogicalName] = Coerce(m.Type, v)
	}
	return out
}

func sqlKey(dialect plan.Dialect, m ir.ColumnMapping) string {
	if dialect == plan.DialectColumnar {
		return m.TableAlias + "." + m.PhysicalName
	}
	return m.TableAlias + "__" + m.PhysicalName
}

// MaskRow applies each masked column's declared masking function to a
// remapped row in place, so every row the orchestrator emits — including
// cached hits — has no masked column's raw value present.
func MaskRow(row map[string]any, mappings []ir.ColumnMapping) {
	for _, m := range mappings {
		if !m.Masked {
			continue
		}
		if v, ok := row[m.LogicalName]; ok {
			row[m.LogicalName] = Mask(m.MaskingFn, v)
		}
	}
}
