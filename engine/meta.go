package engine

import (
	"github.com/orbitquery/queryengine/internal/exec"
	"github.com/orbitquery/queryengine/internal/ir"
	"github.com/orbitquery/queryengine/internal/plan"
	"github.com/orbitquery/queryengine/internal/registry"
)

// buildMeta assembles the result metadata spec.md §6 describes: strategy,
// target database, dialect, the tables the plan actually touched, and the
// projected columns.
func (e *Engine) buildMeta(snap *registry.Snapshot, p *plan.Plan, dialect plan.Dialect, resolved *ir.Result) exec.Meta {
	return exec.Meta{
		Strategy:       exec.StrategyLabel(p.Strategy),
		TargetDatabase: targetDatabase(p),
		Dialect:        string(dialect),
		TablesUsed:     tablesUsed(snap, p, resolved.ColumnMappings),
		Columns:        columnsMeta(resolved.ColumnMappings),
	}
}

func targetDatabase(p *plan.Plan) string {
	switch p.Strategy {
	case plan.StrategyCache:
		return p.Cache.FallbackDatabase
	case plan.StrategyDirect:
		return p.Direct.Database
	case plan.StrategyMaterialized:
		return p.Mat.Database
	default:
		// Federated plans span multiple databases; there is no single
		// target to report.
		return ""
	}
}

func tablesUsed(snap *registry.Snapshot, p *plan.Plan, mappings []ir.ColumnMapping) []exec.TableUsage {
	seen := map[string]bool{}
	var out []exec.TableUsage
	for _, m := range mappings {
		table := snap.Indexes.TablesByLogicalName[m.TableLogicalName]
		if table == nil || seen[table.ID] {
			continue
		}
		seen[table.ID] = true
		out = append(out, tableUsage(p, table))
	}
	return out
}

func tableUsage(p *plan.Plan, table *registry.Table) exec.TableUsage {
	switch p.Strategy {
	case plan.StrategyCache:
		return exec.TableUsage{TableID: table.ID, Source: "cache", Database: table.DatabaseID, PhysicalName: table.PhysicalName}
	case plan.StrategyMaterialized:
		if override, ok := p.Mat.TableOverrides[table.ID]; ok {
			return exec.TableUsage{TableID: table.ID, Source: "materialized", Database: p.Mat.Database, PhysicalName: override}
		}
		return exec.TableUsage{TableID: table.ID, Source: "original", Database: table.DatabaseID, PhysicalName: table.PhysicalName}
	default:
		return exec.TableUsage{TableID: table.ID, Source: "original", Database: table.DatabaseID, PhysicalName: table.PhysicalName}
	}
}

func columnsMeta(mappings []ir.ColumnMapping) []exec.ColumnMeta {
	out := make([]exec.ColumnMeta, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, exec.ColumnMeta{
			LogicalName: m.LogicalName,
			Type:        string(m.Type),
			Nullable:    m.Nullable,
			FromTable:   m.TableLogicalName,
			Masked:      m.Masked,
		})
	}
	return out
}
