// Package plan chooses one of four execution strategies for a validated
// query: cache, direct, materialized, or federated.
package plan

import (
	"github.com/orbitquery/queryengine/internal/errs"
	"github.com/orbitquery/queryengine/internal/qdef"
	"github.com/orbitquery/queryengine/internal/registry"
)

// Strategy names which of the four outcomes a Plan represents.
type Strategy string

const (
	StrategyCache        Strategy = "cache"
	StrategyDirect       Strategy = "direct"
	StrategyMaterialized Strategy = "materialized"
	StrategyFederated    Strategy = "federated"
)

// Dialect names which SQL generator a plan must use.
type Dialect string

const (
	DialectRowStore   Dialect = "rowstore"
	DialectColumnar   Dialect = "columnar"
	DialectFederation Dialect = "federation"
)

func dialectFor(engine registry.Engine) Dialect {
	switch engine {
	case registry.EngineRow:
		return DialectRowStore
	case registry.EngineColumnar:
		return DialectColumnar
	default: // federated-engine, lakehouse
		return DialectFederation
	}
}

// Plan is the planner's output: exactly one of the embedded strategy
// payloads is populated, selected by Strategy.
type Plan struct {
	Strategy Strategy
	Cache    *CachePlan
	Direct   *DirectPlan
	Mat      *MaterializedPlan
	Fed      *FederatedPlan
}

type CachePlan struct {
	CacheID          string
	TableID          string
	KeyPattern       string
	FallbackDatabase string
	FallbackDialect  Dialect
}

type DirectPlan struct {
	Database          string
	Dialect           Dialect
	FederationCatalog string // set iff the lone database is a lakehouse
}

type MaterializedPlan struct {
	Database       string
	Dialect        Dialect
	TableOverrides map[string]string // tableID -> replicated physicalName
}

type FederatedPlan struct {
	CatalogsByDatabase map[string]string
}

// Options carries deployment-level toggles that affect planning.
type Options struct {
	FederationEnabled bool
}

// referencedTable is a table touched by the query, resolved from its
// logicalName, in traversal order (from, joins, exists targets).
type referencedTable struct {
	logicalName string
	table       *registry.Table
}

// Plan selects a strategy for def against snap under opts. def is assumed
// already validated.
func Plan(snap *registry.Snapshot, def *qdef.Definition, opts Options) (*Plan, *errs.Error) {
	refs := collectReferencedTables(snap, def)

	if p := tryCache(snap, def, refs); p != nil {
		return p, nil
	}

	dbSet := map[string]bool{}
	for _, r := range refs {
		dbSet[r.table.DatabaseID] = true
	}
	if len(dbSet) == 0 {
		return nil, errs.NewPlannerError(errs.CodeUnreachableTables, "query references no resolvable tables", nil)
	}

	if len(dbSet) == 1 {
		var dbID string
		for id := range dbSet {
			dbID = id
		}
		return directPlan(snap, dbID), nil
	}

	matPlan, freshnessErr := tryMaterialized(snap, def, refs, dbSet)
	if matPlan != nil {
		return matPlan, nil
	}
	if freshnessErr != nil {
		return nil, freshnessErr
	}

	if !opts.FederationEnabled {
		return nil, errs.NewPlannerError(errs.CodeFederationDisabled, "query spans multiple databases and federation is disabled",
			map[string]any{"databases": setKeys(dbSet)})
	}

	return federatedPlan(snap, dbSet)
}

func collectReferencedTables(snap *registry.Snapshot, def *qdef.Definition) []referencedTable {
	seen := map[string]bool{}
	var out []referencedTable

	add := func(logicalName string) {
		if seen[logicalName] {
			return
		}
		t, ok := snap.Indexes.TablesByLogicalName[logicalName]
		if !ok {
			return
		}
		seen[logicalName] = true
		out = append(out, referencedTable{logicalName: logicalName, table: t})
	}

	add(def.From)
	for _, j := range def.Joins {
		add(j.Table)
	}
	walkExistsTargets(def.Filters, add)
	return out
}

func walkExistsTargets(node qdef.FilterNode, add func(string)) {
	switch n := node.(type) {
	case qdef.Group:
		for _, c := range n.Nodes {
			walkExistsTargets(c, add)
		}
	case qdef.ExistsFilter:
		add(n.Table)
		walkExistsTargets(n.Where, add)
	case qdef.CountedExistsFilter:
		add(n.Table)
		walkExistsTargets(n.Where, add)
	}
}

// tryCache implements strategy P0. Returns nil if the cache strategy does
// not apply (callers fall through to the next strategy).
func tryCache(snap *registry.Snapshot, def *qdef.Definition, refs []referencedTable) *Plan {
	if len(def.ByIDs) == 0 || def.Filters != nil {
		return nil
	}
	if len(refs) != 1 {
		return nil
	}
	from := refs[0].table
	entries, ok := snap.Indexes.CachesByTableID[from.ID]
	if !ok || len(entries) == 0 {
		return nil
	}

	for _, binding := range entries {
		if def.HasColumns && len(def.Columns) > 0 {
			cached := make(map[string]bool, len(binding.Entry.Columns))
			for _, c := range binding.Entry.Columns {
				cached[c] = true
			}
			allCovered := len(binding.Entry.Columns) == 0 // empty means "all columns cached"
			if !allCovered {
				covered := true
				for _, want := range def.Columns {
					if !cached[want] {
						covered = false
						break
					}
				}
				if !covered {
					continue
				}
			}
		}

		db := snap.Indexes.DatabasesByID[from.DatabaseID]
		return &Plan{
			Strategy: StrategyCache,
			Cache: &CachePlan{
				CacheID:          binding.CacheID,
				TableID:          from.ID,
				KeyPattern:       binding.Entry.KeyPattern,
				FallbackDatabase: from.DatabaseID,
				FallbackDialect:  dialectFor(db.Engine),
			},
		}
	}
	return nil
}

func directPlan(snap *registry.Snapshot, dbID string) *Plan {
	db := snap.Indexes.DatabasesByID[dbID]
	dialect := dialectFor(db.Engine)
	plan := &DirectPlan{Database: dbID, Dialect: dialect}
	if db.Engine == registry.EngineLakehouse {
		plan.FederationCatalog = db.FederationCatalog
	}
	return &Plan{Strategy: StrategyDirect, Direct: plan}
}

// tryMaterialized implements strategy P2. A non-nil *Plan means the
// strategy succeeded. A nil plan with a non-nil error means at least one
// database had a full replica topology for every touched table but missed
// the requested freshness for one of them (FRESHNESS_UNMET is a terminal
// planner failure, not a signal to fall through to federation). A nil plan
// with a nil error means the strategy simply doesn't apply; the caller
// should try federation next.
func tryMaterialized(snap *registry.Snapshot, def *qdef.Definition, refs []referencedTable, dbSet map[string]bool) (*Plan, *errs.Error) {
	type candidate struct {
		dbID        string
		overrides   map[string]string
		nativeCount int
	}
	var candidates []candidate
	var freshnessMiss *errs.Error

	// Candidates are visited in configured database order, so the strict
	// ">" below keeps the first configured database among equal counts.
	// A snapshot without the config list falls back to setKeys' order.
	order := make([]string, 0, len(dbSet))
	for _, db := range snap.Config.Databases {
		if dbSet[db.ID] {
			order = append(order, db.ID)
		}
	}
	if len(order) != len(dbSet) {
		order = setKeys(dbSet)
	}

	for _, dbID := range order {
		overrides := map[string]string{}
		nativeCount := 0
		ok := true
		for _, r := range refs {
			if r.table.DatabaseID == dbID {
				nativeCount++
				continue
			}
			sync, found := findSatisfyingSync(snap, r.table.ID, dbID, def.Freshness)
			if found {
				overrides[r.table.ID] = sync.TargetPhysicalName
				continue
			}
			ok = false
			if anySync, exists := anySyncTo(snap, r.table.ID, dbID); exists {
				freshnessMiss = errs.NewPlannerError(errs.CodeFreshnessUnmet,
					"a replica exists but its lag does not satisfy the requested freshness",
					map[string]any{"table": r.table.ID, "database": dbID, "estimatedLag": anySync.EstimatedLag, "requested": def.Freshness})
			}
			break
		}
		if ok {
			candidates = append(candidates, candidate{dbID: dbID, overrides: overrides, nativeCount: nativeCount})
		}
	}

	if len(candidates) == 0 {
		return nil, freshnessMiss
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.nativeCount > best.nativeCount {
			best = c
		}
	}

	db := snap.Indexes.DatabasesByID[best.dbID]
	return &Plan{
		Strategy: StrategyMaterialized,
		Mat: &MaterializedPlan{
			Database:       best.dbID,
			Dialect:        dialectFor(db.Engine),
			TableOverrides: best.overrides,
		},
	}, nil
}

func anySyncTo(snap *registry.Snapshot, tableID, targetDBID string) (registry.ExternalSync, bool) {
	for _, sync := range snap.Indexes.SyncsByTableID[tableID] {
		if sync.TargetDatabaseID == targetDBID {
			return sync, true
		}
	}
	return registry.ExternalSync{}, false
}

func findSatisfyingSync(snap *registry.Snapshot, tableID, targetDBID string, freshness registry.Freshness) (registry.ExternalSync, bool) {
	if freshness == registry.FreshnessRealtime {
		// realtime requires the table be native; no sync can satisfy it.
		return registry.ExternalSync{}, false
	}
	req := freshness
	if req == "" {
		req = registry.FreshnessHours // unspecified freshness: accept any lag
	}
	for _, sync := range snap.Indexes.SyncsByTableID[tableID] {
		if sync.TargetDatabaseID != targetDBID {
			continue
		}
		if sync.EstimatedLag.Satisfies(req) {
			return sync, true
		}
	}
	return registry.ExternalSync{}, false
}

// federatedPlan implements strategy P3.
func federatedPlan(snap *registry.Snapshot, dbSet map[string]bool) (*Plan, *errs.Error) {
	catalogs := map[string]string{}
	for dbID := range dbSet {
		db := snap.Indexes.DatabasesByID[dbID]
		if db.FederationCatalog == "" {
			return nil, errs.NewPlannerError(errs.CodeNoCatalog, "database has no federation catalog",
				map[string]any{"database": dbID})
		}
		catalogs[dbID] = db.FederationCatalog
	}
	return &Plan{Strategy: StrategyFederated, Fed: &FederatedPlan{CatalogsByDatabase: catalogs}}, nil
}

func setKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
