package engine

import (
	"context"
	"time"

	"github.com/orbitquery/queryengine/internal/access"
	"github.com/orbitquery/queryengine/internal/errs"
	"github.com/orbitquery/queryengine/internal/exec"
	"github.com/orbitquery/queryengine/internal/ir"
	"github.com/orbitquery/queryengine/internal/plan"
	"github.com/orbitquery/queryengine/internal/qdef"
	"github.com/orbitquery/queryengine/internal/registry"
	"github.com/orbitquery/queryengine/internal/resolve"
	"github.com/orbitquery/queryengine/internal/sources"
	"github.com/orbitquery/queryengine/internal/validate"
)

// Query runs def through validate -> plan -> resolve -> generate -> (cache
// lookup ->) execute -> remap -> mask, and packages the outcome. Phases run
// strictly sequentially within one call (spec.md §5); the snapshot is
// captured once at the start so a concurrent ReloadMetadata/ReloadRoles
// never changes the metadata a query sees mid-flight.
func (e *Engine) Query(ctx context.Context, def *qdef.Definition, accessCtx access.Context) (*exec.Result, *errs.Error) {
	if e.closed.Load() {
		return nil, errs.NewExecutionError(errs.CodeExecutorMissing, "engine is closed", nil, nil)
	}

	snap := e.registry.GetSnapshot()
	var debugLog []exec.DebugEntry
	record := func(phase string, start time.Time) float64 {
		ms := msSince(start)
		if def.Debug {
			debugLog = append(debugLog, exec.DebugEntry{Phase: phase, DurationMs: ms})
		}
		return ms
	}

	t0 := time.Now()
	if verr := validate.Validate(snap, def, accessCtx); verr != nil {
		e.logger.WarnContext(ctx, "query validation failed", "from", def.From, "error", verr)
		return nil, verr
	}
	record("validate", t0)

	t1 := time.Now()
	p, perr := plan.Plan(snap, def, e.opts)
	if perr != nil {
		e.logger.WarnContext(ctx, "query planning failed", "from", def.From, "error", perr)
		return nil, perr
	}
	planningMs := record("plan", t1)
	e.logger.DebugContext(ctx, "query planned", "from", def.From, "strategy", string(p.Strategy))

	t2 := time.Now()
	resolved, err := resolve.Resolve(snap, def, accessCtx)
	if err != nil {
		e.logger.ErrorContext(ctx, "query resolution failed", "from", def.From, "error", err)
		return nil, errs.NewExecutionError(errs.CodeQueryFailed, "failed to resolve query", nil, err)
	}
	record("resolve", t2)

	dialect := dialectForPlan(p)

	t3 := time.Now()
	sql, params, genErr := exec.Generate(dialect, resolved.Parts, resolved.Params)
	if genErr != nil {
		e.logger.ErrorContext(ctx, "sql generation failed", "from", def.From, "dialect", string(dialect), "error", genErr)
		return nil, errs.NewExecutionError(errs.CodeQueryFailed, "failed to generate sql", nil, genErr)
	}
	generationMs := record("generate", t3)
	e.logger.DebugContext(ctx, "sql generated", "dialect", string(dialect), "sql", sql)

	meta := e.buildMeta(snap, p, dialect, resolved)
	meta.Timing.PlanningMs = planningMs
	meta.Timing.GenerationMs = generationMs

	if def.ExecuteMode == qdef.ExecSQLOnly {
		return &exec.Result{Kind: exec.KindSQL, SQL: sql, Params: params, Meta: meta, DebugLog: debugLog}, nil
	}

	t4 := time.Now()
	rows, execErr := e.runStrategy(ctx, snap, def, accessCtx, p, dialect, sql, params, resolved)
	executionMs := record("execute", t4)
	meta.Timing.ExecutionMs = &executionMs
	if execErr != nil {
		e.logger.ErrorContext(ctx, "query execution failed", "from", def.From, "strategy", string(p.Strategy), "error", execErr)
		return nil, execErr
	}

	if def.ExecuteMode == qdef.ExecCount {
		count, cerr := exec.ExtractCount(toSourceRows(rows))
		if cerr != nil {
			return nil, errs.NewExecutionError(errs.CodeQueryFailed, cerr.Error(), nil, cerr)
		}
		return &exec.Result{Kind: exec.KindCount, Count: count, Meta: meta, DebugLog: debugLog}, nil
	}

	return &exec.Result{Kind: exec.KindData, Data: rows, Meta: meta, DebugLog: debugLog}, nil
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func dialectForPlan(p *plan.Plan) plan.Dialect {
	switch p.Strategy {
	case plan.StrategyCache:
		return p.Cache.FallbackDialect
	case plan.StrategyDirect:
		return p.Direct.Dialect
	case plan.StrategyMaterialized:
		return p.Mat.Dialect
	default:
		return plan.DialectFederation
	}
}

func toSourceRows(rows []map[string]any) []sources.Row {
	out := make([]sources.Row, len(rows))
	for i, r := range rows {
		out[i] = sources.Row(r)
	}
	return out
}

// runStrategy executes p against the appropriate backend(s) and returns
// rows already remapped to logical names and masked. In count mode the
// backend rows are returned unmapped so ExtractCount sees the count value.
func (e *Engine) runStrategy(ctx context.Context, snap *registry.Snapshot, def *qdef.Definition, accessCtx access.Context, p *plan.Plan, dialect plan.Dialect, sql string, params []any, resolved *ir.Result) ([]map[string]any, *errs.Error) {
	switch p.Strategy {
	case plan.StrategyCache:
		return e.runCache(ctx, snap, def, accessCtx, p, dialect, resolved)
	default:
		mappings := resolved.ColumnMappings
		if def.ExecuteMode == qdef.ExecCount {
			mappings = nil
		}
		return e.runBackend(ctx, p, dialect, sql, params, mappings)
	}
}

// runBackend picks the executor for a direct/materialized/federated plan,
// executes, remaps, and masks. With no column mappings (count mode, or an
// aggregation-only query) rows keep the keys the backend returned.
func (e *Engine) runBackend(ctx context.Context, p *plan.Plan, dialect plan.Dialect, sql string, params []any, mappings []ir.ColumnMapping) ([]map[string]any, *errs.Error) {
	databaseID, executor := e.executorFor(p)
	if executor == nil {
		e.logger.ErrorContext(ctx, "no executor registered for database", "database", databaseID)
		return nil, errs.NewExecutionError(errs.CodeExecutorMissing, "no executor registered for database",
			map[string]any{"database": databaseID}, nil)
	}

	e.logger.DebugContext(ctx, "executing query", "database", databaseID, "dialect", string(dialect), "sql", sql)
	rows, err := executor.Execute(ctx, sql, params)
	if err != nil {
		return nil, exec.ClassifyError(err, sql, params, databaseID, string(dialect))
	}

	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		if len(mappings) == 0 {
			out[i] = map[string]any(row)
			continue
		}
		remapped := exec.Remap(dialect, row, mappings)
		exec.MaskRow(remapped, mappings)
		out[i] = remapped
	}
	return out, nil
}

func (e *Engine) executorFor(p *plan.Plan) (string, sources.Executor) {
	switch p.Strategy {
	case plan.StrategyDirect:
		if p.Direct.FederationCatalog != "" {
			return p.Direct.Database, e.federation
		}
		return p.Direct.Database, e.executors[p.Direct.Database]
	case plan.StrategyMaterialized:
		return p.Mat.Database, e.executors[p.Mat.Database]
	case plan.StrategyFederated:
		return "federation", e.federation
	default:
		return "", nil
	}
}

// runCache implements the cache strategy, including the partial-hit
// re-resolve-with-reduced-byIds fallback (spec.md §4.9).
func (e *Engine) runCache(ctx context.Context, snap *registry.Snapshot, def *qdef.Definition, accessCtx access.Context, p *plan.Plan, dialect plan.Dialect, resolved *ir.Result) ([]map[string]any, *errs.Error) {
	cache := e.caches[p.Cache.CacheID]
	if cache == nil {
		e.logger.ErrorContext(ctx, "no cache provider registered", "cacheId", p.Cache.CacheID)
		return nil, errs.NewExecutionError(errs.CodeCacheProviderMissing, "no cache provider registered",
			map[string]any{"cacheId": p.Cache.CacheID}, nil)
	}

	table := snap.Indexes.TablesByID[p.Cache.TableID]
	pkColumn := table.PrimaryKey[0]
	keys := exec.CacheKeys(p.Cache.KeyPattern, pkColumn, def.ByIDs)

	hits, err := cache.GetMany(ctx, keys)
	if err != nil {
		e.logger.ErrorContext(ctx, "cache lookup failed", "cacheId", p.Cache.CacheID, "error", err)
		return nil, errs.NewExecutionError(errs.CodeQueryFailed, "cache lookup failed",
			map[string]any{"cacheId": p.Cache.CacheID}, err)
	}

	hitRows, missingIDs := exec.PartitionHits(def.ByIDs, keys, hits)
	for _, row := range hitRows {
		exec.MaskRow(row, resolved.ColumnMappings)
	}

	if len(missingIDs) == 0 {
		e.logger.DebugContext(ctx, "cache fully served query", "cacheId", p.Cache.CacheID, "hits", len(hitRows))
		return hitRows, nil
	}
	e.logger.DebugContext(ctx, "cache partial hit, falling back to backend", "cacheId", p.Cache.CacheID,
		"hits", len(hitRows), "misses", len(missingIDs))

	fallbackDef := *def
	fallbackDef.ByIDs = missingIDs
	fallbackResolved, rerr := resolve.Resolve(snap, &fallbackDef, accessCtx)
	if rerr != nil {
		return nil, errs.NewExecutionError(errs.CodeQueryFailed, "failed to re-resolve cache fallback", nil, rerr)
	}
	sql, params, genErr := exec.Generate(dialect, fallbackResolved.Parts, fallbackResolved.Params)
	if genErr != nil {
		return nil, errs.NewExecutionError(errs.CodeQueryFailed, "failed to generate fallback sql", nil, genErr)
	}

	executor := e.executors[p.Cache.FallbackDatabase]
	if executor == nil {
		e.logger.ErrorContext(ctx, "no executor registered for fallback database", "database", p.Cache.FallbackDatabase)
		return nil, errs.NewExecutionError(errs.CodeExecutorMissing, "no executor registered for fallback database",
			map[string]any{"database": p.Cache.FallbackDatabase}, nil)
	}
	e.logger.DebugContext(ctx, "executing cache fallback query", "database", p.Cache.FallbackDatabase, "dialect", string(dialect), "sql", sql)
	rows, execErr := executor.Execute(ctx, sql, params)
	if execErr != nil {
		e.logger.ErrorContext(ctx, "cache fallback execution failed", "database", p.Cache.FallbackDatabase, "error", execErr)
		return nil, exec.ClassifyError(execErr, sql, params, p.Cache.FallbackDatabase, string(dialect))
	}

	dbRows := make([]map[string]any, len(rows))
	for i, row := range rows {
		remapped := exec.Remap(dialect, row, fallbackResolved.ColumnMappings)
		exec.MaskRow(remapped, fallbackResolved.ColumnMappings)
		dbRows[i] = remapped
	}

	return append(hitRows, dbRows...), nil
}
