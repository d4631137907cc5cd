package registry

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/orbitquery/queryengine/internal/errs"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)

// reservedWords is a representative set of SQL reserved words a logicalName
// may not collide with; dialect generators would otherwise need to quote
// around them inconsistently.
var reservedWords = map[string]bool{
	"select": true, "from": true, "where": true, "join": true, "table": true,
	"insert": true, "update": true, "delete": true, "group": true, "order": true,
	"having": true, "limit": true, "offset": true, "union": true, "and": true,
	"or": true, "not": true, "null": true, "as": true, "by": true, "on": true,
	"in": true, "is": true, "distinct": true, "case": true, "when": true,
	"then": true, "else": true, "end": true, "exists": true, "between": true,
}

func validIdentifier(name string) bool {
	if len(name) < 1 || len(name) > 64 {
		return false
	}
	if !identifierPattern.MatchString(name) {
		return false
	}
	return !reservedWords[strings.ToLower(name)]
}

// Indexes are the lookup structures derived at build time from a validated
// MetadataConfig.
type Indexes struct {
	TablesByLogicalName       map[string]*Table
	TablesByID                map[string]*Table
	ColumnsByTableAndLogical  map[string]map[string]*Column // tableID -> logicalColumnName -> Column
	DatabasesByID             map[string]*Database
	SyncsByTableID            map[string][]ExternalSync
	CachesByTableID           map[string][]cacheBinding
	ConnectivityGraph         map[string]map[string]bool // sourceDB -> targetDB -> true
}

type cacheBinding struct {
	CacheID string
	Entry   CacheEntry
}

// Snapshot is the immutable, atomically-swapped view of metadata + roles the
// rest of the engine reads. A query captures one at the start and uses it
// throughout (snapshot isolation, spec.md §5).
type Snapshot struct {
	Config            MetadataConfig
	Indexes           Indexes
	Roles             map[string]*Role
	SyncsByTableID     map[string][]ExternalSync
	CachesByTableID     map[string][]cacheBinding
	ConnectivityGraph   map[string]map[string]bool
}

// MetadataProvider loads the raw metadata document, e.g. from a file, an API,
// or a database. Implementations may be slow/async; Load is a suspension
// point.
type MetadataProvider interface {
	Load(ctx context.Context) (MetadataConfig, error)
}

// RoleProvider loads the raw role catalog.
type RoleProvider interface {
	Load(ctx context.Context) ([]Role, error)
}

// Registry owns the current Snapshot and knows how to rebuild it.
type Registry struct {
	metaProvider MetadataProvider
	roleProvider RoleProvider
	current      atomic.Pointer[Snapshot]
}

// New builds a Registry and performs the initial load of both metadata and
// roles. Failure here is fatal (there is no prior snapshot to fall back to).
func New(ctx context.Context, metaProvider MetadataProvider, roleProvider RoleProvider) (*Registry, error) {
	r := &Registry{metaProvider: metaProvider, roleProvider: roleProvider}

	cfg, err := metaProvider.Load(ctx)
	if err != nil {
		return nil, errs.NewProviderError("metadata", errs.CodeMetadataLoadFailed, "initial metadata load failed", err)
	}
	roles, err := roleProvider.Load(ctx)
	if err != nil {
		return nil, errs.NewProviderError("role", errs.CodeRoleLoadFailed, "initial role load failed", err)
	}

	snap, verr := build(cfg, roles)
	if verr != nil {
		return nil, verr
	}
	r.current.Store(snap)
	return r, nil
}

// GetSnapshot returns the current immutable snapshot. Safe for concurrent
// use; never blocks.
func (r *Registry) GetSnapshot() *Snapshot {
	return r.current.Load()
}

// ReloadMetadata loads, validates, and atomically swaps in a new snapshot
// built from fresh metadata (keeping the current roles). On failure the old
// snapshot is preserved.
func (r *Registry) ReloadMetadata(ctx context.Context) error {
	cfg, err := r.metaProvider.Load(ctx)
	if err != nil {
		return errs.NewProviderError("metadata", errs.CodeMetadataLoadFailed, "metadata reload failed", err)
	}
	prev := r.current.Load()
	roles := rolesSlice(prev.Roles)
	snap, verr := build(cfg, roles)
	if verr != nil {
		return verr
	}
	r.current.Store(snap)
	return nil
}

// ReloadRoles loads, validates, and atomically swaps in a new snapshot built
// from fresh roles (keeping the current metadata).
func (r *Registry) ReloadRoles(ctx context.Context) error {
	roles, err := r.roleProvider.Load(ctx)
	if err != nil {
		return errs.NewProviderError("role", errs.CodeRoleLoadFailed, "role reload failed", err)
	}
	prev := r.current.Load()
	snap, verr := build(prev.Config, roles)
	if verr != nil {
		return verr
	}
	r.current.Store(snap)
	return nil
}

func rolesSlice(m map[string]*Role) []Role {
	out := make([]Role, 0, len(m))
	for _, r := range m {
		out = append(out, *r)
	}
	return out
}

// build validates invariants 1-6 from spec.md §3 and derives all indexes,
// returning a fully-formed Snapshot or an aggregated *errs.Error.
func build(cfg MetadataConfig, roles []Role) (*Snapshot, *errs.Error) {
	var violations []*errs.Error

	dbByID := make(map[string]*Database, len(cfg.Databases))
	for i := range cfg.Databases {
		dbByID[cfg.Databases[i].ID] = &cfg.Databases[i]
	}

	tablesByLogical := make(map[string]*Table, len(cfg.Tables))
	tablesByID := make(map[string]*Table, len(cfg.Tables))
	colsByTable := make(map[string]map[string]*Column, len(cfg.Tables))

	for i := range cfg.Tables {
		t := &cfg.Tables[i]

		if !validIdentifier(t.LogicalName) {
			violations = append(violations, errs.NewConfigError(errs.CodeInvalidAPIName,
				"table logicalName is not a valid identifier", map[string]any{"table": t.ID, "logicalName": t.LogicalName}))
		} else if _, dup := tablesByLogical[t.LogicalName]; dup {
			violations = append(violations, errs.NewConfigError(errs.CodeDuplicateAPIName,
				"duplicate table logicalName", map[string]any{"logicalName": t.LogicalName}))
		} else {
			tablesByLogical[t.LogicalName] = t
		}
		tablesByID[t.ID] = t

		if _, ok := dbByID[t.DatabaseID]; !ok {
			violations = append(violations, errs.NewConfigError(errs.CodeInvalidReference,
				"table references unknown database", map[string]any{"table": t.ID, "databaseId": t.DatabaseID}))
		}

		colByLogical := make(map[string]*Column, len(t.Columns))
		for j := range t.Columns {
			c := &t.Columns[j]
			if !validIdentifier(c.LogicalName) {
				violations = append(violations, errs.NewConfigError(errs.CodeInvalidAPIName,
					"column logicalName is not a valid identifier", map[string]any{"table": t.ID, "column": c.LogicalName}))
				continue
			}
			if _, dup := colByLogical[c.LogicalName]; dup {
				violations = append(violations, errs.NewConfigError(errs.CodeDuplicateAPIName,
					"duplicate column logicalName within table", map[string]any{"table": t.ID, "column": c.LogicalName}))
				continue
			}
			colByLogical[c.LogicalName] = c
		}
		colsByTable[t.ID] = colByLogical
	}

	// invariant 4: relations resolve.
	for i := range cfg.Tables {
		t := &cfg.Tables[i]
		for _, rel := range t.Relations {
			if _, ok := colsByTable[t.ID][rel.FromColumn]; !ok {
				violations = append(violations, errs.NewConfigError(errs.CodeInvalidRelation,
					"relation fromColumn does not exist on declaring table",
					map[string]any{"table": t.ID, "fromColumn": rel.FromColumn}))
			}
			target, ok := tablesByID[rel.ReferencesTable]
			if !ok {
				violations = append(violations, errs.NewConfigError(errs.CodeInvalidRelation,
					"relation referencesTable does not resolve",
					map[string]any{"table": t.ID, "referencesTable": rel.ReferencesTable}))
				continue
			}
			if _, ok := colsByTable[target.ID][rel.ReferencesCol]; !ok {
				violations = append(violations, errs.NewConfigError(errs.CodeInvalidRelation,
					"relation referencesColumn does not exist on target table",
					map[string]any{"table": t.ID, "referencesColumn": rel.ReferencesCol}))
			}
		}
	}

	// invariant 5: external syncs resolve.
	syncsByTable := make(map[string][]ExternalSync)
	for _, sy := range cfg.Syncs {
		if _, ok := tablesByID[sy.SourceTableID]; !ok {
			violations = append(violations, errs.NewConfigError(errs.CodeInvalidSync,
				"externalSync sourceTableId does not resolve", map[string]any{"sourceTableId": sy.SourceTableID}))
			continue
		}
		if _, ok := dbByID[sy.TargetDatabaseID]; !ok {
			violations = append(violations, errs.NewConfigError(errs.CodeInvalidSync,
				"externalSync targetDatabaseId does not resolve", map[string]any{"targetDatabaseId": sy.TargetDatabaseID}))
			continue
		}
		syncsByTable[sy.SourceTableID] = append(syncsByTable[sy.SourceTableID], sy)
	}

	// invariant 6: cache entries resolve.
	cachesByTable := make(map[string][]cacheBinding)
	for _, c := range cfg.Caches {
		for _, e := range c.Entries {
			tbl, ok := tablesByID[e.TableID]
			if !ok {
				violations = append(violations, errs.NewConfigError(errs.CodeInvalidCache,
					"cache entry references unknown table", map[string]any{"tableId": e.TableID}))
				continue
			}
			if err := validateKeyPattern(e.KeyPattern, tbl); err != nil {
				violations = append(violations, err)
				continue
			}
			for _, col := range e.Columns {
				if _, ok := colsByTable[tbl.ID][col]; !ok {
					violations = append(violations, errs.NewConfigError(errs.CodeInvalidCache,
						"cache entry lists unknown column", map[string]any{"tableId": e.TableID, "column": col}))
				}
			}
			cachesByTable[e.TableID] = append(cachesByTable[e.TableID], cacheBinding{CacheID: c.ID, Entry: e})
		}
	}

	if len(violations) > 0 {
		return nil, errs.NewConfigErrors(violations)
	}

	// roles: validate ids are unique (duplicates last-wins is not allowed;
	// first occurrence wins and later ones are a config error).
	roleByID := make(map[string]*Role, len(roles))
	var roleViolations []*errs.Error
	for i := range roles {
		ro := roles[i]
		if _, dup := roleByID[ro.ID]; dup {
			roleViolations = append(roleViolations, errs.NewConfigError(errs.CodeDuplicateAPIName,
				"duplicate role id", map[string]any{"roleId": ro.ID}))
			continue
		}
		roleByID[ro.ID] = &ro
	}
	if len(roleViolations) > 0 {
		return nil, errs.NewConfigErrors(roleViolations)
	}

	graph := make(map[string]map[string]bool)
	for _, sy := range cfg.Syncs {
		srcTable := tablesByID[sy.SourceTableID]
		if srcTable == nil {
			continue
		}
		if graph[srcTable.DatabaseID] == nil {
			graph[srcTable.DatabaseID] = make(map[string]bool)
		}
		graph[srcTable.DatabaseID][sy.TargetDatabaseID] = true
	}

	idx := Indexes{
		TablesByLogicalName:      tablesByLogical,
		TablesByID:               tablesByID,
		ColumnsByTableAndLogical: colsByTable,
		DatabasesByID:            dbByID,
		SyncsByTableID:           syncsByTable,
		CachesByTableID:          cachesByTable,
		ConnectivityGraph:        graph,
	}

	return &Snapshot{
		Config:            cfg,
		Indexes:           idx,
		Roles:             roleByID,
		SyncsByTableID:    syncsByTable,
		CachesByTableID:   cachesByTable,
		ConnectivityGraph: graph,
	}, nil
}

var keyPatternPlaceholder = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

func validateKeyPattern(pattern string, t *Table) *errs.Error {
	pkSet := make(map[string]bool, len(t.PrimaryKey))
	for _, pk := range t.PrimaryKey {
		pkSet[pk] = true
	}
	for _, m := range keyPatternPlaceholder.FindAllStringSubmatch(pattern, -1) {
		if !pkSet[m[1]] {
			return errs.NewConfigError(errs.CodeInvalidCache,
				"cache keyPattern placeholder does not name a primary key column",
				map[string]any{"tableId": t.ID, "placeholder": m[1]})
		}
	}
	return nil
}
