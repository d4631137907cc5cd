// Package access computes, for a table and a caller's role scopes, which
// columns that caller may read and which of them must be masked.
package access

import "github.com/orbitquery/queryengine/internal/registry"

// Scope is one named group of roles (e.g. "user", "service"). Within a
// scope, roles are unioned; across scopes, the result is intersected.
type Scope struct {
	Name    string
	RoleIDs []string
}

// Context is the caller-supplied access context for one query.
type Context struct {
	Scopes []Scope
}

// EffectiveAccess is the resolved per-table access for one context.
type EffectiveAccess struct {
	Allowed           bool
	AllColumns        bool // true iff AllowedColumns is the '*' identity
	AllowedColumns    map[string]bool
	MaskedColumns     map[string]bool
	MaskingFnByColumn map[string]registry.MaskingFn
}

// AllowsColumn reports whether the table is allowed and logicalName is in
// the allowed set (or every column is allowed).
func (e EffectiveAccess) AllowsColumn(logicalName string) bool {
	if !e.Allowed {
		return false
	}
	if e.AllColumns {
		return true
	}
	return e.AllowedColumns[logicalName]
}

// Resolve computes EffectiveAccess for tableID under ctx, given the
// snapshot's role catalog and table definition.
func Resolve(snap *registry.Snapshot, tableID string, ctx Context) EffectiveAccess {
	table := snap.Indexes.TablesByID[tableID]

	if len(ctx.Scopes) == 0 {
		return unrestricted(table)
	}

	var intersected *scopeResult
	for _, scope := range ctx.Scopes {
		sr := resolveScope(snap, tableID, scope)
		if intersected == nil {
			intersected = &sr
			continue
		}
		combined := intersectScopes(*intersected, sr)
		intersected = &combined
	}

	return toEffective(table, *intersected)
}

// scopeResult is the union, within one scope, of every role's grant for a
// table.
type scopeResult struct {
	allowed        bool
	allColumns     bool
	allowedColumns map[string]bool
	maskedColumns  map[string]bool
}

func resolveScope(snap *registry.Snapshot, tableID string, scope Scope) scopeResult {
	if len(scope.RoleIDs) == 0 {
		// A scope present but empty denies access outright.
		return scopeResult{allowed: false, allowedColumns: map[string]bool{}, maskedColumns: map[string]bool{}}
	}

	result := scopeResult{allowedColumns: map[string]bool{}, maskedColumns: map[string]bool{}}
	for _, roleID := range scope.RoleIDs {
		role, ok := snap.Roles[roleID]
		if !ok {
			continue
		}
		if role.AllTables {
			result.allowed = true
			result.allColumns = true
			continue
		}
		for _, grant := range role.Tables {
			if grant.TableID != tableID {
				continue
			}
			result.allowed = true
			if grant.AllColumns {
				result.allColumns = true
			} else {
				for _, c := range grant.AllowedColumns {
					result.allowedColumns[c] = true
				}
			}
			for _, c := range grant.MaskedColumns {
				result.maskedColumns[c] = true
			}
		}
	}
	return result
}

// intersectScopes applies the "across scopes, intersect" rule, with '*' as
// the intersection identity.
func intersectScopes(a, b scopeResult) scopeResult {
	out := scopeResult{
		allowed:        a.allowed && b.allowed,
		maskedColumns:  unionSets(a.maskedColumns, b.maskedColumns),
		allowedColumns: map[string]bool{},
	}
	if !out.allowed {
		return out
	}

	switch {
	case a.allColumns && b.allColumns:
		out.allColumns = true
	case a.allColumns:
		out.allowedColumns = b.allowedColumns
	case b.allColumns:
		out.allowedColumns = a.allowedColumns
	default:
		for c := range a.allowedColumns {
			if b.allowedColumns[c] {
				out.allowedColumns[c] = true
			}
		}
	}
	return out
}

func unionSets(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for c := range a {
		out[c] = true
	}
	for c := range b {
		out[c] = true
	}
	return out
}

func toEffective(table *registry.Table, r scopeResult) EffectiveAccess {
	eff := EffectiveAccess{
		Allowed:           r.allowed,
		AllColumns:        r.allColumns,
		AllowedColumns:    r.allowedColumns,
		MaskedColumns:     r.maskedColumns,
		MaskingFnByColumn: map[string]registry.MaskingFn{},
	}
	applyMasking(table, &eff)
	return eff
}

// unrestricted returns access with no scope at all present: every column
// allowed, default column-level masking still applies.
func unrestricted(table *registry.Table) EffectiveAccess {
	eff := EffectiveAccess{
		Allowed:           true,
		AllColumns:        true,
		AllowedColumns:    map[string]bool{},
		MaskedColumns:     map[string]bool{},
		MaskingFnByColumn: map[string]registry.MaskingFn{},
	}
	applyMasking(table, &eff)
	return eff
}

// applyMasking fills MaskingFnByColumn: a column is masked if a role listed
// it in maskedColumns (role-declared wins), or else if its metadata declares
// a default maskingFn.
func applyMasking(table *registry.Table, eff *EffectiveAccess) {
	if table == nil {
		return
	}
	for _, col := range table.Columns {
		if eff.MaskedColumns[col.LogicalName] {
			fn := col.MaskingFn
			if fn == "" {
				fn = registry.MaskFull
			}
			eff.MaskingFnByColumn[col.LogicalName] = fn
			continue
		}
		if col.MaskingFn != "" {
			eff.MaskingFnByColumn[col.LogicalName] = col.MaskingFn
			eff.MaskedColumns[col.LogicalName] = true
		}
	}
}
