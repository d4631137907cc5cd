// Package validate applies the engine's fourteen semantic rules to a query
// definition, aggregating every violation (except an unknown "from" table,
// which short-circuits everything downstream of it).
package validate

import (
	"github.com/orbitquery/queryengine/internal/access"
	"github.com/orbitquery/queryengine/internal/errs"
	"github.com/orbitquery/queryengine/internal/qdef"
	"github.com/orbitquery/queryengine/internal/registry"
)

// ctx carries everything a rule needs: the snapshot, the caller's access
// context, the definition under test, and the accumulator for violations.
type ctx struct {
	snap       *registry.Snapshot
	accessCtx  access.Context
	def        *qdef.Definition
	violations []*errs.Error

	// joined tracks every table reachable by logicalName once it has been
	// introduced (from, then each join in order), for rule 6's "already
	// joined" reachability search and rule 3's table-access checks.
	joined map[string]*registry.Table

	// access caches EffectiveAccess per tableID so repeated lookups (rules
	// 3, 4, 6, 12) don't recompute scope intersection.
	accessByTable map[string]access.EffectiveAccess
}

func (c *ctx) fail(code, msg string, details map[string]any) {
	c.violations = append(c.violations, errs.NewValidationRule(code, msg, details))
}

func (c *ctx) effectiveAccess(tableID string) access.EffectiveAccess {
	if eff, ok := c.accessByTable[tableID]; ok {
		return eff
	}
	eff := access.Resolve(c.snap, tableID, c.accessCtx)
	c.accessByTable[tableID] = eff
	return eff
}

// Validate runs all fourteen rules against def and returns nil on success or
// a single aggregated *errs.Error (Kind == KindValidation) otherwise.
func Validate(snap *registry.Snapshot, def *qdef.Definition, accessCtx access.Context) *errs.Error {
	c := &ctx{
		snap:          snap,
		accessCtx:     accessCtx,
		def:           def,
		joined:        map[string]*registry.Table{},
		accessByTable: map[string]access.EffectiveAccess{},
	}

	// Rule 1: from names a known table. Short-circuits: nothing downstream
	// can be checked without it.
	fromTable, ok := snap.Indexes.TablesByLogicalName[def.From]
	if !ok {
		c.fail(errs.CodeUnknownTable, "from table does not exist", map[string]any{"table": def.From})
		return errs.NewValidationError(def.From, c.violations)
	}
	c.joined[def.From] = fromTable

	// Rule 13: every role id in the context exists.
	c.checkRoles()

	// Rule 3/4: from table access + its explicit column list.
	c.checkTableAccess(fromTable, def.From)
	if def.HasColumns {
		c.checkColumns(fromTable, def.From, def.Columns)
	}

	// Rule 6: joins.
	c.checkJoins()

	// Rule 5 + 3/4 (qualifiers): top-level filters.
	if def.Filters != nil {
		c.checkFilterTree(def.Filters, def.From)
	}

	// Rule 10: byIds.
	c.checkByIDs(fromTable)

	// Rule 7: groupBy.
	c.checkGroupBy()

	// Rule 14: aggregations.
	c.checkAggregations()

	// Rule 8: having.
	if def.Having != nil {
		c.checkHaving(def.Having)
	}

	// Rule 9: orderBy.
	c.checkOrderBy()

	// Rule 11: limit/offset.
	c.checkLimitOffset()

	if len(c.violations) > 0 {
		return errs.NewValidationError(def.From, c.violations)
	}
	return nil
}

func (c *ctx) checkRoles() {
	for _, scope := range c.accessCtx.Scopes {
		for _, roleID := range scope.RoleIDs {
			if _, ok := c.snap.Roles[roleID]; !ok {
				c.fail(errs.CodeUnknownRole, "role does not exist", map[string]any{"roleId": roleID})
			}
		}
	}
}

// resolveTable looks up a table by logicalName, recording a rule-2-style
// unknown-table violation (reusing rule 1's code, since it is the same
// failure mode applied to joins/exists targets) if it doesn't exist.
func (c *ctx) resolveTable(logicalName string) (*registry.Table, bool) {
	t, ok := c.snap.Indexes.TablesByLogicalName[logicalName]
	if !ok {
		c.fail(errs.CodeUnknownTable, "referenced table does not exist", map[string]any{"table": logicalName})
	}
	return t, ok
}

func (c *ctx) checkTableAccess(t *registry.Table, logicalName string) {
	if t == nil {
		return
	}
	if !c.effectiveAccess(t.ID).Allowed {
		c.fail(errs.CodeAccessDenied, "table is not accessible", map[string]any{"table": logicalName})
	}
}

func (c *ctx) checkColumns(t *registry.Table, tableLogicalName string, cols []string) {
	if t == nil {
		return
	}
	eff := c.effectiveAccess(t.ID)
	for _, col := range cols {
		if _, ok := findColumn(t, col); !ok {
			c.fail(errs.CodeUnknownColumn, "column does not exist on table",
				map[string]any{"table": tableLogicalName, "column": col})
			continue
		}
		if !eff.AllowsColumn(col) {
			c.fail(errs.CodeAccessDenied, "column is not accessible",
				map[string]any{"table": tableLogicalName, "column": col})
		}
	}
}

func findColumn(t *registry.Table, logicalName string) (*registry.Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].LogicalName == logicalName {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// --- Rule 6: joins ---

func (c *ctx) checkJoins() {
	for _, j := range c.def.Joins {
		target, ok := c.resolveTable(j.Table)
		if !ok {
			continue
		}

		if !c.reachable(j.Table) {
			c.fail(errs.CodeInvalidJoin, "join table is not reachable via any declared relation",
				map[string]any{"table": j.Table})
		}

		c.checkTableAccess(target, j.Table)
		if j.HasCols {
			c.checkColumns(target, j.Table, j.Columns)
		}

		c.joined[j.Table] = target

		if j.Filters != nil {
			c.checkFilterTree(j.Filters, j.Table)
		}
	}
}

// reachable reports whether target is linked, directly or transitively, to
// any already-joined table via a declared Relation in either direction.
func (c *ctx) reachable(targetLogical string) bool {
	target, ok := c.snap.Indexes.TablesByLogicalName[targetLogical]
	if !ok {
		return false
	}
	for _, t := range c.joined {
		if relatedEitherDirection(c.snap, t, target) {
			return true
		}
	}
	return false
}

func relatedEitherDirection(snap *registry.Snapshot, a, b *registry.Table) bool {
	for _, rel := range a.Relations {
		if rel.ReferencesTable == b.ID {
			return true
		}
	}
	for _, rel := range b.Relations {
		if rel.ReferencesTable == a.ID {
			return true
		}
	}
	return false
}

// --- Rule 5: filter tree ---

func (c *ctx) checkFilterTree(node qdef.FilterNode, defaultTable string) {
	switch n := node.(type) {
	case qdef.Group:
		if n.Logic != "and" && n.Logic != "or" {
			c.fail(errs.CodeInvalidFilter, "group logic must be and/or", map[string]any{"logic": n.Logic})
		}
		for _, child := range n.Nodes {
			c.checkFilterTree(child, defaultTable)
		}
	case qdef.ValueCompare:
		c.checkValueCompare(n, defaultTable)
	case qdef.ColumnCompare:
		c.checkColumnCompare(n, defaultTable)
	case qdef.ExistsFilter:
		c.checkExists(n.Table, n.Negate, n.Where, nil, 0, defaultTable)
	case qdef.CountedExistsFilter:
		c.checkExists(n.Table, n.Negate, n.Where, &n.CountOp, n.CountVal, defaultTable)
	default:
		c.fail(errs.CodeInvalidFilter, "unrecognized filter node", nil)
	}
}

func (c *ctx) qualifiedTable(qualifier, defaultTable string) (*registry.Table, string, bool) {
	name := qualifier
	if name == "" {
		name = defaultTable
	}
	t, ok := c.snap.Indexes.TablesByLogicalName[name]
	if !ok {
		c.fail(errs.CodeUnknownTable, "filter table qualifier does not exist", map[string]any{"table": name})
		return nil, name, false
	}
	if _, isJoined := c.joined[name]; !isJoined {
		c.fail(errs.CodeInvalidFilter, "filter table qualifier is not from/joined", map[string]any{"table": name})
		return nil, name, false
	}
	return t, name, true
}

var orderableOps = map[qdef.Operator]bool{
	qdef.OpLt: true, qdef.OpLte: true, qdef.OpGt: true, qdef.OpGte: true,
	qdef.OpBetween: true, qdef.OpNotBetween: true,
}
var textualOps = map[qdef.Operator]bool{
	qdef.OpStartsWith: true, qdef.OpEndsWith: true, qdef.OpContains: true, qdef.OpLevenshteinLte: true,
}
var arrayOps = map[qdef.Operator]bool{
	qdef.OpArrayContains: true, qdef.OpArrayContainsAll: true, qdef.OpArrayContainsAny: true,
}
var nullableOnlyOps = map[qdef.Operator]bool{
	qdef.OpIsNull: true, qdef.OpIsNotNull: true,
}

func (c *ctx) checkValueCompare(n qdef.ValueCompare, defaultTable string) {
	t, tableName, ok := c.qualifiedTable(n.Table, defaultTable)
	if !ok {
		return
	}
	col, ok := findColumn(t, n.Column)
	if !ok {
		c.fail(errs.CodeUnknownColumn, "column does not exist on table",
			map[string]any{"table": tableName, "column": n.Column})
		return
	}
	if !c.effectiveAccess(t.ID).AllowsColumn(n.Column) {
		c.fail(errs.CodeAccessDenied, "column is not accessible",
			map[string]any{"table": tableName, "column": n.Column})
		return
	}

	details := map[string]any{"table": tableName, "column": n.Column, "operator": n.Operator}

	switch {
	case orderableOps[n.Operator]:
		if !col.Type.IsOrderable() {
			c.fail(errs.CodeInvalidFilter, "operator requires an orderable column type", details)
			return
		}
	case textualOps[n.Operator]:
		if col.Type != registry.TypeString {
			c.fail(errs.CodeInvalidFilter, "operator requires a textual column", details)
			return
		}
	case arrayOps[n.Operator]:
		if !col.Type.IsArray() {
			c.fail(errs.CodeInvalidFilter, "array operator requires an array column", details)
			return
		}
	case nullableOnlyOps[n.Operator]:
		if !col.Nullable {
			c.fail(errs.CodeInvalidFilter, "isNull/isNotNull requires a nullable column", details)
			return
		}
		return // no value shape to check
	case n.Operator == qdef.OpIn || n.Operator == qdef.OpNotIn:
		// handled below
	case n.Operator == qdef.OpEq || n.Operator == qdef.OpNeq:
		// any type, value must match
	default:
		c.fail(errs.CodeInvalidFilter, "unknown operator", details)
		return
	}

	c.checkValueShape(n.Operator, n.Value, col, tableName, n.Column)
}

func (c *ctx) checkValueShape(op qdef.Operator, value any, col *registry.Column, tableName, colName string) {
	details := map[string]any{"table": tableName, "column": colName, "operator": op}
	switch op {
	case qdef.OpBetween, qdef.OpNotBetween:
		b, ok := value.(qdef.Between)
		if !ok || b.From == nil || b.To == nil {
			c.fail(errs.CodeInvalidValue, "between requires non-null from/to", details)
			return
		}
		if !valueMatchesType(b.From, col.Type) || !valueMatchesType(b.To, col.Type) {
			c.fail(errs.CodeInvalidValue, "between from/to type mismatch", details)
		}
	case qdef.OpIn, qdef.OpNotIn:
		arr, ok := value.([]any)
		if !ok || len(arr) == 0 {
			c.fail(errs.CodeInvalidValue, "in/notIn requires a non-empty array", details)
			return
		}
		for _, v := range arr {
			if v == nil || !valueMatchesType(v, col.Type) {
				c.fail(errs.CodeInvalidValue, "in/notIn array has a null or mistyped element", details)
				return
			}
		}
	case qdef.OpLevenshteinLte:
		lv, ok := value.(qdef.LevenshteinArg)
		if !ok || lv.Text == "" || lv.MaxDistance < 0 {
			c.fail(errs.CodeInvalidValue, "levenshteinLte requires non-empty text and non-negative maxDistance", details)
		}
	case qdef.OpArrayContains:
		if value == nil || !valueMatchesType(value, col.Type.ElementType()) {
			c.fail(errs.CodeInvalidValue, "arrayContains value must match the array's element type", details)
		}
	case qdef.OpArrayContainsAll, qdef.OpArrayContainsAny:
		arr, ok := value.([]any)
		if !ok || len(arr) == 0 {
			c.fail(errs.CodeInvalidValue, "arrayContainsAll/Any requires a non-empty array", details)
			return
		}
		for _, v := range arr {
			if v == nil || !valueMatchesType(v, col.Type.ElementType()) {
				c.fail(errs.CodeInvalidValue, "array element type mismatch", details)
				return
			}
		}
	default:
		if value == nil || !valueMatchesType(value, col.Type) {
			c.fail(errs.CodeInvalidValue, "value does not match column type", details)
		}
	}
}

// valueMatchesType is a permissive runtime shape check: Go's dynamic typing
// means the exact numeric/string Go type a value arrives as (float64 from
// JSON, int, etc.) should not itself be the source of truth — only whether
// it is broadly compatible with the declared column type.
func valueMatchesType(v any, t registry.ColumnType) bool {
	switch t {
	case registry.TypeString, registry.TypeUUID, registry.TypeDate, registry.TypeTimestamp:
		_, ok := v.(string)
		return ok
	case registry.TypeInt:
		switch v.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case registry.TypeDecimal:
		switch v.(type) {
		case int, int32, int64, float64, string:
			return true
		}
		return false
	case registry.TypeBoolean:
		_, ok := v.(bool)
		return ok
	default:
		return true
	}
}

func (c *ctx) checkColumnCompare(n qdef.ColumnCompare, defaultTable string) {
	t, tableName, ok := c.qualifiedTable(n.Table, defaultTable)
	if !ok {
		return
	}
	ot, otherName, ok2 := c.qualifiedTable(n.OtherTable, defaultTable)
	if !ok2 {
		return
	}
	col, ok := findColumn(t, n.Column)
	if !ok {
		c.fail(errs.CodeUnknownColumn, "column does not exist", map[string]any{"table": tableName, "column": n.Column})
		return
	}
	otherCol, ok := findColumn(ot, n.OtherColumn)
	if !ok {
		c.fail(errs.CodeUnknownColumn, "column does not exist", map[string]any{"table": otherName, "column": n.OtherColumn})
		return
	}
	if !c.effectiveAccess(t.ID).AllowsColumn(n.Column) || !c.effectiveAccess(ot.ID).AllowsColumn(n.OtherColumn) {
		c.fail(errs.CodeAccessDenied, "column is not accessible", map[string]any{"table": tableName, "column": n.Column})
		return
	}
	if col.Type.IsArray() || otherCol.Type.IsArray() {
		c.fail(errs.CodeInvalidFilter, "array columns are forbidden in column-vs-column comparisons", nil)
		return
	}
	if !compatibleTypes(col.Type, otherCol.Type) {
		c.fail(errs.CodeInvalidFilter, "column-vs-column type mismatch",
			map[string]any{"leftType": col.Type, "rightType": otherCol.Type})
	}
}

func compatibleTypes(a, b registry.ColumnType) bool {
	if a == b {
		return true
	}
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	if a.IsTemporal() && b.IsTemporal() {
		return true
	}
	return false
}

// --- Rule 12: exists / counted-exists ---

func (c *ctx) checkExists(targetLogical string, negate bool, where qdef.FilterNode, countOp *qdef.Operator, countVal int, parentTable string) {
	target, ok := c.resolveTable(targetLogical)
	if !ok {
		return
	}

	parent, ok := c.snap.Indexes.TablesByLogicalName[parentTable]
	if !ok {
		return
	}
	if !relatedEitherDirection(c.snap, parent, target) && !c.reachable(targetLogical) {
		c.fail(errs.CodeInvalidExists, "exists target has no relation to its parent",
			map[string]any{"target": targetLogical, "parent": parentTable})
	}

	if countOp != nil {
		switch *countOp {
		case qdef.OpEq, qdef.OpNeq, qdef.OpLt, qdef.OpLte, qdef.OpGt, qdef.OpGte:
		default:
			c.fail(errs.CodeInvalidExists, "invalid counted-exists operator", map[string]any{"operator": *countOp})
		}
		if countVal < 0 {
			c.fail(errs.CodeInvalidExists, "counted-exists value must be non-negative", map[string]any{"value": countVal})
		}
	}

	if where != nil {
		prevJoined := c.joined
		c.joined = map[string]*registry.Table{}
		for k, v := range prevJoined {
			c.joined[k] = v
		}
		c.joined[targetLogical] = target
		c.checkFilterTree(where, targetLogical)
		c.joined = prevJoined
	}
}

// --- Rule 10: byIds ---

func (c *ctx) checkByIDs(from *registry.Table) {
	if len(c.def.ByIDs) == 0 {
		return
	}
	if len(from.PrimaryKey) != 1 {
		c.fail(errs.CodeInvalidByIDs, "byIds requires a single-column primary key",
			map[string]any{"table": c.def.From, "primaryKeyColumns": len(from.PrimaryKey)})
	}
	if len(c.def.GroupBy) > 0 || len(c.def.Aggregations) > 0 {
		c.fail(errs.CodeInvalidByIDs, "byIds cannot combine with groupBy or aggregations", nil)
	}
}

// --- Rule 7: groupBy ---

func (c *ctx) checkGroupBy() {
	if len(c.def.GroupBy) == 0 {
		return
	}
	from := c.snap.Indexes.TablesByLogicalName[c.def.From]
	groupSet := map[string]bool{}
	for _, g := range c.def.GroupBy {
		groupSet[g] = true
		col, ok := findColumn(from, g)
		if !ok {
			c.fail(errs.CodeInvalidGroupBy, "groupBy column does not exist", map[string]any{"column": g})
			continue
		}
		if col.Type.IsArray() {
			c.fail(errs.CodeInvalidGroupBy, "groupBy column cannot be array-typed", map[string]any{"column": g})
		}
	}
	aggAliases := map[string]bool{}
	for _, a := range c.def.Aggregations {
		aggAliases[a.Alias] = true
	}
	selected := c.def.Columns
	if !c.def.HasColumns {
		return // implicit full projection; nothing to check against groupBy
	}
	for _, col := range selected {
		if !groupSet[col] && !aggAliases[col] {
			c.fail(errs.CodeInvalidGroupBy, "selected column must appear in groupBy or be an aggregation alias",
				map[string]any{"column": col})
		}
	}
}

// --- Rule 14: aggregations ---

var validAggFuncs = map[string]bool{"count": true, "sum": true, "avg": true, "min": true, "max": true}

func (c *ctx) checkAggregations() {
	if len(c.def.Aggregations) == 0 {
		if c.def.HasColumns && len(c.def.Columns) == 0 {
			c.fail(errs.CodeInvalidAggregate, "empty columns without aggregations is invalid", nil)
		}
		return
	}
	aliasSeen := map[string]bool{}
	baseColumns := map[string]bool{}
	if c.def.HasColumns {
		for _, col := range c.def.Columns {
			baseColumns[col] = true
		}
	}

	for _, agg := range c.def.Aggregations {
		if !validAggFuncs[agg.Function] {
			c.fail(errs.CodeInvalidAggregate, "unknown aggregation function", map[string]any{"function": agg.Function})
			continue
		}
		if aliasSeen[agg.Alias] {
			c.fail(errs.CodeInvalidAggregate, "duplicate aggregation alias", map[string]any{"alias": agg.Alias})
		}
		aliasSeen[agg.Alias] = true
		if baseColumns[agg.Alias] {
			c.fail(errs.CodeInvalidAggregate, "aggregation alias collides with a selected base column",
				map[string]any{"alias": agg.Alias})
		}

		table := agg.Table
		if table == "" {
			table = c.def.From
		}
		t, ok := c.joined[table]
		if !ok {
			c.fail(errs.CodeInvalidAggregate, "aggregation table must be the from table or a joined table",
				map[string]any{"table": table})
			continue
		}
		if agg.Function == "count" && agg.Column == "" {
			continue // count(*)
		}
		col, ok := findColumn(t, agg.Column)
		if !ok {
			c.fail(errs.CodeUnknownColumn, "aggregation column does not exist",
				map[string]any{"table": table, "column": agg.Column})
			continue
		}
		if col.Type.IsArray() && agg.Function != "count" {
			c.fail(errs.CodeInvalidAggregate, "only count is allowed on array columns",
				map[string]any{"table": table, "column": agg.Column, "function": agg.Function})
		}
	}
}

// --- Rule 8: having ---

var havingAllowedOps = map[qdef.Operator]bool{
	qdef.OpEq: true, qdef.OpNeq: true, qdef.OpLt: true, qdef.OpGt: true, qdef.OpLte: true, qdef.OpGte: true,
	qdef.OpIn: true, qdef.OpNotIn: true, qdef.OpBetween: true, qdef.OpNotBetween: true,
	qdef.OpIsNull: true, qdef.OpIsNotNull: true,
}

func (c *ctx) checkHaving(node qdef.FilterNode) {
	aggAliases := map[string]*qdef.Aggregation{}
	for i := range c.def.Aggregations {
		aggAliases[c.def.Aggregations[i].Alias] = &c.def.Aggregations[i]
	}
	c.checkHavingNode(node, aggAliases)
}

func (c *ctx) checkHavingNode(node qdef.FilterNode, aggAliases map[string]*qdef.Aggregation) {
	switch n := node.(type) {
	case qdef.Group:
		for _, child := range n.Nodes {
			c.checkHavingNode(child, aggAliases)
		}
	case qdef.ValueCompare:
		if n.Table != "" {
			c.fail(errs.CodeInvalidHaving, "having cannot qualify a table", map[string]any{"table": n.Table})
		}
		if _, ok := aggAliases[n.Column]; !ok {
			c.fail(errs.CodeInvalidHaving, "having may only reference aggregation aliases",
				map[string]any{"column": n.Column})
			return
		}
		if !havingAllowedOps[n.Operator] {
			c.fail(errs.CodeInvalidHaving, "operator not permitted in having", map[string]any{"operator": n.Operator})
		}
	case qdef.ColumnCompare, qdef.ExistsFilter, qdef.CountedExistsFilter:
		c.fail(errs.CodeInvalidHaving, "having forbids column-compare and exists forms", nil)
	default:
		c.fail(errs.CodeInvalidHaving, "unrecognized having node", nil)
	}
}

// --- Rule 9: orderBy ---

func (c *ctx) checkOrderBy() {
	aggAliases := map[string]bool{}
	for _, a := range c.def.Aggregations {
		aggAliases[a.Alias] = true
	}
	for _, ob := range c.def.OrderBy {
		if ob.Direction != "asc" && ob.Direction != "desc" {
			c.fail(errs.CodeInvalidOrderBy, "direction must be asc or desc", map[string]any{"direction": ob.Direction})
		}
		if aggAliases[ob.Column] && ob.Table == "" {
			continue
		}
		table := ob.Table
		if table == "" {
			table = c.def.From
		}
		t, ok := c.joined[table]
		if !ok {
			c.fail(errs.CodeInvalidOrderBy, "orderBy table is not from/joined", map[string]any{"table": table})
			continue
		}
		col, ok := findColumn(t, ob.Column)
		if !ok {
			c.fail(errs.CodeInvalidOrderBy, "orderBy column does not exist",
				map[string]any{"table": table, "column": ob.Column})
			continue
		}
		if col.Type.IsArray() {
			c.fail(errs.CodeInvalidOrderBy, "orderBy column cannot be array-typed",
				map[string]any{"table": table, "column": ob.Column})
		}
	}
}

// --- Rule 11: limit/offset ---

func (c *ctx) checkLimitOffset() {
	if c.def.Limit != nil && *c.def.Limit < 0 {
		c.fail(errs.CodeInvalidLimit, "limit must be non-negative", map[string]any{"limit": *c.def.Limit})
	}
	if c.def.Offset != nil {
		if *c.def.Offset < 0 {
			c.fail(errs.CodeInvalidLimit, "offset must be non-negative", map[string]any{"offset": *c.def.Offset})
		}
		if c.def.Limit == nil {
			c.fail(errs.CodeInvalidLimit, "offset requires limit", nil)
		}
	}
}
