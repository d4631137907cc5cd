// Package resolve translates a validated query definition into the
// dialect-agnostic IR: SqlParts, a positional parameter list, and a
// column-mapping list.
package resolve

import (
	"fmt"

	"github.com/orbitquery/queryengine/internal/access"
	"github.com/orbitquery/queryengine/internal/ir"
	"github.com/orbitquery/queryengine/internal/qdef"
	"github.com/orbitquery/queryengine/internal/registry"
)

type tableBinding struct {
	logicalName string
	alias       string
	table       *registry.Table
	access      access.EffectiveAccess
}

// resolver carries all mutable state threaded through one Resolve call.
type resolver struct {
	snap      *registry.Snapshot
	accessCtx access.Context

	mainCounter int
	subCounter  int

	// bindings maps a currently-in-scope logicalName (main table or an
	// active exists-subquery target) to its binding. Exists resolution
	// pushes a temporary entry and pops it afterward.
	bindings map[string]*tableBinding

	params []any
}

func (r *resolver) addParam(v any) int {
	r.params = append(r.params, v)
	return len(r.params) - 1
}

func (r *resolver) bind(logicalName string, isSub bool) *tableBinding {
	table := r.snap.Indexes.TablesByLogicalName[logicalName]
	var alias string
	if isSub {
		alias = fmt.Sprintf("s%d", r.subCounter)
		r.subCounter++
	} else {
		alias = fmt.Sprintf("t%d", r.mainCounter)
		r.mainCounter++
	}
	b := &tableBinding{
		logicalName: logicalName,
		alias:       alias,
		table:       table,
		access:      access.Resolve(r.snap, table.ID, r.accessCtx),
	}
	r.bindings[logicalName] = b
	return b
}

func tableRef(b *tableBinding) ir.TableRef {
	return ir.TableRef{PhysicalName: b.table.PhysicalName, Alias: b.alias}
}

// Resolve walks def (already validated against snap) and produces the IR.
func Resolve(snap *registry.Snapshot, def *qdef.Definition, accessCtx access.Context) (*ir.Result, error) {
	r := &resolver{snap: snap, accessCtx: accessCtx, bindings: map[string]*tableBinding{}}

	from := r.bind(def.From, false)

	var joinClauses []ir.JoinClause
	var extraFilters []ir.WhereNode

	for _, j := range def.Joins {
		jb := r.bind(j.Table, false)
		leftCol, rightCol := resolveJoinColumns(snap, from, jb, r.bindings)
		jc := ir.JoinClause{
			Table:    tableRef(jb),
			Type:     joinType(j.Type),
			LeftCol:  leftCol,
			RightCol: rightCol,
		}
		if j.Filters != nil {
			jc.ExtraWhere = r.resolveFilter(j.Filters, j.Table)
		}
		joinClauses = append(joinClauses, jc)
	}

	selectCols, mappings := r.buildSelect(def, from)

	var topNodes []ir.WhereNode
	if len(def.ByIDs) > 0 {
		topNodes = append(topNodes, r.buildByIDs(def, from))
	}
	if def.Filters != nil {
		topNodes = append(topNodes, r.resolveFilter(def.Filters, def.From))
	}
	for _, jc := range joinClauses {
		if jc.ExtraWhere != nil {
			extraFilters = append(extraFilters, jc.ExtraWhere)
		}
	}
	topNodes = append(topNodes, extraFilters...)

	var where ir.WhereNode
	switch len(topNodes) {
	case 0:
	case 1:
		where = topNodes[0]
	default:
		where = ir.Group{Logic: "and", Nodes: topNodes}
	}

	groupBy := make([]ir.ColumnRef, 0, len(def.GroupBy))
	for _, g := range def.GroupBy {
		groupBy = append(groupBy, ir.ColumnRef{TableAlias: from.alias, ColumnName: physicalColumn(from.table, g)})
	}

	aggs := r.buildAggregations(def)

	var having ir.WhereNode
	if def.Having != nil {
		having = r.resolveHaving(def.Having)
	}

	orderBy := r.buildOrderBy(def)

	parts := ir.SqlParts{
		Select:       selectCols,
		Distinct:     def.Distinct,
		From:         tableRef(from),
		Joins:        joinClauses,
		Where:        where,
		GroupBy:      groupBy,
		Having:       having,
		Aggregations: aggs,
		OrderBy:      orderBy,
		Limit:        def.Limit,
		Offset:       def.Offset,
	}

	mode := ir.ModeData
	if def.ExecuteMode == qdef.ExecCount {
		mode = ir.ModeCount
		parts.CountMode = true
		parts.Select = nil
		parts.GroupBy = nil
		parts.Having = nil
		parts.OrderBy = nil
		parts.Limit = nil
		parts.Offset = nil
		parts.Distinct = false
		parts.Aggregations = nil
	}

	return &ir.Result{Parts: parts, Params: r.params, ColumnMappings: mappings, Mode: mode}, nil
}

func joinType(t qdef.JoinType) ir.JoinType {
	switch t {
	case qdef.JoinInner:
		return ir.JoinInner
	case qdef.JoinRight:
		return ir.JoinRight
	case qdef.JoinFull:
		return ir.JoinFull
	default:
		return ir.JoinLeft
	}
}

// resolveJoinColumns finds the relation linking jb to the already-bound
// table set (direct to from, or transitively via an already-joined table),
// per the same search order the validator used.
func resolveJoinColumns(snap *registry.Snapshot, from, jb *tableBinding, bound map[string]*tableBinding) (ir.ColumnRef, ir.ColumnRef) {
	for _, candidate := range bound {
		if candidate.logicalName == jb.logicalName {
			continue
		}
		if left, right, ok := relationBetween(candidate, jb); ok {
			return left, right
		}
	}
	// Fall back to from directly (validator already guaranteed reachability).
	left, right, _ := relationBetween(from, jb)
	return left, right
}

func relationBetween(a, b *tableBinding) (ir.ColumnRef, ir.ColumnRef, bool) {
	for _, rel := range a.table.Relations {
		if rel.ReferencesTable == b.table.ID {
			return ir.ColumnRef{TableAlias: a.alias, ColumnName: physicalColumn(a.table, rel.FromColumn)},
				ir.ColumnRef{TableAlias: b.alias, ColumnName: physicalColumn(b.table, rel.ReferencesCol)}, true
		}
	}
	for _, rel := range b.table.Relations {
		if rel.ReferencesTable == a.table.ID {
			return ir.ColumnRef{TableAlias: b.alias, ColumnName: physicalColumn(b.table, rel.FromColumn)},
				ir.ColumnRef{TableAlias: a.alias, ColumnName: physicalColumn(a.table, rel.ReferencesCol)}, true
		}
	}
	return ir.ColumnRef{}, ir.ColumnRef{}, false
}

func physicalColumn(t *registry.Table, logicalName string) string {
	for _, c := range t.Columns {
		if c.LogicalName == logicalName {
			return c.PhysicalName
		}
	}
	return logicalName
}

func findColumn(t *registry.Table, logicalName string) (*registry.Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].LogicalName == logicalName {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// --- SELECT construction ---

type candidateCol struct {
	binding *tableBinding
	col     *registry.Column
}

func (r *resolver) buildSelect(def *qdef.Definition, from *tableBinding) ([]ir.ColumnRef, []ir.ColumnMapping) {
	if len(def.Aggregations) > 0 && !def.HasColumns && len(def.GroupBy) == 0 {
		// Aggregation-only query: empty select and no column mappings; the
		// backend rows are keyed by the aggregation aliases themselves.
		return nil, nil
	}

	var candidates []candidateCol
	candidates = append(candidates, r.tableCandidates(from, def.HasColumns, def.Columns)...)

	for _, j := range def.Joins {
		jb := r.bindings[j.Table]
		candidates = append(candidates, r.tableCandidates(jb, j.HasCols, j.Columns)...)
	}

	nameCount := map[string]int{}
	for _, c := range candidates {
		nameCount[c.col.LogicalName]++
	}

	cols := make([]ir.ColumnRef, 0, len(candidates))
	mappings := make([]ir.ColumnMapping, 0, len(candidates))
	for _, c := range candidates {
		logical := c.col.LogicalName
		if nameCount[logical] > 1 {
			logical = c.binding.logicalName + "." + c.col.LogicalName
		}
		cols = append(cols, ir.ColumnRef{TableAlias: c.binding.alias, ColumnName: c.col.PhysicalName})

		masked := c.binding.access.MaskedColumns[c.col.LogicalName]
		mappings = append(mappings, ir.ColumnMapping{
			PhysicalName:      c.col.PhysicalName,
			LogicalName:       logical,
			TableAlias:        c.binding.alias,
			TableLogicalName:  c.binding.logicalName,
			Type:              c.col.Type,
			Nullable:          c.col.Nullable,
			Masked:            masked,
			MaskingFn:         c.binding.access.MaskingFnByColumn[c.col.LogicalName],
		})
	}
	return cols, mappings
}

func (r *resolver) tableCandidates(b *tableBinding, explicit bool, cols []string) []candidateCol {
	var out []candidateCol
	if explicit {
		for _, name := range cols {
			if col, ok := findColumn(b.table, name); ok {
				out = append(out, candidateCol{binding: b, col: col})
			}
		}
		return out
	}
	for i := range b.table.Columns {
		col := &b.table.Columns[i]
		if b.access.AllowsColumn(col.LogicalName) {
			out = append(out, candidateCol{binding: b, col: col})
		}
	}
	return out
}

// --- WHERE construction ---

func (r *resolver) buildByIDs(def *qdef.Definition, from *tableBinding) ir.WhereNode {
	pkCol, _ := findColumn(from.table, from.table.PrimaryKey[0])
	idx := r.addParam(def.ByIDs)
	return ir.Comparison{
		Column:   ir.ColumnRef{TableAlias: from.alias, ColumnName: pkCol.PhysicalName},
		Operator: string(qdef.OpIn),
		ParamIdx: []int{idx},
	}
}

func (r *resolver) resolveFilter(node qdef.FilterNode, defaultTable string) ir.WhereNode {
	switch n := node.(type) {
	case qdef.Group:
		nodes := make([]ir.WhereNode, 0, len(n.Nodes))
		for _, c := range n.Nodes {
			nodes = append(nodes, r.resolveFilter(c, defaultTable))
		}
		return ir.Group{Logic: n.Logic, Negate: n.Negate, Nodes: nodes}
	case qdef.ValueCompare:
		return r.resolveValueCompare(n, defaultTable)
	case qdef.ColumnCompare:
		return r.resolveColumnCompare(n, defaultTable)
	case qdef.ExistsFilter:
		return r.resolveExists(n.Table, n.Negate, n.Where, nil, 0, defaultTable)
	case qdef.CountedExistsFilter:
		op := n.CountOp
		return r.resolveExists(n.Table, n.Negate, n.Where, &op, n.CountVal, defaultTable)
	}
	return nil
}

func (r *resolver) colRef(qualifier, defaultTable, column string) ir.ColumnRef {
	name := qualifier
	if name == "" {
		name = defaultTable
	}
	b := r.bindings[name]
	return ir.ColumnRef{TableAlias: b.alias, ColumnName: physicalColumn(b.table, column)}
}

func (r *resolver) colType(qualifier, defaultTable, column string) registry.ColumnType {
	name := qualifier
	if name == "" {
		name = defaultTable
	}
	b := r.bindings[name]
	if c, ok := findColumn(b.table, column); ok {
		return c.Type
	}
	return ""
}

func (r *resolver) resolveValueCompare(n qdef.ValueCompare, defaultTable string) ir.WhereNode {
	col := r.colRef(n.Table, defaultTable, n.Column)
	colType := r.colType(n.Table, defaultTable, n.Column)

	switch n.Operator {
	case qdef.OpIsNull, qdef.OpIsNotNull:
		return ir.Comparison{Column: col, ColType: colType, Operator: string(n.Operator)}
	case qdef.OpBetween, qdef.OpNotBetween:
		b := n.Value.(qdef.Between)
		fromIdx := r.addParam(b.From)
		toIdx := r.addParam(b.To)
		return ir.Between{Column: col, ColType: colType, Negate: n.Operator == qdef.OpNotBetween, FromIdx: fromIdx, ToIdx: toIdx}
	case qdef.OpIn, qdef.OpNotIn:
		idx := r.addParam(n.Value)
		return ir.Comparison{Column: col, ColType: colType, Operator: string(n.Operator), ParamIdx: []int{idx}}
	case qdef.OpStartsWith, qdef.OpEndsWith, qdef.OpContains:
		idx := r.addParam(n.Value)
		return ir.FuncApplication{Column: col, Operator: string(n.Operator), ParamIdx: idx, ExtraParamIdx: -1, CaseInsensitive: n.CaseInsensitive}
	case qdef.OpLevenshteinLte:
		lv := n.Value.(qdef.LevenshteinArg)
		textIdx := r.addParam(lv.Text)
		distIdx := r.addParam(lv.MaxDistance)
		return ir.FuncApplication{Column: col, Operator: string(n.Operator), ParamIdx: textIdx, ExtraParamIdx: distIdx}
	case qdef.OpArrayContains:
		idx := r.addParam(n.Value)
		return ir.ArrayOp{Column: col, ColType: colType.ElementType(), Operator: string(n.Operator), ParamIdx: []int{idx}}
	case qdef.OpArrayContainsAll, qdef.OpArrayContainsAny:
		idx := r.addParam(n.Value)
		return ir.ArrayOp{Column: col, ColType: colType.ElementType(), Operator: string(n.Operator), ParamIdx: []int{idx}}
	default:
		idx := r.addParam(n.Value)
		return ir.Comparison{Column: col, ColType: colType, Operator: string(n.Operator), ParamIdx: []int{idx}}
	}
}

func (r *resolver) resolveColumnCompare(n qdef.ColumnCompare, defaultTable string) ir.WhereNode {
	left := r.colRef(n.Table, defaultTable, n.Column)
	right := r.colRef(n.OtherTable, defaultTable, n.OtherColumn)
	return ir.ColumnCompare{Left: left, Operator: string(n.Operator), Right: right}
}

func (r *resolver) resolveExists(targetLogical string, negate bool, where qdef.FilterNode, countOp *qdef.Operator, countVal int, parentTable string) ir.WhereNode {
	target := r.bind(targetLogical, true)
	defer delete(r.bindings, targetLogical)

	parent := r.bindings[parentTable]
	leftCol, rightCol := resolveJoinColumns(r.snap, parent, target, r.bindings)

	var sub ir.CorrelatedSubquery
	sub.From = tableRef(target)
	sub.JoinLeft = leftCol
	sub.JoinRight = rightCol
	if where != nil {
		sub.Where = r.resolveFilter(where, targetLogical)
	}

	if countOp == nil {
		return ir.ExistsNode{Negate: negate, Sub: sub}
	}
	idx := r.addParam(countVal)
	return ir.CountedSubqueryNode{Negate: negate, Sub: sub, Operator: string(*countOp), CountIdx: idx}
}

// --- HAVING ---

func (r *resolver) resolveHaving(node qdef.FilterNode) ir.HavingNode {
	switch n := node.(type) {
	case qdef.Group:
		nodes := make([]ir.WhereNode, 0, len(n.Nodes))
		for _, c := range n.Nodes {
			nodes = append(nodes, r.resolveHaving(c))
		}
		return ir.Group{Logic: n.Logic, Negate: n.Negate, Nodes: nodes}
	case qdef.ValueCompare:
		aliasCol := ir.ColumnRef{ColumnName: n.Column}
		switch n.Operator {
		case qdef.OpIsNull, qdef.OpIsNotNull:
			return ir.Comparison{Column: aliasCol, Operator: string(n.Operator)}
		case qdef.OpBetween, qdef.OpNotBetween:
			b := n.Value.(qdef.Between)
			fromIdx := r.addParam(b.From)
			toIdx := r.addParam(b.To)
			return ir.Between{Column: aliasCol, Negate: n.Operator == qdef.OpNotBetween, FromIdx: fromIdx, ToIdx: toIdx}
		default:
			idx := r.addParam(n.Value)
			return ir.Comparison{Column: aliasCol, Operator: string(n.Operator), ParamIdx: []int{idx}}
		}
	}
	return nil
}

// --- aggregations / orderBy ---

func (r *resolver) buildAggregations(def *qdef.Definition) []ir.Aggregation {
	out := make([]ir.Aggregation, 0, len(def.Aggregations))
	for _, a := range def.Aggregations {
		agg := ir.Aggregation{Function: a.Function, Alias: a.Alias}
		if a.Column != "" {
			table := a.Table
			if table == "" {
				table = def.From
			}
			b := r.bindings[table]
			cr := ir.ColumnRef{TableAlias: b.alias, ColumnName: physicalColumn(b.table, a.Column)}
			agg.Column = &cr
		}
		out = append(out, agg)
	}
	return out
}

func (r *resolver) buildOrderBy(def *qdef.Definition) []ir.OrderTerm {
	aggAliases := map[string]bool{}
	for _, a := range def.Aggregations {
		aggAliases[a.Alias] = true
	}
	out := make([]ir.OrderTerm, 0, len(def.OrderBy))
	for _, ob := range def.OrderBy {
		if aggAliases[ob.Column] && ob.Table == "" {
			out = append(out, ir.OrderTerm{Alias: ob.Column, Direction: ob.Direction})
			continue
		}
		table := ob.Table
		if table == "" {
			table = def.From
		}
		b := r.bindings[table]
		cr := ir.ColumnRef{TableAlias: b.alias, ColumnName: physicalColumn(b.table, ob.Column)}
		out = append(out, ir.OrderTerm{Column: &cr, Direction: ob.Direction})
	}
	return out
}
