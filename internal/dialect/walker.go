// Package dialect defines the common contract the three backend-family SQL
// generators implement, plus the shared tree-walk that drives all three:
// only identifier quoting, placeholder syntax, and operator spelling differ
// between them.
package dialect

import (
	"strconv"
	"strings"

	"github.com/orbitquery/queryengine/internal/ir"
)

// Emitter renders one backend family's dialect. RenderQuery and RenderWhere
// drive an Emitter through an ir.SqlParts; the Emitter never sees the top-level assembly
// order, only individual fragments.
type Emitter interface {
	QuoteIdent(name string) string
	SelectExpr(c ir.ColumnRef) string
	ColRef(c ir.ColumnRef) string
	FromSQL(t ir.TableRef) string
	JoinKeyword(t ir.JoinType) string

	RenderComparison(n ir.Comparison) string
	RenderColumnCompare(n ir.ColumnCompare) string
	RenderBetween(n ir.Between) string
	RenderFuncApplication(n ir.FuncApplication) string
	RenderArrayOp(n ir.ArrayOp) string
	RenderExistsHeader(sub ir.CorrelatedSubquery, negate bool) (prefix, joinPredicate string)
	RenderCountedSubquery(n ir.CountedSubqueryNode) string

	AggregationSQL(a ir.Aggregation) string
	OrderTermSQL(o ir.OrderTerm) string

	// Params returns the dialect's own final positional/named parameter
	// list, built up as RenderComparison/etc. are called.
	Params() []any
}

// RenderWhere recursively renders a WhereNode, handling the universal group
// wrapping/negation rule so every Emitter gets it for free.
func RenderWhere(e Emitter, node ir.WhereNode) string {
	if node == nil {
		return ""
	}
	switch n := node.(type) {
	case ir.Group:
		return renderGroup(e, n)
	case ir.Comparison:
		return e.RenderComparison(n)
	case ir.ColumnCompare:
		return e.RenderColumnCompare(n)
	case ir.Between:
		return e.RenderBetween(n)
	case ir.FuncApplication:
		return e.RenderFuncApplication(n)
	case ir.ArrayOp:
		return e.RenderArrayOp(n)
	case ir.ExistsNode:
		return renderExists(e, n)
	case ir.CountedSubqueryNode:
		return e.RenderCountedSubquery(n)
	}
	return ""
}

func renderGroup(e Emitter, g ir.Group) string {
	parts := make([]string, 0, len(g.Nodes))
	for _, child := range g.Nodes {
		parts = append(parts, RenderWhere(e, child))
	}
	logic := " AND "
	if g.Logic == "or" {
		logic = " OR "
	}
	body := strings.Join(parts, logic)
	if len(parts) >= 2 {
		body = "(" + body + ")"
	}
	if g.Negate {
		body = "NOT " + body
	}
	return body
}

func renderExists(e Emitter, n ir.ExistsNode) string {
	prefix, joinPredicate := e.RenderExistsHeader(n.Sub, n.Negate)
	where := joinPredicate
	if n.Sub.Where != nil {
		where = where + " AND " + RenderWhere(e, n.Sub.Where)
	}
	return prefix + where + ")"
}

// RenderQuery assembles the full SQL statement from parts, delegating every
// dialect-specific fragment to e. Shared across all three generators.
func RenderQuery(e Emitter, parts ir.SqlParts) string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if parts.CountMode {
		sb.WriteString("COUNT(*)")
	} else {
		sb.WriteString(renderSelectList(e, parts))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(e.FromSQL(parts.From))

	for _, j := range parts.Joins {
		sb.WriteString(" ")
		sb.WriteString(e.JoinKeyword(j.Type))
		sb.WriteString(" JOIN ")
		sb.WriteString(e.FromSQL(j.Table))
		sb.WriteString(" ON ")
		sb.WriteString(e.ColRef(j.LeftCol))
		sb.WriteString(" = ")
		sb.WriteString(e.ColRef(j.RightCol))
		if j.ExtraWhere != nil {
			sb.WriteString(" AND ")
			sb.WriteString(RenderWhere(e, j.ExtraWhere))
		}
	}

	if parts.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(RenderWhere(e, parts.Where))
	}

	if parts.CountMode {
		return sb.String()
	}

	if len(parts.GroupBy) > 0 {
		cols := make([]string, 0, len(parts.GroupBy))
		for _, c := range parts.GroupBy {
			cols = append(cols, e.ColRef(c))
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(cols, ", "))
	}

	if parts.Having != nil {
		sb.WriteString(" HAVING ")
		sb.WriteString(RenderWhere(e, parts.Having))
	}

	if len(parts.OrderBy) > 0 {
		terms := make([]string, 0, len(parts.OrderBy))
		for _, o := range parts.OrderBy {
			terms = append(terms, e.OrderTermSQL(o))
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	if parts.Limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(*parts.Limit))
	}
	if parts.Offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(*parts.Offset))
	}

	return sb.String()
}

func renderSelectList(e Emitter, parts ir.SqlParts) string {
	var items []string
	for _, c := range parts.Select {
		items = append(items, e.SelectExpr(c))
	}
	for _, a := range parts.Aggregations {
		items = append(items, e.AggregationSQL(a))
	}
	if len(items) == 0 {
		return "*"
	}
	distinct := ""
	if parts.Distinct {
		distinct = "DISTINCT "
	}
	return distinct + strings.Join(items, ", ")
}

// QuoteDotted splits a dotted physical name on "." and quotes each segment,
// shared by all three generators; quote supplies the dialect's quoting
// (`"` for row-store and federation, backticks for columnar).
func QuoteDotted(name string, quote func(string) string) string {
	segs := strings.Split(name, ".")
	for i, s := range segs {
		segs[i] = quote(s)
	}
	return strings.Join(segs, ".")
}

// EscapePattern escapes %, _, and the escape char itself in v, then wraps it
// per op (startsWith/endsWith/contains), shared across all three
// generators' pattern-wrap operators.
func EscapePattern(v string, op string, escapeChar string) string {
	v = strings.ReplaceAll(v, escapeChar, escapeChar+escapeChar)
	v = strings.ReplaceAll(v, "%", escapeChar+"%")
	v = strings.ReplaceAll(v, "_", escapeChar+"_")
	switch op {
	case "startsWith":
		return v + "%"
	case "endsWith":
		return "%" + v
	default: // contains
		return "%" + v + "%"
	}
}
