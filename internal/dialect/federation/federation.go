// Package federation generates Trino-family SQL from the engine's IR.
package federation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/orbitquery/queryengine/internal/dialect"
	"github.com/orbitquery/queryengine/internal/ir"
)

const escapeChar = `\`

// Generate renders parts as Trino-family SQL, returning the statement and
// its positional `?` parameters in the order actually consumed. Array
// parameters bound to IN are expanded into one `?` per element.
func Generate(parts ir.SqlParts, originalParams []any) (string, []any) {
	g := &gen{orig: originalParams}
	sql := dialect.RenderQuery(g, parts)
	return sql, g.out
}

type gen struct {
	orig []any
	out  []any
}

func (g *gen) Params() []any { return g.out }

func (g *gen) push(v any) {
	g.out = append(g.out, v)
}

// expand returns one placeholder per element of a slice/array parameter,
// pushing each element as its own positional value.
func (g *gen) expand(v any) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		g.push(v)
		return "?"
	}
	n := rv.Len()
	placeholders := make([]string, n)
	for i := 0; i < n; i++ {
		g.push(rv.Index(i).Interface())
		placeholders[i] = "?"
	}
	return strings.Join(placeholders, ", ")
}

func (g *gen) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (g *gen) SelectExpr(c ir.ColumnRef) string {
	return fmt.Sprintf(`%s.%s AS %s`, g.QuoteIdent(c.TableAlias), g.QuoteIdent(c.ColumnName),
		g.QuoteIdent(c.TableAlias+"__"+c.ColumnName))
}

func (g *gen) ColRef(c ir.ColumnRef) string {
	return g.QuoteIdent(c.TableAlias) + "." + g.QuoteIdent(c.ColumnName)
}

func (g *gen) FromSQL(t ir.TableRef) string {
	name := t.PhysicalName
	if t.Catalog != "" {
		name = t.Catalog + "." + name
	}
	return dialect.QuoteDotted(name, g.QuoteIdent) + " AS " + g.QuoteIdent(t.Alias)
}

func (g *gen) JoinKeyword(t ir.JoinType) string {
	switch t {
	case ir.JoinInner:
		return "INNER"
	case ir.JoinRight:
		return "RIGHT"
	case ir.JoinFull:
		return "FULL"
	default:
		return "LEFT"
	}
}

func (g *gen) RenderComparison(n ir.Comparison) string {
	col := g.ColRef(n.Column)
	switch n.Operator {
	case "isNull":
		return col + " IS NULL"
	case "isNotNull":
		return col + " IS NOT NULL"
	case "in", "notIn":
		list := g.expand(g.orig[n.ParamIdx[0]])
		if n.Operator == "in" {
			return fmt.Sprintf("%s IN (%s)", col, list)
		}
		return fmt.Sprintf("%s NOT IN (%s)", col, list)
	default:
		g.push(g.orig[n.ParamIdx[0]])
		return fmt.Sprintf("%s %s ?", col, n.Operator)
	}
}

func (g *gen) RenderColumnCompare(n ir.ColumnCompare) string {
	return fmt.Sprintf("%s %s %s", g.ColRef(n.Left), n.Operator, g.ColRef(n.Right))
}

func (g *gen) RenderBetween(n ir.Between) string {
	g.push(g.orig[n.FromIdx])
	g.push(g.orig[n.ToIdx])
	expr := fmt.Sprintf("%s BETWEEN ? AND ?", g.ColRef(n.Column))
	if n.Negate {
		return "NOT (" + expr + ")"
	}
	return expr
}

func (g *gen) RenderFuncApplication(n ir.FuncApplication) string {
	col := g.ColRef(n.Column)
	switch n.Operator {
	case "levenshteinLte":
		g.push(g.orig[n.ParamIdx])
		g.push(g.orig[n.ExtraParamIdx])
		return fmt.Sprintf("levenshtein_distance(%s, ?) <= ?", col)
	default: // startsWith, endsWith, contains
		raw, _ := g.orig[n.ParamIdx].(string)
		g.push(dialect.EscapePattern(raw, n.Operator, escapeChar))
		if n.CaseInsensitive {
			return fmt.Sprintf(`lower(%s) LIKE lower(?) ESCAPE '%s'`, col, escapeChar)
		}
		return fmt.Sprintf(`%s LIKE ? ESCAPE '%s'`, col, escapeChar)
	}
}

func (g *gen) RenderArrayOp(n ir.ArrayOp) string {
	col := g.ColRef(n.Column)
	switch n.Operator {
	case "arrayContains":
		g.push(g.orig[n.ParamIdx[0]])
		return fmt.Sprintf("contains(%s, ?)", col)
	case "arrayContainsAll":
		list := g.expand(g.orig[n.ParamIdx[0]])
		return fmt.Sprintf("cardinality(array_except(ARRAY[%s], %s)) = 0", list, col)
	case "arrayContainsAny":
		list := g.expand(g.orig[n.ParamIdx[0]])
		return fmt.Sprintf("arrays_overlap(%s, ARRAY[%s])", col, list)
	case "isEmpty":
		return fmt.Sprintf("cardinality(%s) = 0", col)
	default: // isNotEmpty
		return fmt.Sprintf("cardinality(%s) > 0", col)
	}
}

func (g *gen) RenderExistsHeader(sub ir.CorrelatedSubquery, negate bool) (string, string) {
	keyword := "EXISTS ("
	if negate {
		keyword = "NOT EXISTS ("
	}
	prefix := keyword + "SELECT 1 FROM " + g.FromSQL(sub.From) + " WHERE "
	joinPredicate := g.ColRef(sub.JoinLeft) + " = " + g.ColRef(sub.JoinRight)
	return prefix, joinPredicate
}

func (g *gen) RenderCountedSubquery(n ir.CountedSubqueryNode) string {
	sub := n.Sub
	joinCol := g.ColRef(sub.JoinLeft)
	where := g.ColRef(sub.JoinLeft) + " = " + g.ColRef(sub.JoinRight)
	if sub.Where != nil {
		where += " AND " + dialect.RenderWhere(g, sub.Where)
	}
	havingOp := n.Operator
	negateToNotIn := false
	switch n.Operator {
	case ">=", ">":
		// use directly
	case "<", "<=":
		negateToNotIn = true
		if n.Operator == "<" {
			havingOp = ">="
		} else {
			havingOp = ">"
		}
	}
	g.push(g.orig[n.CountIdx])
	parentKey := g.ColRef(sub.JoinRight)

	subselect := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s GROUP BY %s HAVING COUNT(*) %s ?",
		joinCol, g.FromSQL(sub.From), where, joinCol, havingOp)

	if negateToNotIn {
		return fmt.Sprintf("%s NOT IN (%s)", parentKey, subselect)
	}
	return fmt.Sprintf("%s IN (%s)", parentKey, subselect)
}

func (g *gen) AggregationSQL(a ir.Aggregation) string {
	if a.Column == nil {
		return fmt.Sprintf("COUNT(*) AS %s", g.QuoteIdent(a.Alias))
	}
	return fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(a.Function), g.ColRef(*a.Column), g.QuoteIdent(a.Alias))
}

func (g *gen) OrderTermSQL(o ir.OrderTerm) string {
	dir := strings.ToUpper(o.Direction)
	if o.Column != nil {
		return g.ColRef(*o.Column) + " " + dir
	}
	return g.QuoteIdent(o.Alias) + " " + dir
}
