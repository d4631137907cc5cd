// Package rowstore generates PostgreSQL-family SQL from the engine's IR.
package rowstore

import (
	"fmt"
	"strings"

	"github.com/orbitquery/queryengine/internal/dialect"
	"github.com/orbitquery/queryengine/internal/ir"
	"github.com/orbitquery/queryengine/internal/registry"
)

const escapeChar = `\`

// Generate renders parts as PostgreSQL-family SQL, returning the statement
// and its positional $N parameters in the order actually consumed.
func Generate(parts ir.SqlParts, originalParams []any) (string, []any) {
	g := &gen{orig: originalParams}
	sql := dialect.RenderQuery(g, parts)
	return sql, g.out
}

type gen struct {
	orig []any
	out  []any
}

func (g *gen) push(v any) int {
	g.out = append(g.out, v)
	return len(g.out)
}

func (g *gen) Params() []any { return g.out }

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
	return dialect.QuoteDotted(t.PhysicalName, g.QuoteIdent) + " AS " + g.QuoteIdent(t.Alias)
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

func pgType(t registry.ColumnType) string {
	switch t {
	case registry.TypeUUID:
		return "uuid"
	case registry.TypeInt:
		return "integer"
	case registry.TypeDecimal:
		return "numeric"
	case registry.TypeBoolean:
		return "bool"
	case registry.TypeDate:
		return "date"
	case registry.TypeTimestamp:
		return "timestamp"
	default:
		return "text"
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
		pos := g.push(g.orig[n.ParamIdx[0]])
		cast := pgType(n.ColType)
		if n.Operator == "in" {
			return fmt.Sprintf("%s = ANY($%d::%s[])", col, pos, cast)
		}
		return fmt.Sprintf("%s <> ALL($%d::%s[])", col, pos, cast)
	default:
		pos := g.push(g.orig[n.ParamIdx[0]])
		return fmt.Sprintf("%s %s $%d", col, n.Operator, pos)
	}
}

func (g *gen) RenderColumnCompare(n ir.ColumnCompare) string {
	return fmt.Sprintf("%s %s %s", g.ColRef(n.Left), n.Operator, g.ColRef(n.Right))
}

func (g *gen) RenderBetween(n ir.Between) string {
	fromPos := g.push(g.orig[n.FromIdx])
	toPos := g.push(g.orig[n.ToIdx])
	expr := fmt.Sprintf("%s BETWEEN $%d AND $%d", g.ColRef(n.Column), fromPos, toPos)
	if n.Negate {
		return "NOT (" + expr + ")"
	}
	return expr
}

func (g *gen) RenderFuncApplication(n ir.FuncApplication) string {
	col := g.ColRef(n.Column)
	switch n.Operator {
	case "levenshteinLte":
		textPos := g.push(g.orig[n.ParamIdx])
		maxPos := g.push(g.orig[n.ExtraParamIdx])
		return fmt.Sprintf("levenshtein(%s, $%d) <= $%d", col, textPos, maxPos)
	default: // startsWith, endsWith, contains
		raw, _ := g.orig[n.ParamIdx].(string)
		pos := g.push(dialect.EscapePattern(raw, n.Operator, escapeChar))
		op := "LIKE"
		if n.CaseInsensitive {
			op = "ILIKE"
		}
		return fmt.Sprintf(`%s %s $%d ESCAPE '%s'`, col, op, pos, escapeChar)
	}
}

func (g *gen) RenderArrayOp(n ir.ArrayOp) string {
	col := g.ColRef(n.Column)
	cast := pgType(n.ColType)
	switch n.Operator {
	case "arrayContains":
		pos := g.push(g.orig[n.ParamIdx[0]])
		return fmt.Sprintf("$%d::%s = ANY(%s)", pos, cast, col)
	case "arrayContainsAll":
		pos := g.push(g.orig[n.ParamIdx[0]])
		return fmt.Sprintf("%s @> $%d::%s[]", col, pos, cast)
	case "arrayContainsAny":
		pos := g.push(g.orig[n.ParamIdx[0]])
		return fmt.Sprintf("%s && $%d::%s[]", col, pos, cast)
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
	countPos := g.push(g.orig[n.CountIdx])
	parentKey := g.ColRef(sub.JoinRight)

	subselect := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s GROUP BY %s HAVING COUNT(*) %s $%d",
		joinCol, g.FromSQL(sub.From), where, joinCol, havingOp, countPos)

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
