// Package columnar generates ClickHouse-family SQL from the engine's IR.
package columnar

import (
	"fmt"
	"strings"

	"github.com/orbitquery/queryengine/internal/dialect"
	"github.com/orbitquery/queryengine/internal/ir"
	"github.com/orbitquery/queryengine/internal/registry"
)

const escapeChar = `\`

// Generate renders parts as ClickHouse-family SQL, returning the statement
// and its named-parameter values in the order the placeholders were minted
// (positionally aligned with {pN:Type} by index).
func Generate(parts ir.SqlParts, originalParams []any) (string, []any) {
	g := &gen{orig: originalParams}
	sql := dialect.RenderQuery(g, parts)
	return sql, g.out
}

type gen struct {
	orig []any
	out  []any
	n    int
}

func (g *gen) Params() []any { return g.out }

// placeholder mints the next {pN:Type} token and records its value.
func (g *gen) placeholder(v any, chType string) string {
	g.out = append(g.out, v)
	g.n++
	return fmt.Sprintf("{p%d:%s}", g.n, chType)
}

func (g *gen) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (g *gen) SelectExpr(c ir.ColumnRef) string {
	return g.ColRef(c)
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

func chType(t registry.ColumnType) string {
	switch t {
	case registry.TypeUUID:
		return "UUID"
	case registry.TypeInt:
		return "Int64"
	case registry.TypeDecimal:
		return "Decimal64(9)"
	case registry.TypeBoolean:
		return "Bool"
	case registry.TypeDate:
		return "Date"
	case registry.TypeTimestamp:
		return "DateTime64(3)"
	default:
		return "String"
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
		p := g.placeholder(g.orig[n.ParamIdx[0]], "Array("+chType(n.ColType)+")")
		if n.Operator == "in" {
			return fmt.Sprintf("%s IN (%s)", col, p)
		}
		return fmt.Sprintf("%s NOT IN (%s)", col, p)
	default:
		p := g.placeholder(g.orig[n.ParamIdx[0]], chType(n.ColType))
		return fmt.Sprintf("%s %s %s", col, n.Operator, p)
	}
}

func (g *gen) RenderColumnCompare(n ir.ColumnCompare) string {
	return fmt.Sprintf("%s %s %s", g.ColRef(n.Left), n.Operator, g.ColRef(n.Right))
}

func (g *gen) RenderBetween(n ir.Between) string {
	chT := chType(n.ColType)
	fromP := g.placeholder(g.orig[n.FromIdx], chT)
	toP := g.placeholder(g.orig[n.ToIdx], chT)
	expr := fmt.Sprintf("%s BETWEEN %s AND %s", g.ColRef(n.Column), fromP, toP)
	if n.Negate {
		return "NOT (" + expr + ")"
	}
	return expr
}

func (g *gen) RenderFuncApplication(n ir.FuncApplication) string {
	col := g.ColRef(n.Column)
	switch n.Operator {
	case "levenshteinLte":
		textP := g.placeholder(g.orig[n.ParamIdx], "String")
		maxP := g.placeholder(g.orig[n.ExtraParamIdx], "UInt32")
		return fmt.Sprintf("editDistance(%s, %s) <= %s", col, textP, maxP)
	case "startsWith", "endsWith":
		raw, _ := g.orig[n.ParamIdx].(string)
		if n.CaseInsensitive {
			p := g.placeholder(dialect.EscapePattern(raw, n.Operator, escapeChar), "String")
			return fmt.Sprintf("ilike(%s, %s)", col, p)
		}
		p := g.placeholder(raw, "String")
		return fmt.Sprintf("%s(%s, %s)", n.Operator, col, p)
	default: // contains
		raw, _ := g.orig[n.ParamIdx].(string)
		if n.CaseInsensitive {
			p := g.placeholder(dialect.EscapePattern(raw, n.Operator, escapeChar), "String")
			return fmt.Sprintf("ilike(%s, %s)", col, p)
		}
		p := g.placeholder(raw, "String")
		return fmt.Sprintf("position(%s, %s) > 0", col, p)
	}
}

func (g *gen) RenderArrayOp(n ir.ArrayOp) string {
	col := g.ColRef(n.Column)
	elemType := chType(n.ColType)
	switch n.Operator {
	case "arrayContains":
		p := g.placeholder(g.orig[n.ParamIdx[0]], elemType)
		return fmt.Sprintf("has(%s, %s)", col, p)
	case "arrayContainsAll":
		p := g.placeholder(g.orig[n.ParamIdx[0]], "Array("+elemType+")")
		return fmt.Sprintf("hasAll(%s, %s)", col, p)
	case "arrayContainsAny":
		p := g.placeholder(g.orig[n.ParamIdx[0]], "Array("+elemType+")")
		return fmt.Sprintf("hasAny(%s, %s)", col, p)
	case "isEmpty":
		return fmt.Sprintf("empty(%s)", col)
	default: // isNotEmpty
		return fmt.Sprintf("notEmpty(%s)", col)
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
	countP := g.placeholder(g.orig[n.CountIdx], "UInt64")
	parentKey := g.ColRef(sub.JoinRight)

	subselect := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s GROUP BY %s HAVING COUNT(*) %s %s",
		joinCol, g.FromSQL(sub.From), where, joinCol, havingOp, countP)

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
