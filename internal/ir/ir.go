// Package ir is the dialect-agnostic intermediate representation the name
// resolver builds and the dialect generators consume.
package ir

import "github.com/orbitquery/queryengine/internal/registry"

// ColumnRef is a physical column reference qualified by a table alias.
type ColumnRef struct {
	TableAlias string
	ColumnName string
}

// TableRef is a physical table reference with its resolved alias and,
// for federated plans, its catalog.
type TableRef struct {
	PhysicalName string
	Alias        string
	Catalog      string
}

// JoinType mirrors qdef.JoinType in the IR's own vocabulary.
type JoinType string

const (
	JoinLeft  JoinType = "left"
	JoinInner JoinType = "inner"
	JoinRight JoinType = "right"
	JoinFull  JoinType = "full"
)

// JoinClause is one resolved join in the FROM clause.
type JoinClause struct {
	Table      TableRef
	Type       JoinType
	LeftCol    ColumnRef
	RightCol   ColumnRef
	ExtraWhere WhereNode // join-scoped filters, if any
}

// WhereNode is the closed sum type the dialect generators walk: comparison,
// column-compare, between, function-application, array-op, group,
// exists-subquery, counted-subquery.
type WhereNode interface {
	whereNode()
}

// Comparison is a column-vs-parameter comparison (=, !=, <, <=, >, >=, in,
// notIn, isNull, isNotNull).
type Comparison struct {
	Column   ColumnRef
	ColType  registry.ColumnType
	Operator string
	ParamIdx []int // positional indexes into the shared parameter list; empty for isNull/isNotNull
}

func (Comparison) whereNode() {}

// ColumnCompare is a column-vs-column comparison.
type ColumnCompare struct {
	Left     ColumnRef
	Operator string
	Right    ColumnRef
}

func (ColumnCompare) whereNode() {}

// Between is a BETWEEN / NOT BETWEEN predicate.
type Between struct {
	Column  ColumnRef
	ColType registry.ColumnType
	Negate  bool
	FromIdx int
	ToIdx   int
}

func (Between) whereNode() {}

// FuncApplication is a pattern-match or levenshtein-distance predicate
// (startsWith, endsWith, contains, levenshteinLte).
type FuncApplication struct {
	Column       ColumnRef
	Operator     string
	ParamIdx     int
	ExtraParamIdx int // second param index for levenshteinLte's maxDistance; -1 if unused
	CaseInsensitive bool
}

func (FuncApplication) whereNode() {}

// ArrayOp is an array-membership predicate (arrayContains, arrayContainsAll,
// arrayContainsAny).
type ArrayOp struct {
	Column   ColumnRef
	ColType  registry.ColumnType // the array column's element type
	Operator string
	ParamIdx []int
}

func (ArrayOp) whereNode() {}

// Group is a logical and/or combination of child nodes, optionally negated.
type Group struct {
	Logic  string // "and" | "or"
	Negate bool
	Nodes  []WhereNode
}

func (Group) whereNode() {}

// CorrelatedSubquery describes the FROM/JOIN predicate/WHERE of a nested
// EXISTS or counted-subquery target.
type CorrelatedSubquery struct {
	From       TableRef
	JoinLeft   ColumnRef
	JoinRight  ColumnRef
	Where      WhereNode
}

// ExistsNode is an (optionally negated) EXISTS (...) predicate.
type ExistsNode struct {
	Negate bool
	Sub    CorrelatedSubquery
}

func (ExistsNode) whereNode() {}

// CountedSubqueryNode is a counted-exists predicate: the number of rows in
// Sub matching the join+where compares to Count under Operator.
type CountedSubqueryNode struct {
	Negate   bool
	Sub      CorrelatedSubquery
	Operator string // one of =,!=,<,<=,>,>=
	CountIdx int     // positional parameter index holding the count literal
}

func (CountedSubqueryNode) whereNode() {}

// HavingNode mirrors WhereNode's shape but only ever carries Comparison and
// Between nodes (per the having rule's restricted operator set) whose
// Column.ColumnName is an aggregation alias rather than a physical column.
type HavingNode = WhereNode

// Aggregation is one resolved computed output column.
type Aggregation struct {
	Function string
	Column   *ColumnRef // nil for count(*)
	Alias    string
}

// OrderTerm is one resolved ORDER BY term: either a ColumnRef or a bare
// aggregation alias.
type OrderTerm struct {
	Column    *ColumnRef
	Alias     string // set instead of Column when referencing an aggregation alias
	Direction string
}

// SqlParts is the full dialect-agnostic query shape.
type SqlParts struct {
	Select      []ColumnRef
	Distinct    bool
	From        TableRef
	Joins       []JoinClause
	Where       WhereNode
	GroupBy     []ColumnRef
	Having      HavingNode
	Aggregations []Aggregation
	OrderBy     []OrderTerm
	Limit       *int
	Offset      *int
	CountMode   bool
}

// ColumnMapping describes how one output column maps back to its logical
// identity, for row-remapping and masking after execution.
type ColumnMapping struct {
	PhysicalName    string
	LogicalName     string // possibly qualified tableLogicalName.columnName on collision
	TableAlias      string
	TableLogicalName string
	Type            registry.ColumnType
	Nullable        bool
	Masked          bool
	MaskingFn       registry.MaskingFn
}

// Mode mirrors qdef.ExecMode restricted to what the resolver actually
// distinguishes: count mode clears most of SqlParts.
type Mode string

const (
	ModeData  Mode = "data"
	ModeCount Mode = "count"
)

// Result is the name resolver's full output.
type Result struct {
	Parts          SqlParts
	Params         []any
	ColumnMappings []ColumnMapping
	Mode           Mode
}
