package exec

import "github.com/orbitquery/queryengine/internal/plan"

// Kind tags which variant of Result is populated, matching the engine's
// public QueryResult tagged-variant contract.
type Kind string

const (
	KindData  Kind = "data"
	KindCount Kind = "count"
	KindSQL   Kind = "sql"
)

// Result is the orchestrator's full output for one query.
type Result struct {
	Kind     Kind
	Data     []map[string]any
	Count    int64
	SQL      string
	Params   []any
	Meta     Meta
	DebugLog []DebugEntry
}

// TableUsage describes one table the plan actually touched.
type TableUsage struct {
	TableID      string
	Source       string // "original", "materialized", or "cache"
	Database     string
	PhysicalName string
}

// ColumnMeta describes one projected output column.
type ColumnMeta struct {
	LogicalName string
	Type        string
	Nullable    bool
	FromTable   string
	Masked      bool
}

// Timing records elapsed durations for each pipeline phase, in
// milliseconds; ExecutionMs is nil for sql-only queries, which never
// touch a backend.
type Timing struct {
	PlanningMs   float64
	GenerationMs float64
	ExecutionMs  *float64
}

// Meta is the result metadata returned alongside every query outcome.
type Meta struct {
	Strategy       string
	TargetDatabase string
	Dialect        string
	TablesUsed     []TableUsage
	Columns        []ColumnMeta
	Timing         Timing
}

// DebugEntry is one timed phase, appended to the result only when the
// caller requested debug == true.
type DebugEntry struct {
	Phase      string
	DurationMs float64
}

// StrategyLabel maps a plan.Strategy to the public metadata label; the
// federated strategy is reported as "federated-cross-db" per spec.md §6.
func StrategyLabel(s plan.Strategy) string {
	if s == plan.StrategyFederated {
		return "federated-cross-db"
	}
	return string(s)
}
