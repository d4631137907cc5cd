// Package exec is the Executor Orchestrator: given a plan, the generated
// SQL, and the resolved column mappings, it runs the query against the
// selected backend (or cache), remaps rows to logical names, masks
// restricted columns, and packages the result.
package exec

import (
	"fmt"

	"github.com/orbitquery/queryengine/internal/dialect/columnar"
	"github.com/orbitquery/queryengine/internal/dialect/federation"
	"github.com/orbitquery/queryengine/internal/dialect/rowstore"
	"github.com/orbitquery/queryengine/internal/ir"
	"github.com/orbitquery/queryengine/internal/plan"
)

// Generate renders parts in the given dialect, dispatching to the
// matching generator package.
func Generate(dialect plan.Dialect, parts ir.SqlParts, params []any) (string, []any, error) {
	switch dialect {
	case plan.DialectRowStore:
		sql, p := rowstore.Generate(parts, params)
		return sql, p, nil
	case plan.DialectColumnar:
		sql, p := columnar.Generate(parts, params)
		return sql, p, nil
	case plan.DialectFederation:
		sql, p := federation.Generate(parts, params)
		return sql, p, nil
	default:
		return "", nil, fmt.Errorf("exec: unknown dialect %q", dialect)
	}
}
