package exec

import (
	"strings"

	"github.com/orbitquery/queryengine/internal/errs"
)

// timeoutMarkers are message substrings, observed across the three backend
// families, that indicate a query was aborted for running too long rather
// than failing outright.
var timeoutMarkers = []string{"timeout", "statement_timeout", "max_execution_time"}

// ClassifyError translates a backend execute failure into QUERY_TIMEOUT or
// QUERY_FAILED, attaching the SQL, params, database id, and dialect to
// every QUERY_FAILED so the caller can diagnose it.
func ClassifyError(err error, sql string, params []any, databaseID, dialect string) *errs.Error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range timeoutMarkers {
		if strings.Contains(msg, marker) {
			return errs.NewExecutionError(errs.CodeQueryTimeout, err.Error(),
				map[string]any{"database": databaseID, "dialect": dialect}, err)
		}
	}
	return errs.NewExecutionError(errs.CodeQueryFailed, err.Error(),
		map[string]any{"sql": sql, "params": params, "database": databaseID, "dialect": dialect}, err)
}
