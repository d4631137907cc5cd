package exec

import (
	"github.com/orbitquery/queryengine/internal/errs"
	"github.com/orbitquery/queryengine/internal/sources"
)

// CloseAll attempts to close every executor and cache provider, collecting
// every failure rather than stopping at the first one. A nil return means
// every close succeeded.
func CloseAll(executors map[string]sources.Executor, federation sources.Executor, caches map[string]sources.Cache) *errs.Error {
	var unreachable []string

	for id, e := range executors {
		if err := e.Close(); err != nil {
			unreachable = append(unreachable, id)
		}
	}
	if federation != nil {
		if err := federation.Close(); err != nil {
			unreachable = append(unreachable, "federation")
		}
	}
	for id, c := range caches {
		if err := c.Close(); err != nil {
			unreachable = append(unreachable, id)
		}
	}

	if len(unreachable) == 0 {
		return nil
	}
	return errs.NewConnectionError(errs.CodeConnectionFailed, "one or more providers failed to close",
		map[string]any{"unreachable": unreachable}, nil)
}
