// Package engine wires the registry, access resolver, validator, planner,
// name resolver, dialect generators, and executor orchestrator into the
// public Engine surface: Query, HealthCheck, ReloadMetadata, ReloadRoles,
// Close.
package engine

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/orbitquery/queryengine/internal/errs"
	"github.com/orbitquery/queryengine/internal/exec"
	"github.com/orbitquery/queryengine/internal/log"
	"github.com/orbitquery/queryengine/internal/plan"
	"github.com/orbitquery/queryengine/internal/registry"
	"github.com/orbitquery/queryengine/internal/sources"
	"go.opentelemetry.io/otel/trace"
)

// Config wires every provider and deployment toggle the Engine needs.
// Executors and Caches are keyed by database id / cache id exactly as they
// appear in the metadata document; Federation serves every federated and
// federation-catalog direct plan.
type Config struct {
	MetadataProvider  sources.MetadataProvider
	RoleProvider      sources.RoleProvider
	Executors         map[string]sources.Executor
	Federation        sources.Executor
	Caches            map[string]sources.Cache
	FederationEnabled bool

	// ValidateConnections pings every executor and cache provider during
	// New; when false, providers are assumed lazy and failures surface at
	// first query (spec.md §5).
	ValidateConnections bool

	Logger log.Logger
	Tracer trace.Tracer
}

// Engine is the query engine's public entry point. It is safe for
// concurrent use by multiple goroutines.
type Engine struct {
	registry   *registry.Registry
	executors  map[string]sources.Executor
	federation sources.Executor
	caches     map[string]sources.Cache
	opts       plan.Options
	logger     log.Logger
	tracer     trace.Tracer
	closed     atomic.Bool
}

// New performs the initial metadata and role load, optionally pings every
// provider, and returns a ready Engine. Failure here is fatal: there is no
// prior snapshot or connection set to fall back to.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	reg, err := registry.New(ctx, cfg.MetadataProvider, cfg.RoleProvider)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger, err = log.NewStdLogger(io.Discard, io.Discard, log.Error)
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		registry:   reg,
		executors:  cfg.Executors,
		federation: cfg.Federation,
		caches:     cfg.Caches,
		opts:       plan.Options{FederationEnabled: cfg.FederationEnabled},
		logger:     logger,
		tracer:     cfg.Tracer,
	}

	logger.InfoContext(ctx, "engine initialized", "tables", len(reg.GetSnapshot().Indexes.TablesByID))

	if cfg.ValidateConnections {
		if err := e.pingAll(ctx); err != nil {
			logger.ErrorContext(ctx, "initial connection validation failed", "error", err)
			return nil, err
		}
	}

	return e, nil
}

// Close attempts to close every executor and cache provider, collecting
// every failure rather than stopping at the first one. After Close,
// further Query calls fail with EXECUTOR_MISSING; a second Close is
// allowed and either succeeds or returns the same aggregated failure.
func (e *Engine) Close() *errs.Error {
	e.closed.Store(true)
	err := exec.CloseAll(e.executors, e.federation, e.caches)
	if err != nil {
		e.logger.WarnContext(context.Background(), "one or more providers failed to close", "error", err)
	}
	return err
}

// ReloadMetadata loads, validates, and atomically swaps in a new snapshot
// built from fresh metadata, keeping the current roles.
func (e *Engine) ReloadMetadata(ctx context.Context) error {
	if err := e.registry.ReloadMetadata(ctx); err != nil {
		e.logger.ErrorContext(ctx, "metadata reload failed, keeping prior snapshot", "error", err)
		return err
	}
	e.logger.InfoContext(ctx, "metadata reloaded")
	return nil
}

// ReloadRoles loads, validates, and atomically swaps in a new snapshot
// built from fresh roles, keeping the current metadata.
func (e *Engine) ReloadRoles(ctx context.Context) error {
	if err := e.registry.ReloadRoles(ctx); err != nil {
		e.logger.ErrorContext(ctx, "role reload failed, keeping prior snapshot", "error", err)
		return err
	}
	e.logger.InfoContext(ctx, "roles reloaded")
	return nil
}
