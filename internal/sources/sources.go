// Package sources defines the provider contracts the engine consumes
// (backend executors, cache providers, metadata/role loaders) and a shared
// tracing helper, adapted from the connection-pool instrumentation the
// teacher's individual source packages (clickhouse, trino, ...) each call
// into.
package sources

import (
	"context"

	"github.com/orbitquery/queryengine/internal/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Row is a single result row keyed by the SQL alias convention the
// generating dialect used (tAlias__physicalName for row-store/federation,
// tAlias.physicalName for columnar).
type Row map[string]any

// Executor is the contract a concrete backend driver implements to serve
// direct, materialized, and federated plans.
type Executor interface {
	DatabaseID() string
	Execute(ctx context.Context, sql string, params []any) ([]Row, error)
	Ping(ctx context.Context) error
	Close() error
}

// CacheEntry is a decoded cache hit, already in logical-name form.
type CacheEntry map[string]any

// Cache is the contract a key-value cache provider implements to serve
// cache-strategy plans.
type Cache interface {
	CacheID() string
	GetMany(ctx context.Context, keys []string) (map[string]CacheEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// MetadataProvider loads the metadata document the registry indexes; this
// mirrors registry.MetadataProvider so a concrete provider (filemeta, or
// another source the adapter layer supplies) satisfies both without a
// wrapper.
type MetadataProvider interface {
	Load(ctx context.Context) (registry.MetadataConfig, error)
}

// RoleProvider loads the role document the registry indexes.
type RoleProvider interface {
	Load(ctx context.Context) ([]registry.Role, error)
}

// StartSpan opens a span for one suspension point (connect, execute, ping,
// close, provider load), adapted from the teacher's
// sources.InitConnectionSpan helper used by clickhouse.go and trino.go.
func StartSpan(ctx context.Context, tracer trace.Tracer, kind, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "queryengine.sources."+op,
		trace.WithAttributes(
			attribute.String("source.kind", kind),
			attribute.String("source.name", name),
		),
	)
}
