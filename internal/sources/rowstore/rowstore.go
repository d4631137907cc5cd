// Package rowstore wraps a pgx/v5 connection pool as the row-store family
// Executor, adapted from the teacher's internal/sources/postgres pool
// construction and internal/sources/clickhouse's init/ping/close shape.
package rowstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orbitquery/queryengine/internal/sources"
	"go.opentelemetry.io/otel/trace"
)

const Kind = "rowstore"

// Config is the connection configuration for one row-store database.
type Config struct {
	DatabaseID string
	Host       string
	Port       string
	Database   string
	User       string
	Password   string
}

// DSN builds the libpq connection string pgxpool.ParseConfig expects.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s",
		c.Host, c.Port, c.Database, c.User, c.Password)
}

// Open establishes the pool and pings it once, matching the teacher's
// Initialize-then-ping sequence in clickhouse.go/trino.go.
func Open(ctx context.Context, tracer trace.Tracer, cfg Config) (*Source, error) {
	ctx, span := sources.StartSpan(ctx, tracer, Kind, cfg.DatabaseID, "connect")
	defer span.End()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("rowstore: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("rowstore: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("rowstore: ping: %w", err)
	}
	return &Source{id: cfg.DatabaseID, pool: pool}, nil
}

var _ sources.Executor = (*Source)(nil)

// Source is the row-store Executor backed by a pgxpool.Pool.
type Source struct {
	id   string
	pool *pgxpool.Pool
}

func (s *Source) DatabaseID() string { return s.id }

func (s *Source) Execute(ctx context.Context, sql string, params []any) ([]sources.Row, error) {
	rows, err := s.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []sources.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(sources.Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Source) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Source) Close() error {
	s.pool.Close()
	return nil
}
