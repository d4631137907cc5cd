// Package columnar wraps clickhouse-go/v2's database/sql driver as the
// columnar family Executor, adapted directly from the teacher's
// internal/sources/clickhouse/clickhouse.go pool construction.
package columnar

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/orbitquery/queryengine/internal/sources"
	"go.opentelemetry.io/otel/trace"
)

const Kind = "columnar"

// Config is the connection configuration for one columnar database.
type Config struct {
	DatabaseID string
	Host       string
	Port       string
	Database   string
	User       string
	Password   string
	Protocol   string // "http" or "https"; defaults to "https"
	Secure     bool
}

// Open establishes the pool and pings it once, mirroring
// initClickHouseConnectionPool's sequence in the teacher.
func Open(ctx context.Context, tracer trace.Tracer, cfg Config) (*Source, error) {
	ctx, span := sources.StartSpan(ctx, tracer, Kind, cfg.DatabaseID, "connect")
	defer span.End()

	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "https"
	}
	if protocol != "http" && protocol != "https" {
		return nil, fmt.Errorf("columnar: invalid protocol %q, must be http or https", protocol)
	}

	scheme := protocol
	if protocol == "http" && cfg.Secure {
		scheme = "https"
	}
	dsn := fmt.Sprintf("%s://%s:%s@%s:%s/%s",
		scheme, url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password), cfg.Host, cfg.Port, cfg.Database)
	if scheme == "https" {
		dsn += "?secure=true&skip_verify=false"
	}

	pool, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("columnar: sql.Open: %w", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("columnar: ping: %w", err)
	}
	return &Source{id: cfg.DatabaseID, pool: pool}, nil
}

var _ sources.Executor = (*Source)(nil)

// Source is the columnar Executor backed by database/sql over ClickHouse.
type Source struct {
	id   string
	pool *sql.DB
}

func (s *Source) DatabaseID() string { return s.id }

func (s *Source) Execute(ctx context.Context, query string, params []any) ([]sources.Row, error) {
	rows, err := s.pool.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []sources.Row
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		values := make([]any, len(cols))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		row := make(sources.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Source) Ping(ctx context.Context) error {
	return s.pool.PingContext(ctx)
}

func (s *Source) Close() error {
	return s.pool.Close()
}
