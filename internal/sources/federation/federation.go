// Package federation wraps trino-go-client's database/sql driver as the
// federation engine Executor, adapted directly from the teacher's
// internal/sources/trino/trino.go DSN construction and pool setup.
package federation

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/orbitquery/queryengine/internal/sources"
	_ "github.com/trinodb/trino-go-client/trino"
	"go.opentelemetry.io/otel/trace"
)

const Kind = "federation"

// Config is the connection configuration for the federation engine.
type Config struct {
	DatabaseID      string
	Host            string
	Port            string
	User            string
	Password        string
	Catalog         string
	Schema          string
	QueryTimeout    string
	AccessToken     string
	KerberosEnabled bool
	SSLEnabled      bool
}

// Open establishes the pool and pings it once, mirroring
// initTrinoConnectionPool's sequence in the teacher.
func Open(ctx context.Context, tracer trace.Tracer, cfg Config) (*Source, error) {
	ctx, span := sources.StartSpan(ctx, tracer, Kind, cfg.DatabaseID, "connect")
	defer span.End()

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("federation: build dsn: %w", err)
	}
	pool, err := sql.Open("trino", dsn)
	if err != nil {
		return nil, fmt.Errorf("federation: sql.Open: %w", err)
	}
	pool.SetMaxOpenConns(10)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(time.Hour)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("federation: ping: %w", err)
	}
	return &Source{id: cfg.DatabaseID, pool: pool}, nil
}

func buildDSN(cfg Config) (string, error) {
	query := url.Values{}
	query.Set("catalog", cfg.Catalog)
	query.Set("schema", cfg.Schema)
	if cfg.QueryTimeout != "" {
		query.Set("queryTimeout", cfg.QueryTimeout)
	}
	if cfg.AccessToken != "" {
		query.Set("accessToken", cfg.AccessToken)
	}
	if cfg.KerberosEnabled {
		query.Set("KerberosEnabled", "true")
	}

	scheme := "http"
	if cfg.SSLEnabled {
		scheme = "https"
	}
	u := &url.URL{
		Scheme:   scheme,
		Host:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}
	if cfg.User != "" && cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}
	return u.String(), nil
}

var _ sources.Executor = (*Source)(nil)

// Source is the federation Executor backed by database/sql over Trino.
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
