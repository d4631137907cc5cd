package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProviderHealth is the ping outcome for one executor or cache provider.
type ProviderHealth struct {
	Healthy   bool
	LatencyMs float64
	Error     string
}

// Health is the aggregated outcome of HealthCheck.
type Health struct {
	Healthy        bool
	Executors      map[string]ProviderHealth
	CacheProviders map[string]ProviderHealth
}

// pingAll pings every executor and cache provider concurrently, returning
// the first error encountered (used at construction time, when any failed
// ping is fatal rather than merely reported).
func (e *Engine) pingAll(ctx context.Context) error {
	var g errgroup.Group
	for _, ex := range e.executors {
		ex := ex
		g.Go(func() error { return ex.Ping(ctx) })
	}
	if e.federation != nil {
		g.Go(func() error { return e.federation.Ping(ctx) })
	}
	for _, c := range e.caches {
		c := c
		g.Go(func() error { return c.Ping(ctx) })
	}
	return g.Wait()
}

// HealthCheck pings every executor and cache provider concurrently and
// reports per-provider health alongside the overall healthy flag.
func (e *Engine) HealthCheck(ctx context.Context) Health {
	executors := make(map[string]ProviderHealth, len(e.executors)+1)
	caches := make(map[string]ProviderHealth, len(e.caches))

	var g errgroup.Group
	type probe struct {
		id     string
		ping   func(context.Context) error
		target map[string]ProviderHealth
	}
	var probes []probe
	for id, ex := range e.executors {
		probes = append(probes, probe{id: id, ping: ex.Ping, target: executors})
	}
	if e.federation != nil {
		probes = append(probes, probe{id: "federation", ping: e.federation.Ping, target: executors})
	}
	for id, c := range e.caches {
		probes = append(probes, probe{id: id, ping: c.Ping, target: caches})
	}

	results := make([]ProviderHealth, len(probes))
	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			err := p.ping(ctx)
			latency := float64(time.Since(start).Microseconds()) / 1000
			if err != nil {
				results[i] = ProviderHealth{Healthy: false, LatencyMs: latency, Error: err.Error()}
				e.logger.WarnContext(ctx, "provider ping failed", "provider", p.id, "error", err)
			} else {
				results[i] = ProviderHealth{Healthy: true, LatencyMs: latency}
			}
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	for i, p := range probes {
		p.target[p.id] = results[i]
		if !results[i].Healthy {
			healthy = false
		}
	}

	e.logger.DebugContext(ctx, "health check complete", "healthy", healthy, "providers", len(probes))
	return Health{Healthy: healthy, Executors: executors, CacheProviders: caches}
}
