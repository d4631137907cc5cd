// Package filemeta loads a MetadataConfig document from a YAML file,
// decoded with goccy/go-yaml and checked with go-playground/validator
// struct tags, the same combination the teacher's source Config types use
// for their own YAML decoding.
package filemeta

import (
	"context"
	"fmt"
	"os"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/orbitquery/queryengine/internal/registry"
)

var validate = validator.New()

// Provider loads a MetadataConfig from a file path, retrying a failed
// read/decode with bounded backoff before surfacing an error the registry
// wraps in errs.NewProviderError.
type Provider struct {
	Path       string
	MaxRetries uint
}

// Load reads and decodes the metadata document, retrying transient
// read/decode failures with exponential backoff; a validation failure is
// permanent and is not retried. The return type matches
// registry.MetadataProvider directly so a Provider can be handed to
// registry.New without an adapter.
func (p Provider) Load(ctx context.Context) (registry.MetadataConfig, error) {
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	cfg, err := backoff.Retry(ctx, p.loadOnce,
		backoff.WithMaxTries(maxRetries), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return registry.MetadataConfig{}, fmt.Errorf("filemeta: load %s: %w", p.Path, err)
	}
	return cfg, nil
}

func (p Provider) loadOnce() (registry.MetadataConfig, error) {
	var cfg registry.MetadataConfig

	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, backoff.Permanent(err)
	}
	return cfg, nil
}
