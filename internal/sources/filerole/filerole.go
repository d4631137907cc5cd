// Package filerole loads a []Role document from a YAML file, decoded with
// goccy/go-yaml, the RoleProvider counterpart to filemeta.
package filerole

import (
	"context"
	"fmt"
	"os"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-yaml"
	"github.com/orbitquery/queryengine/internal/registry"
)

// wireGrant is the on-disk shape of one table grant: allowedColumns and
// maskedColumns are plain string lists, but allowedColumns may instead be
// the literal "*" meaning every column.
type wireGrant struct {
	TableID        string   `yaml:"tableId"`
	AllowedColumns any      `yaml:"allowedColumns,omitempty"`
	MaskedColumns  []string `yaml:"maskedColumns,omitempty"`
}

// wireRole is the on-disk shape of one role: tables may be the literal "*"
// meaning every table, every column, or an explicit grant list.
type wireRole struct {
	ID     string `yaml:"id"`
	Tables any    `yaml:"tables"`
}

// Provider loads a []Role from a file path, retrying a failed read with
// bounded backoff before surfacing an error the registry wraps in
// errs.NewProviderError.
type Provider struct {
	Path       string
	MaxRetries uint
}

// Load reads and decodes the role document, retrying transient read/decode
// failures with exponential backoff; a malformed document is permanent and
// is not retried.
func (p Provider) Load(ctx context.Context) ([]registry.Role, error) {
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	roles, err := backoff.Retry(ctx, p.loadOnce,
		backoff.WithMaxTries(maxRetries), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return nil, fmt.Errorf("filerole: load %s: %w", p.Path, err)
	}
	return roles, nil
}

func (p Provider) loadOnce() ([]registry.Role, error) {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, err
	}
	var wire []wireRole
	if err := yaml.Unmarshal(raw, &wire); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode: %w", err))
	}

	roles := make([]registry.Role, 0, len(wire))
	for _, wr := range wire {
		role := registry.Role{ID: wr.ID}
		if s, ok := wr.Tables.(string); ok && s == "*" {
			role.AllTables = true
		} else if list, ok := wr.Tables.([]any); ok {
			for _, item := range list {
				grant, err := decodeGrant(item)
				if err != nil {
					return nil, backoff.Permanent(fmt.Errorf("role %s: %w", wr.ID, err))
				}
				role.Tables = append(role.Tables, grant)
			}
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func decodeGrant(item any) (registry.RoleTableGrant, error) {
	raw, err := yaml.Marshal(item)
	if err != nil {
		return registry.RoleTableGrant{}, err
	}
	var wg wireGrant
	if err := yaml.Unmarshal(raw, &wg); err != nil {
		return registry.RoleTableGrant{}, err
	}

	grant := registry.RoleTableGrant{TableID: wg.TableID, MaskedColumns: wg.MaskedColumns}
	switch cols := wg.AllowedColumns.(type) {
	case string:
		if cols == "*" {
			grant.AllColumns = true
		}
	case []any:
		for _, c := range cols {
			if s, ok := c.(string); ok {
				grant.AllowedColumns = append(grant.AllowedColumns, s)
			}
		}
	}
	return grant, nil
}
