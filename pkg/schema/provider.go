package schema

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"gopkg.in/yaml.v3"
)

const defaultCacheTTL = 5 * time.Minute

// Provider supplies column descriptors and dataset context for a dataset.
// Read-only; queried once per request.
type Provider interface {
	Fetch(ctx context.Context, datasetID string) ([]Column, Context, error)
}

type dataset struct {
	Columns []Column
	Context Context
}

// CachedProvider wraps a Provider with a TTL cache so repeated requests for
// the same dataset do not hit the underlying store.
type CachedProvider struct {
	inner Provider
	cache *ttlcache.Cache[string, dataset]
}

// NewCachedProvider wraps inner with a cache. A non-positive ttl uses the
// default of 5 minutes.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedProvider{
		inner: inner,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, dataset](ttl),
		),
	}
}

// Fetch returns the cached dataset descriptor, fetching on miss.
func (p *CachedProvider) Fetch(ctx context.Context, datasetID string) ([]Column, Context, error) {
	if item := p.cache.Get(datasetID); item != nil {
		ds := item.Value()
		return ds.Columns, ds.Context, nil
	}

	cols, dctx, err := p.inner.Fetch(ctx, datasetID)
	if err != nil {
		return nil, Context{}, err
	}

	p.cache.Set(datasetID, dataset{Columns: cols, Context: dctx}, ttlcache.DefaultTTL)
	return cols, dctx, nil
}

// fileDescriptor is the on-disk YAML shape of a dataset descriptor.
type fileDescriptor struct {
	Dataset string   `yaml:"dataset"`
	Table   string   `yaml:"table"`
	Columns []Column `yaml:"columns"`
	Context Context  `yaml:"context"`
}

// FileProvider loads dataset descriptors from YAML files. Used by the CLI,
// where datasetID is a path to a descriptor file.
type FileProvider struct{}

// Fetch reads and parses the YAML descriptor at path.
func (FileProvider) Fetch(_ context.Context, path string) ([]Column, Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Context{}, fmt.Errorf("failed to read dataset descriptor: %w", err)
	}

	var fd fileDescriptor
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return nil, Context{}, fmt.Errorf("failed to parse dataset descriptor: %w", err)
	}
	if len(fd.Columns) == 0 {
		return nil, Context{}, fmt.Errorf("dataset descriptor %s has no columns", path)
	}

	return fd.Columns, fd.Context, nil
}

// TableRef reads only the table reference from a YAML descriptor.
func TableRef(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read dataset descriptor: %w", err)
	}
	var fd fileDescriptor
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return "", fmt.Errorf("failed to parse dataset descriptor: %w", err)
	}
	if fd.Table == "" {
		return "", fmt.Errorf("dataset descriptor %s has no table reference", path)
	}
	return fd.Table, nil
}
