package index

import (
	"context"
	"fmt"

	"github.com/volunteermatching/volops/pkg/types"
)

// DefaultSearchLimit caps the number of ids a search returns
const DefaultSearchLimit = 1000

// IndexStore is the storage abstraction for the opportunity search index.
// It supports both SQLite (embedded) and Elasticsearch (external) backends.
type IndexStore interface {
	// Write operations (called by the sync contract)

	// Upsert inserts or fully replaces the entry for entry.OpportunityID
	Upsert(ctx context.Context, entry *IndexEntry) error

	// Delete removes an entry. Deleting an absent entry is not an error.
	Delete(ctx context.Context, opportunityID uint) error

	// Clear removes every entry (used by rebuild)
	Clear(ctx context.Context) error

	// Read operations

	// Get retrieves a single entry, or nil if it is not indexed
	Get(ctx context.Context, opportunityID uint) (*IndexEntry, error)

	// Search returns ids of entries matching any term of query, best match
	// first. At most limit ids are returned.
	Search(ctx context.Context, query string, limit int) ([]uint, error)

	// Count returns the number of indexed entries
	Count(ctx context.Context) (int64, error)

	// Lifecycle

	// Close closes the store and releases resources
	Close() error
}

// NewIndexStore opens the backend selected by cfg.Backend
func NewIndexStore(cfg types.IndexConfig) (IndexStore, error) {
	switch cfg.Backend {
	case "", types.IndexBackendSQLite:
		path := cfg.SQLite.Path
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteIndexStore(path)
	case types.IndexBackendElasticsearch:
		return NewElasticsearchIndexStore(ElasticsearchConfig{
			URL:       cfg.Elasticsearch.URL,
			IndexName: cfg.Elasticsearch.IndexName,
			Timeout:   cfg.Elasticsearch.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown index backend: %s", cfg.Backend)
	}
}
