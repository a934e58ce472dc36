package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ElasticsearchIndexStore implements IndexStore using Elasticsearch.
// This is the scalable backend for large deployments.
type ElasticsearchIndexStore struct {
	baseURL    string
	indexName  string
	httpClient *http.Client
}

// ElasticsearchConfig holds configuration for the Elasticsearch store
type ElasticsearchConfig struct {
	URL       string // e.g., "http://localhost:9200"
	IndexName string // e.g., "opportunities"
	Timeout   time.Duration
}

// NewElasticsearchIndexStore creates a new Elasticsearch-backed index store
func NewElasticsearchIndexStore(cfg ElasticsearchConfig) (*ElasticsearchIndexStore, error) {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:9200"
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "opportunities"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	store := &ElasticsearchIndexStore{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		indexName: cfg.IndexName,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}

	if err := store.ensureIndex(); err != nil {
		return nil, fmt.Errorf("failed to ensure index: %w", err)
	}

	return store, nil
}

// ensureIndex creates the index with appropriate mappings if it doesn't exist
func (s *ElasticsearchIndexStore) ensureIndex() error {
	// Check if index exists
	resp, err := s.httpClient.Head(s.indexURL())
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil // Index exists
	}

	// Create index with mappings
	mapping := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"analysis": map[string]any{
				"analyzer": map[string]any{
					"content_analyzer": map[string]any{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "porter_stem"},
					},
					"tag_analyzer": map[string]any{
						"type":    "pattern",
						"pattern": ",",
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"opportunity_id": map[string]any{"type": "long"},
				"name":           map[string]any{"type": "text", "analyzer": "content_analyzer"},
				"description":    map[string]any{"type": "text", "analyzer": "content_analyzer"},
				"partner":        map[string]any{"type": "text", "analyzer": "content_analyzer"},
				"tags":           map[string]any{"type": "text", "analyzer": "tag_analyzer"},
				"location_city":  map[string]any{"type": "text", "analyzer": "content_analyzer"},
				"location_state": map[string]any{"type": "keyword"},
				"location_zip":   map[string]any{"type": "keyword"},
				"active":         map[string]any{"type": "boolean"},
				"updated_at":     map[string]any{"type": "date"},
			},
		},
	}

	resp, err = s.do(context.Background(), http.MethodPut, s.indexURL(), mapping)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to create index: %s", string(respBody))
	}

	log.Info().Str("index", s.indexName).Msg("created elasticsearch index")
	return nil
}

func (s *ElasticsearchIndexStore) indexURL() string {
	return s.baseURL + "/" + s.indexName
}

func (s *ElasticsearchIndexStore) docURL(opportunityID uint) string {
	return fmt.Sprintf("%s/_doc/%d", s.indexURL(), opportunityID)
}

// do sends a JSON request. A nil payload sends no body.
func (s *ElasticsearchIndexStore) do(ctx context.Context, method, url string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return s.httpClient.Do(req)
}

// Upsert inserts or replaces the entry for an opportunity. The write is
// visible to search before the call returns.
func (s *ElasticsearchIndexStore) Upsert(ctx context.Context, entry *IndexEntry) error {
	doc := esDocument{
		OpportunityID: entry.OpportunityID,
		Name:          entry.Name,
		Description:   entry.Description,
		Partner:       entry.Partner,
		Tags:          entry.Tags,
		LocationCity:  entry.LocationCity,
		LocationState: entry.LocationState,
		LocationZip:   entry.LocationZip,
		Active:        entry.Active,
		UpdatedAt:     entry.UpdatedAt.UTC().Format(time.RFC3339),
	}

	resp, err := s.do(ctx, http.MethodPut, s.docURL(entry.OpportunityID)+"?refresh=wait_for", doc)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to upsert entry: %s", string(respBody))
	}

	return nil
}

// Delete removes an entry from the index
func (s *ElasticsearchIndexStore) Delete(ctx context.Context, opportunityID uint) error {
	resp, err := s.do(ctx, http.MethodDelete, s.docURL(opportunityID)+"?refresh=wait_for", nil)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	defer resp.Body.Close()

	// 404 is ok - entry didn't exist
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to delete entry: %s", string(respBody))
	}

	return nil
}

// Clear removes all entries
func (s *ElasticsearchIndexStore) Clear(ctx context.Context) error {
	query := map[string]any{
		"query": map[string]any{
			"match_all": map[string]any{},
		},
	}

	resp, err := s.do(ctx, http.MethodPost, s.indexURL()+"/_delete_by_query?refresh=true&conflicts=proceed", query)
	if err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to clear entries: %s", string(respBody))
	}

	return nil
}

// Get retrieves a single entry by opportunity id
func (s *ElasticsearchIndexStore) Get(ctx context.Context, opportunityID uint) (*IndexEntry, error) {
	resp, err := s.do(ctx, http.MethodGet, s.docURL(opportunityID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to get entry: %s", string(respBody))
	}

	var result struct {
		Found  bool       `json:"found"`
		Source esDocument `json:"_source"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	if !result.Found {
		return nil, nil
	}

	return result.Source.toIndexEntry(), nil
}

// Search returns ids of entries matching any term, best match first
func (s *ElasticsearchIndexStore) Search(ctx context.Context, queryStr string, limit int) ([]uint, error) {
	terms := SearchTerms(queryStr)
	if len(terms) == 0 {
		return []uint{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	log.Debug().Str("query", queryStr).Msg("searching elasticsearch index")

	query := map[string]any{
		"size":    limit,
		"_source": false,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":    strings.Join(terms, " "),
				"fields":   []string{"name^3", "partner^2", "tags", "description", "location_city"},
				"type":     "most_fields",
				"operator": "or",
			},
		},
		"sort": []any{
			"_score",
			map[string]any{"opportunity_id": "asc"},
		},
	}

	resp, err := s.do(ctx, http.MethodPost, s.indexURL()+"/_search", query)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to search: %s", string(respBody))
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	ids := make([]uint, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			log.Warn().Str("id", hit.ID).Msg("skipping search hit with non-numeric id")
			continue
		}
		ids = append(ids, uint(id))
	}

	return ids, nil
}

// Count returns the number of indexed entries
func (s *ElasticsearchIndexStore) Count(ctx context.Context) (int64, error) {
	resp, err := s.do(ctx, http.MethodGet, s.indexURL()+"/_count", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("failed to count entries: %s", string(respBody))
	}

	var result struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode count: %w", err)
	}

	return result.Count, nil
}

// Close closes the store (no-op for HTTP client)
func (s *ElasticsearchIndexStore) Close() error {
	return nil
}

// esDocument represents a document in Elasticsearch
type esDocument struct {
	OpportunityID uint   `json:"opportunity_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Partner       string `json:"partner"`
	Tags          string `json:"tags"`
	LocationCity  string `json:"location_city"`
	LocationState string `json:"location_state"`
	LocationZip   string `json:"location_zip"`
	Active        bool   `json:"active"`
	UpdatedAt     string `json:"updated_at"`
}

// toIndexEntry converts an Elasticsearch document to an IndexEntry
func (d *esDocument) toIndexEntry() *IndexEntry {
	updatedAt, _ := time.Parse(time.RFC3339, d.UpdatedAt)

	return &IndexEntry{
		OpportunityID: d.OpportunityID,
		Name:          d.Name,
		Description:   d.Description,
		Partner:       d.Partner,
		Tags:          d.Tags,
		LocationCity:  d.LocationCity,
		LocationState: d.LocationState,
		LocationZip:   d.LocationZip,
		Active:        d.Active,
		UpdatedAt:     updatedAt,
	}
}
