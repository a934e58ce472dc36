package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeElasticsearch serves the subset of the REST API the store uses
type fakeElasticsearch struct {
	mu          sync.Mutex
	indexExists bool
	docs        map[string]esDocument
	lastSearch  map[string]any
	requests    []string
}

func (f *fakeElasticsearch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.indexExists {
			w.WriteHeader(http.StatusNotFound)
		}
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.indexExists = true
		json.NewEncoder(w).Encode(map[string]any{"acknowledged": true})
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodPut:
		var doc esDocument
		json.NewDecoder(r.Body).Decode(&doc)
		f.docs[parts[2]] = doc
		w.WriteHeader(http.StatusCreated)
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodDelete:
		if _, ok := f.docs[parts[2]]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.docs, parts[2])
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodGet:
		doc, ok := f.docs[parts[2]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"found": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"found": true, "_source": doc})
	case len(parts) == 2 && parts[1] == "_search":
		json.NewDecoder(r.Body).Decode(&f.lastSearch)
		query := f.lastSearch["query"].(map[string]any)["multi_match"].(map[string]any)["query"].(string)

		var hits []map[string]any
		for id, doc := range f.docs {
			text := strings.ToLower(doc.Name + " " + doc.Description + " " + doc.Partner + " " + doc.Tags)
			for _, term := range strings.Fields(query) {
				if strings.Contains(text, term) {
					hits = append(hits, map[string]any{"_id": id})
					break
				}
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	case len(parts) == 2 && parts[1] == "_delete_by_query":
		deleted := len(f.docs)
		f.docs = make(map[string]esDocument)
		json.NewEncoder(w).Encode(map[string]any{"deleted": deleted})
	case len(parts) == 2 && parts[1] == "_count":
		json.NewEncoder(w).Encode(map[string]any{"count": len(f.docs)})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeElasticsearch) requestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.requests...)
}

func (f *fakeElasticsearch) docCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *fakeElasticsearch) search() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSearch
}

func newTestElasticsearchStore(t *testing.T) (*ElasticsearchIndexStore, *fakeElasticsearch) {
	t.Helper()

	fake := &fakeElasticsearch{docs: make(map[string]esDocument)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewElasticsearchIndexStore(ElasticsearchConfig{URL: srv.URL + "/", IndexName: "opportunities"})
	require.NoError(t, err)
	return store, fake
}

func TestElasticsearchIndexStore_CreatesIndexOnce(t *testing.T) {
	store, fake := newTestElasticsearchStore(t)
	assert.Equal(t, []string{"HEAD /opportunities", "PUT /opportunities"}, fake.requestLog())

	// A second store finds the index and does not recreate it
	_, err := NewElasticsearchIndexStore(ElasticsearchConfig{URL: store.baseURL, IndexName: "opportunities"})
	require.NoError(t, err)
	assert.Len(t, fake.requestLog(), 3)
}

func TestElasticsearchIndexStore_BasicOperations(t *testing.T) {
	store, fake := newTestElasticsearchStore(t)
	ctx := context.Background()

	entry := &IndexEntry{
		OpportunityID: 5,
		Name:          "Beach Cleanup",
		Partner:       "Ocean Corp",
		Tags:          "beach,water",
		Active:        true,
	}
	require.NoError(t, store.Upsert(ctx, entry))
	assert.Equal(t, 1, fake.docCount())

	got, err := store.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ocean Corp", got.Partner)
	assert.Equal(t, []string{"beach", "water"}, got.TagList())

	ids, err := store.Search(ctx, "volcano OCEAN", 25)
	require.NoError(t, err)
	assert.Equal(t, []uint{5}, ids)

	// Terms are ORed across weighted fields
	last := fake.search()
	mm := last["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "or", mm["operator"])
	assert.Equal(t, "volcano ocean", mm["query"])
	assert.Equal(t, float64(25), last["size"])

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.Delete(ctx, 5))
	require.NoError(t, store.Delete(ctx, 5))

	got, err = store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestElasticsearchIndexStore_EmptyQuerySkipsRequest(t *testing.T) {
	store, fake := newTestElasticsearchStore(t)

	before := len(fake.requestLog())
	ids, err := store.Search(context.Background(), "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Len(t, fake.requestLog(), before)
}

func TestElasticsearchIndexStore_Clear(t *testing.T) {
	store, fake := newTestElasticsearchStore(t)
	ctx := context.Background()

	for i := uint(1); i <= 3; i++ {
		require.NoError(t, store.Upsert(ctx, &IndexEntry{OpportunityID: i, Name: "Shift"}))
	}
	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, fake.docCount())
}

func TestElasticsearchIndexStore_ErrorsPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"cluster unavailable"}`))
	}))
	defer srv.Close()

	store, err := NewElasticsearchIndexStore(ElasticsearchConfig{URL: srv.URL})
	require.NoError(t, err)

	err = store.Upsert(context.Background(), &IndexEntry{OpportunityID: 1})
	assert.ErrorContains(t, err, "cluster unavailable")

	_, err = store.Search(context.Background(), "beach", 0)
	assert.Error(t, err)
}
