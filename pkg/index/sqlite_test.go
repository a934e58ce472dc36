package index

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestSQLiteStore(t testing.TB) *SQLiteIndexStore {
	store, err := NewSQLiteIndexStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteIndexStore_BasicOperations(t *testing.T) {
	store := newTestSQLiteStore(t)
	defer store.Close()

	ctx := context.Background()

	// Test Upsert
	entry := &IndexEntry{
		OpportunityID: 7,
		Name:          "Beach Cleanup",
		Description:   "Pick up litter along the shoreline.",
		Partner:       "Ocean Corp",
		Tags:          "beach,water",
		LocationCity:  "Santa Cruz",
		LocationState: "CA",
		Active:        true,
		UpdatedAt:     time.Now(),
	}

	if err := store.Upsert(ctx, entry); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	// Test Get
	got, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got == nil {
		t.Fatal("expected entry, got nil")
	}
	if got.Name != "Beach Cleanup" {
		t.Errorf("expected name 'Beach Cleanup', got '%s'", got.Name)
	}
	if len(got.TagList()) != 2 {
		t.Errorf("expected 2 tags, got %v", got.TagList())
	}
	if !got.Active {
		t.Error("expected entry to be active")
	}

	// Test Search
	results, err := store.Search(ctx, "shoreline", 0)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(results) != 1 || results[0] != 7 {
		t.Errorf("expected [7], got %v", results)
	}

	// Test Delete
	if err := store.Delete(ctx, 7); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	got, err = store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("failed to get after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}

	results, err = store.Search(ctx, "shoreline", 0)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results after delete, got %v", results)
	}

	// Deleting an absent entry is not an error
	if err := store.Delete(ctx, 7); err != nil {
		t.Fatalf("failed to delete absent entry: %v", err)
	}
}

func TestSQLiteIndexStore_UpsertReplacesEntry(t *testing.T) {
	store := newTestSQLiteStore(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.Upsert(ctx, &IndexEntry{OpportunityID: 1, Name: "Trail Maintenance", Partner: "Parks Trust"}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	if err := store.Upsert(ctx, &IndexEntry{OpportunityID: 1, Name: "Garden Work", Partner: "Parks Trust"}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	results, err := store.Search(ctx, "trail", 0)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected stale name to be gone, got %v", results)
	}

	results, err = store.Search(ctx, "garden", 0)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result for 'garden', got %d", len(results))
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry, got %d", count)
	}
}

func TestSQLiteIndexStore_FullTextSearch(t *testing.T) {
	store := newTestSQLiteStore(t)
	defer store.Close()

	ctx := context.Background()

	// Insert entries with searchable content
	entries := []*IndexEntry{
		{OpportunityID: 1, Name: "Beach Cleanup", Description: "Quarterly shoreline sweep.", Partner: "Ocean Corp", Tags: "water"},
		{OpportunityID: 2, Name: "Food Drive", Description: "Sort donations at the warehouse.", Partner: "Food Bank", Tags: "hunger"},
		{OpportunityID: 3, Name: "Reading Buddies", Description: "Quarterly literacy sessions.", Partner: "City Library", Tags: "education"},
	}

	for _, e := range entries {
		if err := store.Upsert(ctx, e); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"quarterly", 2},
		{"warehouse", 1},
		{"OCEAN", 1},
		{"hunger", 1},
		{"beach library", 2}, // terms are ORed
		{"beach beach", 1},
		{"volcano", 0},
		{"   ", 0},
	}

	for _, tt := range tests {
		results, err := store.Search(ctx, tt.query, 0)
		if err != nil {
			t.Fatalf("failed to search %q: %v", tt.query, err)
		}
		if len(results) != tt.want {
			t.Errorf("expected %d results for %q, got %d", tt.want, tt.query, len(results))
		}
	}

	// Limit caps the number of ids
	results, err := store.Search(ctx, "quarterly", 1)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result with limit 1, got %d", len(results))
	}
}

func TestSQLiteIndexStore_Clear(t *testing.T) {
	store := newTestSQLiteStore(t)
	defer store.Close()

	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := store.Upsert(ctx, &IndexEntry{OpportunityID: uint(i), Name: fmt.Sprintf("Shift %d", i)}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty index, got %d entries", count)
	}

	results, err := store.Search(ctx, "shift", 0)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results after clear, got %v", results)
	}
}

func TestSearchTerms(t *testing.T) {
	terms := SearchTerms(`Beach, "cleanup" beach  -Ocean`)
	want := []string{"beach", "cleanup", "ocean"}
	if len(terms) != len(want) {
		t.Fatalf("expected %v, got %v", want, terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("expected %v, got %v", want, terms)
		}
	}
}

func TestLikeSearchQuery(t *testing.T) {
	query, args := likeSearchQuery([]string{"50%_off"}, 10)
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
	if args[0] != `%50\%\_off%` {
		t.Errorf("expected escaped pattern, got %v", args[0])
	}
	if args[5] != 10 {
		t.Errorf("expected limit as last arg, got %v", args[5])
	}
	if query == "" {
		t.Error("expected query")
	}
}

func BenchmarkSQLiteIndexStore_Search(b *testing.B) {
	store := newTestSQLiteStore(b)
	defer store.Close()

	ctx := context.Background()

	// Insert 1000 entries
	for i := 0; i < 1000; i++ {
		entry := &IndexEntry{
			OpportunityID: uint(i + 1),
			Name:          fmt.Sprintf("Opportunity %d", i),
			Description:   fmt.Sprintf("Shift %d. Some shifts are outdoors, others indoors.", i),
			Partner:       fmt.Sprintf("Partner %d", i%20),
		}
		if i%10 == 0 {
			entry.Description = "This shift helps with the quarterly beach cleanup."
		}
		if err := store.Upsert(ctx, entry); err != nil {
			b.Fatalf("failed to upsert: %v", err)
		}
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, err := store.Search(ctx, "quarterly beach", DefaultSearchLimit)
		if err != nil {
			b.Fatalf("failed to search: %v", err)
		}
	}
}
