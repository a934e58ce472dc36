package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const entryColumns = `opportunity_id, name, description, partner, tags, location_city, location_state, location_zip, active, updated_at`

// Weights used to rank matches, by column
const (
	weightName        = 3
	weightPartner     = 2
	weightTags        = 1
	weightDescription = 1
	weightLocation    = 1
)

// SQLiteIndexStore implements IndexStore using SQLite with FTS5 for full-text search.
// This is the default embedded store that requires no external dependencies.
type SQLiteIndexStore struct {
	db                *sql.DB
	useFallbackSearch bool // true if FTS5 is not available
}

// NewSQLiteIndexStore creates a new SQLite-backed index store.
// The dbPath should be a path to the SQLite database file.
// Use ":memory:" for an in-memory database (useful for testing).
// If the file doesn't exist, it will be created along with parent directories.
func NewSQLiteIndexStore(dbPath string) (*SQLiteIndexStore, error) {
	inMemory := strings.HasPrefix(dbPath, ":memory:")

	// Create parent directories if needed (skip for in-memory databases)
	if !inMemory {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create index directory %s: %w", dir, err)
			}
		}
		log.Info().Str("path", dbPath).Msg("opening sqlite index store")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// Every connection to :memory: opens a fresh database
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteIndexStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite db: %w", err)
	}

	return store, nil
}

// migrate creates the necessary tables and indexes
func (s *SQLiteIndexStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			opportunity_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			partner TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			location_city TEXT NOT NULL DEFAULT '',
			location_state TEXT NOT NULL DEFAULT '',
			location_zip TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create entries table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	// Try to create FTS5 virtual table for full-text search
	// If FTS5 is not available, we'll fall back to LIKE-based search
	_, err = s.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			name,
			description,
			partner,
			tags,
			location_city,
			content=entries,
			content_rowid=opportunity_id,
			tokenize='porter unicode61'
		)
	`)
	if err != nil {
		// FTS5 not available, log and continue with fallback search
		log.Warn().Err(err).Msg("FTS5 not available, using fallback search")
		s.useFallbackSearch = true
		return nil
	}

	// Triggers to keep FTS in sync
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, name, description, partner, tags, location_city)
			VALUES (new.opportunity_id, new.name, new.description, new.partner, new.tags, new.location_city);
		END`,
		`CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, name, description, partner, tags, location_city)
			VALUES ('delete', old.opportunity_id, old.name, old.description, old.partner, old.tags, old.location_city);
		END`,
		`CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, name, description, partner, tags, location_city)
			VALUES ('delete', old.opportunity_id, old.name, old.description, old.partner, old.tags, old.location_city);
			INSERT INTO entries_fts(rowid, name, description, partner, tags, location_city)
			VALUES (new.opportunity_id, new.name, new.description, new.partner, new.tags, new.location_city);
		END`,
	}

	for _, trigger := range triggers {
		if _, err := s.db.Exec(trigger); err != nil {
			return fmt.Errorf("failed to create FTS trigger: %w", err)
		}
	}

	return nil
}

// Upsert inserts or replaces the entry for an opportunity
func (s *SQLiteIndexStore) Upsert(ctx context.Context, entry *IndexEntry) error {
	updatedAt := entry.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(opportunity_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			partner = excluded.partner,
			tags = excluded.tags,
			location_city = excluded.location_city,
			location_state = excluded.location_state,
			location_zip = excluded.location_zip,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, entry.OpportunityID, entry.Name, entry.Description, entry.Partner, entry.Tags,
		entry.LocationCity, entry.LocationState, entry.LocationZip, entry.Active, updatedAt.Unix())

	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

// Delete removes an entry from the index
func (s *SQLiteIndexStore) Delete(ctx context.Context, opportunityID uint) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE opportunity_id = ?`, opportunityID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// Clear removes all entries
func (s *SQLiteIndexStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

// Get retrieves a single entry by opportunity id
func (s *SQLiteIndexStore) Get(ctx context.Context, opportunityID uint) (*IndexEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE opportunity_id = ?
	`, opportunityID)

	var entry IndexEntry
	var updatedAt int64
	err := row.Scan(
		&entry.OpportunityID, &entry.Name, &entry.Description, &entry.Partner, &entry.Tags,
		&entry.LocationCity, &entry.LocationState, &entry.LocationZip, &entry.Active, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	entry.UpdatedAt = time.Unix(updatedAt, 0)
	return &entry, nil
}

// Search returns ids of entries matching any term, best match first
func (s *SQLiteIndexStore) Search(ctx context.Context, query string, limit int) ([]uint, error) {
	terms := SearchTerms(query)
	if len(terms) == 0 {
		return []uint{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	log.Debug().Str("query", query).Strs("terms", terms).Bool("fallback", s.useFallbackSearch).Msg("searching index")

	var rows *sql.Rows
	var err error

	if s.useFallbackSearch {
		sqlQuery, args := likeSearchQuery(terms, limit)
		rows, err = s.db.QueryContext(ctx, sqlQuery, args...)
	} else {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT rowid
			FROM entries_fts
			WHERE entries_fts MATCH ?
			ORDER BY bm25(entries_fts, %d.0, %d.0, %d.0, %d.0, %d.0), rowid
			LIMIT ?
		`, weightName, weightDescription, weightPartner, weightTags, weightLocation), ftsQuery(terms), limit)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer rows.Close()

	ids := []uint{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		ids = append(ids, uint(id))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ids, nil
}

// Count returns the number of indexed entries
func (s *SQLiteIndexStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Close closes the store and releases resources
func (s *SQLiteIndexStore) Close() error {
	return s.db.Close()
}

// ftsQuery ORs quoted prefix terms: "beach"* OR "ocean"*
func ftsQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = "\"" + strings.ReplaceAll(term, "\"", "\"\"") + "\"*"
	}
	return strings.Join(quoted, " OR ")
}

// likeSearchQuery builds the fallback query. Each term adds the weights of
// the columns it appears in; rows scoring zero are excluded.
func likeSearchQuery(terms []string, limit int) (string, []any) {
	columns := []struct {
		name   string
		weight int
	}{
		{"name", weightName},
		{"partner", weightPartner},
		{"tags", weightTags},
		{"description", weightDescription},
		{"location_city", weightLocation},
	}

	var parts []string
	var args []any
	for _, term := range terms {
		like := "%" + escapeLike(term) + "%"
		for _, col := range columns {
			parts = append(parts, fmt.Sprintf("(%s LIKE ? ESCAPE '\\') * %d", col.name, col.weight))
			args = append(args, like)
		}
	}

	score := strings.Join(parts, " + ")
	query := fmt.Sprintf(`
		SELECT opportunity_id FROM (
			SELECT opportunity_id, %s AS score FROM entries
		)
		WHERE score > 0
		ORDER BY score DESC, opportunity_id
		LIMIT ?
	`, score)
	args = append(args, limit)

	return query, args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	return strings.ReplaceAll(s, "_", "\\_")
}
