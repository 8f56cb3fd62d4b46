package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/manifestd/internal/manifest"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps one row per scope in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts options
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		return nil, fmt.Errorf("cache: sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite", resolved)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite %q: %w", resolved, err)
	}
	// One connection serialises writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:   db,
		path: resolved,
		opts: buildOptions("sqlite", opts),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: init sqlite schema: %w", err)
	}
	return store, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		return err
	}
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		scope TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the cached document for scope, mapping failures to a miss.
func (s *SQLiteStore) Load(scope string) (manifest.Document, bool) {
	doc, ok, err := s.Read(scope)
	if err != nil {
		s.opts.logger.Warn().Str("scope", scope).Err(err).Msg("cache_read_failed")
		return manifest.Document{}, false
	}
	return doc, ok
}

// Read is Load with the failure surfaced as an ErrCacheRead ScopeError.
func (s *SQLiteStore) Read(scope string) (manifest.Document, bool, error) {
	var (
		raw     string
		savedAt int64
	)
	err := s.db.QueryRow(
		`SELECT payload, saved_at FROM cache_entries WHERE scope = ?`,
		scope,
	).Scan(&raw, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return manifest.Document{}, false, nil
	}
	if err != nil {
		return manifest.Document{}, false, manifest.NewScopeError(manifest.ErrCacheRead, scope, err)
	}
	e, err := decodeEntry(scope, []byte(raw))
	if err != nil {
		return manifest.Document{}, false, manifest.NewScopeError(manifest.ErrCacheRead, scope, err)
	}
	e.SavedAt = time.Unix(0, savedAt).UTC()
	return e.Document(), true, nil
}

// Save records doc under scope, logging and discarding any failure.
func (s *SQLiteStore) Save(scope string, doc manifest.Document) {
	if err := s.Write(scope, doc); err != nil {
		s.opts.logger.Warn().Str("scope", scope).Err(err).Msg("cache_write_failed")
	}
}

// Write is Save with the failure surfaced as an ErrCacheWrite ScopeError.
func (s *SQLiteStore) Write(scope string, doc manifest.Document) error {
	if strings.TrimSpace(scope) == "" {
		return manifest.NewScopeError(manifest.ErrCacheWrite, scope, manifest.ErrInvalidScope)
	}
	if doc.Payload.IsZero() {
		return manifest.NewScopeError(manifest.ErrCacheWrite, scope, errEmptyPayload)
	}
	savedAt := s.opts.now().UTC()
	data, err := encodeEntry(Entry{Scope: scope, Payload: doc.Payload, SavedAt: savedAt})
	if err != nil {
		return manifest.NewScopeError(manifest.ErrCacheWrite, scope, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO cache_entries (scope, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		scope, string(data), savedAt.UnixNano(),
	)
	if err != nil {
		return manifest.NewScopeError(manifest.ErrCacheWrite, scope, err)
	}
	return nil
}

// Delete removes the row for scope if present.
func (s *SQLiteStore) Delete(scope string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE scope = ?`, scope)
	return err
}
