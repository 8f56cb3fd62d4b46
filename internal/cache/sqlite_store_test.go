package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/danmuck/manifestd/internal/manifest"
	"github.com/danmuck/manifestd/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "nested", "cache.db"), WithClock(fixedClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreSaveLoadOverwrite(t *testing.T) {
	testlog.Start(t)
	store := openTestSQLite(t)

	_, ok := store.Load("repositories")
	assert.False(t, ok, "empty store must miss")

	store.Save("repositories", manifest.Document{Payload: samplePayload("v1")})
	store.Save("repositories", manifest.Document{Payload: samplePayload("v2")})

	doc, ok := store.Load("repositories")
	require.True(t, ok)
	assert.Equal(t, "repositories", doc.Scope)
	assert.Equal(t, samplePayload("v2"), doc.Payload)
	assert.Equal(t, manifest.ProvenanceCache, doc.Provenance)
	assert.True(t, doc.FetchedAt.Equal(fixedClock()()))
}

func TestSQLiteStoreCorruptRowIsMiss(t *testing.T) {
	testlog.Start(t)
	store := openTestSQLite(t)

	_, err := store.db.Exec(`INSERT INTO cache_entries (scope, payload, saved_at) VALUES (?, ?, ?)`, "broken", "{not json", 0)
	require.NoError(t, err)

	_, ok := store.Load("broken")
	assert.False(t, ok)
	_, _, err = store.Read("broken")
	assert.ErrorIs(t, err, manifest.ErrCacheRead)
}

func TestSQLiteStoreRejectsEmptyWrites(t *testing.T) {
	testlog.Start(t)
	store := openTestSQLite(t)

	assert.ErrorIs(t, store.Write("", manifest.Document{Payload: samplePayload("x")}), manifest.ErrCacheWrite)
	assert.ErrorIs(t, store.Write("users", manifest.Document{}), manifest.ErrCacheWrite)

	require.NoError(t, store.Write("users", manifest.Document{Payload: samplePayload("users")}))
	require.NoError(t, store.Delete("users"))
	_, ok := store.Load("users")
	assert.False(t, ok)
}

func TestSQLiteStoreConcurrentDistinctScopes(t *testing.T) {
	testlog.Start(t)
	store := openTestSQLite(t)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scope := fmt.Sprintf("scope-%02d", i)
			store.Save(scope, manifest.Document{Payload: samplePayload(scope)})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		scope := fmt.Sprintf("scope-%02d", i)
		doc, ok := store.Load(scope)
		require.True(t, ok, scope)
		assert.Equal(t, scope, doc.Payload.Name)
	}
}
