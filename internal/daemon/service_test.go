package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/manifestd/internal/config"
	"github.com/danmuck/manifestd/internal/manifest"
	"github.com/danmuck/manifestd/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := strings.TrimPrefix(r.URL.Path, "/manifests/")
		_ = json.NewEncoder(w).Encode(manifest.Payload{Name: "svc-" + scope, Version: "1.2.3"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) ServiceConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultServiceConfig()
	cfg.Name = "manifestd-test"
	cfg.Addr = "127.0.0.1:0"
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.SQLitePath = filepath.Join(dir, "cache.db")
	cfg.FallbackPath = filepath.Join(dir, "fallback.yaml")
	cfg.Remote.BaseURL = baseURL
	cfg.Remote.RetryDelay = time.Millisecond
	return cfg
}

func TestDefaultServiceConfigMatchesFileDefaults(t *testing.T) {
	cfg := DefaultServiceConfig()
	def := config.Default()
	assert.Equal(t, def.Name, cfg.Name)
	assert.Equal(t, def.Addr, cfg.Addr)
	assert.Equal(t, config.CacheBackendFile, cfg.CacheBackend)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Remote.RetryDelay)
	assert.Equal(t, 3, cfg.Remote.MaxAttempts)
}

func TestNewServiceResolvesThroughBackends(t *testing.T) {
	testlog.Start(t)

	srv := providerServer(t)
	for _, backend := range []string{config.CacheBackendFile, config.CacheBackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, srv.URL)
			cfg.CacheBackend = backend

			svc, err := NewServiceWithConfig(cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = svc.Close() })

			doc, err := svc.Resolver().Resolve(context.Background(), "users")
			require.NoError(t, err)
			assert.Equal(t, manifest.ProvenanceNetwork, doc.Provenance)
			assert.Equal(t, "svc-users", doc.Payload.Name)

			doc, err = svc.Resolver().Resolve(context.Background(), "users")
			require.NoError(t, err)
			assert.Equal(t, manifest.ProvenanceCache, doc.Provenance)
		})
	}
}

func TestNewServiceFallbackFromYAML(t *testing.T) {
	testlog.Start(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	yaml := "scope: template\npayload:\n  name: static-readme\n  version: 0.0.1\n"
	require.NoError(t, os.WriteFile(cfg.FallbackPath, []byte(yaml), 0o644))

	svc, err := NewServiceWithConfig(cfg)
	require.NoError(t, err)
	defer svc.Close()

	doc, err := svc.Resolver().Resolve(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, manifest.ProvenanceFallback, doc.Provenance)
	assert.Equal(t, "billing", doc.Scope)
	assert.Equal(t, "static-readme", doc.Payload.Name)
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.CacheBackend = "redis"
	_, err := NewServiceWithConfig(cfg)
	require.True(t, errors.Is(err, ErrUnknownCacheBackend), "got %v", err)

	cfg = testConfig(t, "")
	_, err = NewServiceWithConfig(cfg)
	require.Error(t, err)

	cfg = testConfig(t, "http://127.0.0.1:1")
	cfg.WarmTimeout = -time.Second
	_, err = NewServiceWithConfig(cfg)
	require.True(t, errors.Is(err, ErrInvalidWarmTimeout), "got %v", err)
}

func TestRunWarmsScopesAndStopsOnCancel(t *testing.T) {
	testlog.Start(t)

	srv := providerServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.WarmScopes = []string{"users", "repositories"}

	svc, err := NewServiceWithConfig(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, svc.Server().Ready, 3*time.Second, 10*time.Millisecond)
	for _, scope := range cfg.WarmScopes {
		doc, ok := svc.Cache().Load(scope)
		require.True(t, ok, "scope %s not warmed", scope)
		assert.Equal(t, "svc-"+scope, doc.Payload.Name)
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop")
	}
}

func TestBlankRetryDelayKeepsDefaultSpacing(t *testing.T) {
	testlog.Start(t)

	file := config.Default()
	file.Remote.RetryDelay = ""
	file.Remote.Timeout = ""
	file.Cache.Dir = filepath.Join(t.TempDir(), "cache")
	require.NoError(t, config.Validate(file))

	cfg, err := FromFile(file)
	require.NoError(t, err)
	svc, err := NewServiceWithConfig(cfg)
	require.NoError(t, err)
	defer svc.Close()

	policy := svc.Fetcher().Policy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, policy.Delay)
}

func TestNewServiceForwardsSearchToIndexer(t *testing.T) {
	testlog.Start(t)

	var gotQuery string
	idx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":1}`))
	}))
	t.Cleanup(idx.Close)

	cfg := testConfig(t, providerServer(t).URL)
	cfg.Indexer.BaseURL = idx.URL
	svc, err := NewServiceWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	body := `{"action":"buscar","scope":"users","parameters":{"lang":"go"}}`
	req := httptest.NewRequest(http.MethodPost, "/intent", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	svc.Server().HTTPRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "lang=go", gotQuery)
	var resp struct {
		SearchResult json.RawMessage `json:"search_result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.JSONEq(t, `{"hits":1}`, string(resp.SearchResult))
}

func TestNewServiceRejectsBadIndexerURL(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Indexer.BaseURL = "tcp://indexer"
	_, err := NewServiceWithConfig(cfg)
	require.Error(t, err)
}
