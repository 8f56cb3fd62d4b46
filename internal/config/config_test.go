package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifestd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
addr = ":9555"
warm_scopes = ["users", "repositories"]

[cache]
backend = "sqlite"
sqlite_path = "/tmp/manifestd.db"

[remote]
base_url = "https://manifests.example.test"
retry_delay = "250ms"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "manifestd" || cfg.Addr != ":9555" {
		t.Fatalf("unexpected identity: %+v", cfg)
	}
	if cfg.Cache.Backend != CacheBackendSQLite || cfg.Cache.SQLitePath != "/tmp/manifestd.db" {
		t.Fatalf("unexpected cache section: %+v", cfg.Cache)
	}
	if len(cfg.WarmScopes) != 2 {
		t.Fatalf("unexpected warm scopes: %v", cfg.WarmScopes)
	}
	timeout, delay, err := cfg.Remote.Durations()
	if err != nil {
		t.Fatalf("durations: %v", err)
	}
	if timeout != 5*time.Second || delay != 250*time.Millisecond {
		t.Fatalf("unexpected durations: timeout=%v delay=%v", timeout, delay)
	}
	if cfg.Remote.MaxAttempts != 3 {
		t.Fatalf("expected default max_attempts, got %d", cfg.Remote.MaxAttempts)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
name = "manifestd"
ttl = "1h"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key rejection")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*File)
		want   string
	}{
		{name: "backend", mutate: func(f *File) { f.Cache.Backend = "redis" }, want: "cache.backend"},
		{name: "dir", mutate: func(f *File) { f.Cache.Dir = " " }, want: "cache.dir"},
		{name: "base url", mutate: func(f *File) { f.Remote.BaseURL = "" }, want: "remote.base_url"},
		{name: "scheme", mutate: func(f *File) { f.Remote.BaseURL = "ftp://x" }, want: "http or https"},
		{name: "attempts", mutate: func(f *File) { f.Remote.MaxAttempts = 0 }, want: "max_attempts"},
		{name: "delay", mutate: func(f *File) { f.Remote.RetryDelay = "soon" }, want: "remote.retry_delay"},
		{name: "negative", mutate: func(f *File) { f.Remote.Timeout = "-1s" }, want: "negative"},
		{name: "indexer url", mutate: func(f *File) { f.Indexer.BaseURL = "tcp://indexer" }, want: "indexer.base_url"},
		{name: "indexer timeout", mutate: func(f *File) { f.Indexer.Timeout = "eventually" }, want: "indexer.timeout"},
		{name: "warm timeout", mutate: func(f *File) { f.WarmTimeout = "later" }, want: "warm_timeout"},
		{name: "warm", mutate: func(f *File) { f.WarmScopes = []string{"users", ""} }, want: "warm_scopes[1]"},
	}
	for _, tc := range tests {
		cfg := Default()
		tc.mutate(&cfg)
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestWriteTemplateRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "manifestd.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Remote.BaseURL != Default().Remote.BaseURL {
		t.Fatalf("template lost remote.base_url: %+v", cfg.Remote)
	}
}
