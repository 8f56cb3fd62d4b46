package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/manifestd/internal/daemon"
)

// manifestd config.toml key mapping to daemon runtime settings.
type fileConfig struct {
	Name        string   `toml:"name"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	AuthToken   string   `toml:"auth_token"`
	WarmScopes  []string `toml:"warm_scopes"`
	WarmTimeout string   `toml:"warm_timeout"`

	Cache struct {
		Backend    string `toml:"backend"`
		Dir        string `toml:"dir"`
		SQLitePath string `toml:"sqlite_path"`
	} `toml:"cache"`

	Fallback struct {
		Path string `toml:"path"`
	} `toml:"fallback"`

	Remote struct {
		BaseURL     string `toml:"base_url"`
		Timeout     string `toml:"timeout"`
		MaxAttempts int    `toml:"max_attempts"`
		RetryDelay  string `toml:"retry_delay"`
	} `toml:"remote"`

	Indexer struct {
		BaseURL string `toml:"base_url"`
		Timeout string `toml:"timeout"`
	} `toml:"indexer"`
}

// loadServiceConfig overlays the keys defined in path onto the daemon
// defaults. An empty path yields the defaults.
func loadServiceConfig(path string) (daemon.ServiceConfig, error) {
	cfg := daemon.DefaultServiceConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemon.ServiceConfig{}, fmt.Errorf("load manifestd config: %w", err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}
	if meta.IsDefined("warm_scopes") {
		cfg.WarmScopes = normalizeList(raw.WarmScopes)
	}
	if meta.IsDefined("warm_timeout") {
		if cfg.WarmTimeout, err = parseDuration("warm_timeout", raw.WarmTimeout); err != nil {
			return daemon.ServiceConfig{}, err
		}
	}

	if meta.IsDefined("cache", "backend") {
		cfg.CacheBackend = strings.TrimSpace(raw.Cache.Backend)
	}
	if meta.IsDefined("cache", "dir") {
		cfg.CacheDir = strings.TrimSpace(raw.Cache.Dir)
	}
	if meta.IsDefined("cache", "sqlite_path") {
		cfg.SQLitePath = strings.TrimSpace(raw.Cache.SQLitePath)
	}
	if meta.IsDefined("fallback", "path") {
		cfg.FallbackPath = strings.TrimSpace(raw.Fallback.Path)
	}

	if meta.IsDefined("remote", "base_url") {
		cfg.Remote.BaseURL = strings.TrimSpace(raw.Remote.BaseURL)
	}
	if meta.IsDefined("remote", "timeout") {
		if cfg.Remote.Timeout, err = parseDuration("remote.timeout", raw.Remote.Timeout); err != nil {
			return daemon.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("remote", "max_attempts") {
		if raw.Remote.MaxAttempts < 1 {
			return daemon.ServiceConfig{}, fmt.Errorf("remote.max_attempts must be >= 1")
		}
		cfg.Remote.MaxAttempts = raw.Remote.MaxAttempts
	}
	if meta.IsDefined("remote", "retry_delay") {
		if cfg.Remote.RetryDelay, err = parseDuration("remote.retry_delay", raw.Remote.RetryDelay); err != nil {
			return daemon.ServiceConfig{}, err
		}
	}

	if meta.IsDefined("indexer", "base_url") {
		cfg.Indexer.BaseURL = strings.TrimSpace(raw.Indexer.BaseURL)
	}
	if meta.IsDefined("indexer", "timeout") {
		if cfg.Indexer.Timeout, err = parseDuration("indexer.timeout", raw.Indexer.Timeout); err != nil {
			return daemon.ServiceConfig{}, err
		}
	}

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
