package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	CacheBackendFile   = "file"
	CacheBackendSQLite = "sqlite"
)

type File struct {
	Name        string         `toml:"name"`
	Addr        string         `toml:"addr"`
	CorsOrigins []string       `toml:"cors_origins"`
	AuthToken   string         `toml:"auth_token"`
	WarmScopes  []string       `toml:"warm_scopes"`
	WarmTimeout string         `toml:"warm_timeout"`
	Cache       CacheConfig    `toml:"cache"`
	Fallback    FallbackConfig `toml:"fallback"`
	Remote      RemoteConfig   `toml:"remote"`
	Indexer     IndexerConfig  `toml:"indexer"`
}

type CacheConfig struct {
	Backend    string `toml:"backend"`
	Dir        string `toml:"dir"`
	SQLitePath string `toml:"sqlite_path"`
}

type FallbackConfig struct {
	Path string `toml:"path"`
}

type RemoteConfig struct {
	BaseURL     string `toml:"base_url"`
	Timeout     string `toml:"timeout"`
	MaxAttempts int    `toml:"max_attempts"`
	RetryDelay  string `toml:"retry_delay"`
}

// IndexerConfig points search intents at the indexer API. A blank base_url
// disables search forwarding.
type IndexerConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

func Default() File {
	return File{
		Name:        "manifestd",
		Addr:        ":9300",
		CorsOrigins: []string{"http://localhost:3000"},
		WarmTimeout: "30s",
		Cache: CacheConfig{
			Backend:    CacheBackendFile,
			Dir:        "local_data/cache",
			SQLitePath: "local_data/cache.db",
		},
		Fallback: FallbackConfig{Path: "local_data/fallback.json"},
		Remote: RemoteConfig{
			BaseURL:     "http://localhost:9400",
			Timeout:     "5s",
			MaxAttempts: 3,
			RetryDelay:  "2s",
		},
		Indexer: IndexerConfig{
			BaseURL: "",
			Timeout: "5s",
		},
	}
}

// Load reads path strictly: unknown keys are an error. Unset keys keep
// their Default values.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return File{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return File{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg File) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("config missing addr")
	}
	switch strings.TrimSpace(cfg.Cache.Backend) {
	case CacheBackendFile:
		if strings.TrimSpace(cfg.Cache.Dir) == "" {
			return fmt.Errorf("cache.dir is required for the file backend")
		}
	case CacheBackendSQLite:
		if strings.TrimSpace(cfg.Cache.SQLitePath) == "" {
			return fmt.Errorf("cache.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", CacheBackendFile, CacheBackendSQLite, cfg.Cache.Backend)
	}
	if err := validateBaseURL("remote.base_url", cfg.Remote.BaseURL); err != nil {
		return err
	}
	if cfg.Remote.MaxAttempts < 1 {
		return fmt.Errorf("remote.max_attempts must be >= 1")
	}
	if _, _, err := cfg.Remote.Durations(); err != nil {
		return err
	}
	if _, err := parseDuration("warm_timeout", cfg.WarmTimeout); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Indexer.BaseURL) != "" {
		if err := validateBaseURL("indexer.base_url", cfg.Indexer.BaseURL); err != nil {
			return err
		}
	}
	if _, err := parseDuration("indexer.timeout", cfg.Indexer.Timeout); err != nil {
		return err
	}
	for i, scope := range cfg.WarmScopes {
		if strings.TrimSpace(scope) == "" {
			return fmt.Errorf("warm_scopes[%d] is blank", i)
		}
	}
	return nil
}

func validateBaseURL(key, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be http or https", key)
	}
	return nil
}
