package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/manifestd/internal/auth"
	"github.com/danmuck/manifestd/internal/cache"
	"github.com/danmuck/manifestd/internal/config"
	"github.com/danmuck/manifestd/internal/fallback"
	"github.com/danmuck/manifestd/internal/indexer"
	"github.com/danmuck/manifestd/internal/remote"
	"github.com/danmuck/manifestd/internal/resolver"
	"github.com/danmuck/manifestd/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownCacheBackend = errors.New("daemon: unknown cache backend")
	ErrInvalidWarmTimeout  = errors.New("daemon: invalid warm timeout")
)

// ServiceConfig configures the manifestd process.
type ServiceConfig struct {
	Name        string
	Addr        string
	CorsOrigins []string
	AuthToken   string
	WarmScopes  []string
	WarmTimeout time.Duration

	CacheBackend string
	CacheDir     string
	SQLitePath   string
	FallbackPath string

	Remote remote.Config
	// Indexer is optional; a blank BaseURL disables search forwarding.
	Indexer indexer.Config
}

// DefaultServiceConfig mirrors config.Default.
func DefaultServiceConfig() ServiceConfig {
	cfg, err := FromFile(config.Default())
	if err != nil {
		panic(fmt.Sprintf("daemon: default config invalid: %v", err))
	}
	return cfg
}

// FromFile converts a decoded config file into a ServiceConfig.
func FromFile(f config.File) (ServiceConfig, error) {
	timeout, delay, err := f.Remote.Durations()
	if err != nil {
		return ServiceConfig{}, err
	}
	warmTimeout, err := f.WarmDuration()
	if err != nil {
		return ServiceConfig{}, err
	}
	indexerTimeout, err := f.Indexer.TimeoutDuration()
	if err != nil {
		return ServiceConfig{}, err
	}
	return ServiceConfig{
		Name:         strings.TrimSpace(f.Name),
		Addr:         strings.TrimSpace(f.Addr),
		CorsOrigins:  append([]string(nil), f.CorsOrigins...),
		AuthToken:    f.AuthToken,
		WarmScopes:   append([]string(nil), f.WarmScopes...),
		WarmTimeout:  warmTimeout,
		CacheBackend: strings.TrimSpace(f.Cache.Backend),
		CacheDir:     strings.TrimSpace(f.Cache.Dir),
		SQLitePath:   strings.TrimSpace(f.Cache.SQLitePath),
		FallbackPath: strings.TrimSpace(f.Fallback.Path),
		Remote: remote.Config{
			BaseURL:     strings.TrimSpace(f.Remote.BaseURL),
			Timeout:     timeout,
			MaxAttempts: f.Remote.MaxAttempts,
			RetryDelay:  delay,
		},
		Indexer: indexer.Config{
			BaseURL: strings.TrimSpace(f.Indexer.BaseURL),
			Timeout: indexerTimeout,
		},
	}, nil
}

// Service owns the tiers, the resolver and the HTTP server for one process.
type Service struct {
	cfg      ServiceConfig
	cache    resolver.Cache
	closer   io.Closer
	fetcher  *remote.Fetcher
	resolver *resolver.Resolver
	server   *server.Server
	logger   zerolog.Logger
}

// NewServiceWithConfig provisions storage and wires the pipeline once.
func NewServiceWithConfig(cfg ServiceConfig) (*Service, error) {
	if cfg.WarmTimeout < 0 {
		return nil, ErrInvalidWarmTimeout
	}
	logger := log.Logger.With().Str("service", cfg.Name).Logger()

	store, closer, err := openCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	fetcher, err := remote.NewFetcher(cfg.Remote, remote.WithLogger(logger))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	fb := fallback.NewStore(cfg.FallbackPath, logger)
	res := resolver.New(store, fetcher, fb, resolver.WithLogger(logger))

	srvCfg := server.Config{
		Name:        cfg.Name,
		Addr:        cfg.Addr,
		CorsOrigins: cfg.CorsOrigins,
		Logger:      &logger,
	}
	if token := strings.TrimSpace(cfg.AuthToken); token != "" {
		srvCfg.Validator = auth.StaticToken{Token: token}
	}
	if strings.TrimSpace(cfg.Indexer.BaseURL) != "" {
		search, err := indexer.NewClient(cfg.Indexer, indexer.WithLogger(logger))
		if err != nil {
			if closer != nil {
				_ = closer.Close()
			}
			return nil, err
		}
		srvCfg.Searcher = search
	}

	return &Service{
		cfg:      cfg,
		cache:    store,
		closer:   closer,
		fetcher:  fetcher,
		resolver: res,
		server:   server.New(srvCfg, res),
		logger:   logger,
	}, nil
}

func openCache(cfg ServiceConfig, logger zerolog.Logger) (resolver.Cache, io.Closer, error) {
	switch strings.TrimSpace(cfg.CacheBackend) {
	case "", config.CacheBackendFile:
		store, err := cache.NewFileStore(cfg.CacheDir, cache.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.CacheBackendSQLite:
		store, err := cache.OpenSQLiteStore(cfg.SQLitePath, cache.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownCacheBackend, cfg.CacheBackend)
	}
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}

func (s *Service) Resolver() *resolver.Resolver {
	return s.resolver
}

func (s *Service) Fetcher() *remote.Fetcher {
	return s.fetcher
}

func (s *Service) Server() *server.Server {
	return s.server
}

func (s *Service) Cache() resolver.Cache {
	return s.cache
}

// Run serves HTTP until ctx ends. Configured scopes are warmed in the
// background; /ready reports true once warming finishes.
func (s *Service) Run(ctx context.Context) error {
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.server.Serve(gctx)
	})
	g.Go(func() error {
		s.warm(gctx)
		s.server.SetReady(gctx.Err() == nil)
		return nil
	})
	err := g.Wait()
	s.logger.Info().Err(err).Msg("service_stopped")
	return err
}

func (s *Service) warm(ctx context.Context) {
	if len(s.cfg.WarmScopes) == 0 {
		return
	}
	if s.cfg.WarmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WarmTimeout)
		defer cancel()
	}
	for _, res := range s.resolver.Warm(ctx, s.cfg.WarmScopes) {
		if res.Err != nil {
			s.logger.Warn().Str("scope", res.Scope).Err(res.Err).Msg("warm_failed")
			continue
		}
		s.logger.Debug().Str("scope", res.Scope).Str("provenance", res.Provenance.String()).Msg("warm_resolved")
	}
}

// Close releases storage handles.
func (s *Service) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
