// Package server exposes the manifest resolver over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/manifestd/internal/auth"
	"github.com/danmuck/manifestd/internal/manifest"
	"github.com/danmuck/manifestd/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	Version = "0.0.1"

	HeaderResponseSource = "X-Response-Source"
	HeaderScopeRequested = "X-Scope-Requested"

	// StatusClientClosedRequest is reported when the caller went away
	// before resolution finished.
	StatusClientClosedRequest = 499

	shutdownTimeout = 5 * time.Second
)

// Resolver is the resolution contract the routes depend on.
type Resolver interface {
	Resolve(ctx context.Context, scope string) (manifest.Document, error)
}

// Searcher runs search intents against the indexer.
type Searcher interface {
	Search(ctx context.Context, params map[string]any) (json.RawMessage, error)
}

type Config struct {
	Name        string
	Addr        string
	CorsOrigins []string
	// Validator guards /manifests and /intent when set.
	Validator auth.Validator
	// Searcher serves BUSCAR intents when set.
	Searcher Searcher
	Logger   *zerolog.Logger
}

type Server struct {
	cfg      Config
	resolver Resolver
	router   *gin.Engine
	logger   zerolog.Logger
	appeared time.Time
	ready    atomic.Bool
}

func New(cfg Config, resolver Resolver) *Server {
	observability.RegisterMetrics()
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "server").Str("node", cfg.Name).Logger()

	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(cfg.CorsOrigins),
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", auth.TokenHeader, observability.RequestIDHeader},
		ExposeHeaders: []string{HeaderResponseSource, HeaderScopeRequested, observability.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		resolver: resolver,
		router:   r,
		logger:   logger,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// SetReady flips the /ready probe.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Serve listens on the configured address until ctx ends, then shuts down
// gracefully. Requests in flight when ctx ends keep their own contexts and
// are drained for up to shutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("http_listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return err
		}
		<-errCh
		s.logger.Info().Msg("http_stopped")
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
