package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/manifestd/internal/auth"
	"github.com/danmuck/manifestd/internal/indexer"
	"github.com/danmuck/manifestd/internal/intent"
	"github.com/danmuck/manifestd/internal/manifest"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ManifestInfo struct {
	Source                string `json:"source"`
	ScopeRequested        string `json:"scope_requested"`
	RetrievedManifestName string `json:"retrieved_manifest_name"`
}

type IntentResponse struct {
	Status          string            `json:"status"`
	Message         string            `json:"message"`
	Intent          intent.Request    `json:"intent"`
	ManifestInfo    ManifestInfo      `json:"manifest_info"`
	Manifest        manifest.Document `json:"manifest"`
	AppliedFilters  map[string]any    `json:"applied_filters"`
	RequestedFormat string            `json:"requested_format"`
	SearchResult    json.RawMessage   `json:"search_result"`
}

func (s *Server) registerRoutes() {
	r := s.router

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "manifestd: universal manifest entry point",
			"service": s.cfg.Name,
			"version": Version,
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.Name,
			"version": Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   s.ready.Load(),
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.Name,
			"version": Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded := r.Group("")
	if s.cfg.Validator != nil {
		guarded.Use(auth.Middleware(s.cfg.Validator))
	}
	guarded.GET("/manifests/:scope", s.handleManifest)
	guarded.POST("/intent", s.handleIntent)
}

func (s *Server) handleManifest(c *gin.Context) {
	scope := c.Param("scope")
	doc, err := s.resolver.Resolve(c.Request.Context(), scope)
	if err != nil {
		s.writeError(c, err)
		return
	}
	setProvenanceHeaders(c, doc)
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleIntent(c *gin.Context) {
	var req intent.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid intent: %v", err)})
		return
	}
	req, err := intent.Normalize(req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	doc, err := s.resolver.Resolve(c.Request.Context(), req.Scope)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var result json.RawMessage
	if req.Action == intent.ActionSearch && s.cfg.Searcher != nil {
		result, err = s.cfg.Searcher.Search(c.Request.Context(), req.Parameters)
		if err != nil {
			s.writeError(c, err)
			return
		}
	}
	if result == nil {
		result = json.RawMessage("null")
	}

	setProvenanceHeaders(c, doc)
	c.JSON(http.StatusOK, IntentResponse{
		Status:  "ok",
		Message: fmt.Sprintf("action %q processed for scope %q", req.Action, req.Scope),
		Intent:  req,
		ManifestInfo: ManifestInfo{
			Source:                doc.Provenance.String(),
			ScopeRequested:        req.Scope,
			RetrievedManifestName: doc.Payload.Name,
		},
		Manifest:        doc,
		AppliedFilters:  req.Parameters,
		RequestedFormat: req.ResponseFormat,
		SearchResult:    result,
	})
}

func setProvenanceHeaders(c *gin.Context, doc manifest.Document) {
	c.Header(HeaderResponseSource, doc.Provenance.String())
	c.Header(HeaderScopeRequested, doc.Scope)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request_failed")
	}
	body := gin.H{"error": err.Error()}
	if scope, ok := manifest.ScopeOf(err); ok {
		body["scope"] = scope
	}
	c.JSON(status, body)
}

// StatusFor maps a resolution error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, manifest.ErrInvalidScope), errors.Is(err, intent.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, manifest.ErrManifestUnavailable):
		return http.StatusNotFound
	case errors.Is(err, manifest.ErrCancelled):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return StatusClientClosedRequest
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, indexer.ErrSearchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
