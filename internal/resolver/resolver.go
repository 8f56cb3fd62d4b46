// Package resolver produces manifest documents through the ordered chain
// cache, remote provider, static fallback, and stamps each result with the
// tier that produced it.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/manifestd/internal/manifest"
	"github.com/danmuck/manifestd/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultWarmConcurrency = 4

// Cache is the local tier. Load reports found=false for missing or unusable
// entries; Save failures are handled by the implementation.
type Cache interface {
	Load(scope string) (manifest.Document, bool)
	Save(scope string, doc manifest.Document)
}

// Fetcher is the remote tier.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, scope string) (manifest.Document, error)
}

// Fallback is the last-resort tier.
type Fallback interface {
	Load() (manifest.Document, bool)
}

// Resolver orchestrates the tiers. It holds no state of its own and is safe
// for concurrent use.
type Resolver struct {
	cache    Cache
	fetcher  Fetcher
	fallback Fallback

	logger          zerolog.Logger
	now             func() time.Time
	warmConcurrency int
}

type Option func(*Resolver)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithWarmConcurrency bounds how many scopes Warm resolves at once.
func WithWarmConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.warmConcurrency = n
		}
	}
}

// New wires the tiers. A nil tier is skipped during resolution.
func New(cache Cache, fetcher Fetcher, fallback Fallback, opts ...Option) *Resolver {
	r := &Resolver{
		cache:           cache,
		fetcher:         fetcher,
		fallback:        fallback,
		logger:          log.Logger,
		now:             time.Now,
		warmConcurrency: defaultWarmConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "resolver").Logger()
	return r
}

// Resolve returns the manifest for scope.
//
// A cached entry is returned without touching the network. On a cache miss
// the remote provider is consulted and a successful result is written back
// to the cache. When the provider cannot produce a document the fallback is
// returned with its scope replaced by the requested one. Errors are
// manifest.ScopeError values of kind ErrInvalidScope, ErrCancelled or
// ErrManifestUnavailable.
func (r *Resolver) Resolve(ctx context.Context, scope string) (manifest.Document, error) {
	start := r.now()
	doc, outcome, err := r.resolve(ctx, scope)
	observability.RecordResolve(outcome, r.now().Sub(start))
	return doc, err
}

func (r *Resolver) resolve(ctx context.Context, raw string) (manifest.Document, string, error) {
	scope, err := manifest.NormalizeScope(raw)
	if err != nil {
		return manifest.Document{}, observability.ResolveInvalid, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return manifest.Document{}, observability.ResolveCancelled, manifest.NewScopeError(manifest.ErrCancelled, scope, ctxErr)
	}

	if r.cache != nil {
		if doc, ok := r.cache.Load(scope); ok {
			doc.Scope = scope
			doc = doc.Stamped(manifest.ProvenanceCache)
			r.logger.Debug().Str("scope", scope).Str("provenance", doc.Provenance.String()).Msg("manifest_resolved")
			return doc, doc.Provenance.String(), nil
		}
	}

	var fetchErr error
	if r.fetcher != nil {
		doc, err := r.fetcher.FetchWithRetry(ctx, scope)
		if err == nil {
			doc.Scope = scope
			doc = doc.Stamped(manifest.ProvenanceNetwork)
			if doc.FetchedAt.IsZero() {
				doc.FetchedAt = r.now().UTC()
			}
			if r.cache != nil {
				r.cache.Save(scope, doc)
			}
			r.logger.Debug().Str("scope", scope).Str("provenance", doc.Provenance.String()).Msg("manifest_resolved")
			return doc, doc.Provenance.String(), nil
		}
		fetchErr = err
	}

	// Cancellation is reported as such; fallback data must not mask it.
	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(fetchErr, manifest.ErrCancelled) {
		if ctxErr == nil {
			ctxErr = context.Canceled
		}
		return manifest.Document{}, observability.ResolveCancelled, manifest.NewScopeError(manifest.ErrCancelled, scope, ctxErr)
	}

	if r.fallback != nil {
		if doc, ok := r.fallback.Load(); ok {
			doc.Scope = scope
			doc = doc.Stamped(manifest.ProvenanceFallback)
			if doc.FetchedAt.IsZero() {
				doc.FetchedAt = r.now().UTC()
			}
			r.logger.Warn().Str("scope", scope).Err(fetchErr).Msg("manifest_served_from_fallback")
			return doc, doc.Provenance.String(), nil
		}
	}

	r.logger.Error().Str("scope", scope).Err(fetchErr).Msg("manifest_unavailable")
	return manifest.Document{}, observability.ResolveUnavailable, manifest.NewScopeError(manifest.ErrManifestUnavailable, scope, fetchErr)
}

// WarmResult reports the outcome of warming one scope.
type WarmResult struct {
	Scope      string
	Provenance manifest.Provenance
	Err        error
}

// Warm resolves scopes concurrently so their entries land in the cache.
// Results keep the order of scopes; failures are reported per scope.
func (r *Resolver) Warm(ctx context.Context, scopes []string) []WarmResult {
	results := make([]WarmResult, len(scopes))
	var g errgroup.Group
	g.SetLimit(r.warmConcurrency)
	for i, scope := range scopes {
		g.Go(func() error {
			doc, err := r.Resolve(ctx, scope)
			results[i] = WarmResult{Scope: scope, Provenance: doc.Provenance, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	r.logger.Info().Int("scopes", len(scopes)).Int("failed", failed).Msg("cache_warmed")
	return results
}
