package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/manifestd/internal/manifest"
	"github.com/danmuck/manifestd/internal/observability"
	"github.com/danmuck/manifestd/internal/retry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrBaseURLRequired = errors.New("remote: base url required")

const (
	maxBodyBytes   = 4 << 20
	maxErrorBody   = 512
	manifestsRoute = "/manifests/"
)

// Config describes how to reach the manifest provider.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	UserAgent   string
}

func DefaultConfig() Config {
	return Config{
		Timeout:     5 * time.Second,
		MaxAttempts: retry.DefaultMaxAttempts,
		RetryDelay:  retry.DefaultDelay,
		UserAgent:   "manifestd/0.0.1",
	}
}

// WithDefaults fills unset fields from DefaultConfig. A zero RetryDelay is
// unset; the delay between attempts is never zero.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = d.UserAgent
	}
	return c
}

// Fetcher retrieves manifests from the provider with bounded fixed-delay retry.
type Fetcher struct {
	cfg     Config
	baseURL *url.URL
	client  *http.Client
	policy  retry.Policy
	logger  zerolog.Logger
	now     func() time.Time
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFetcher validates cfg and builds a fetcher.
func NewFetcher(cfg Config, opts ...Option) (*Fetcher, error) {
	cfg = cfg.WithDefaults()
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, ErrBaseURLRequired
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url %q must be http or https", raw)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	f := &Fetcher{
		cfg:     cfg,
		baseURL: base,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  log.Logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With().Str("component", "remote").Logger()
	f.policy = retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Delay:       cfg.RetryDelay,
		Retryable:   IsTransient,
	}
	return f, nil
}

// Policy returns the retry policy in effect.
func (f *Fetcher) Policy() retry.Policy {
	return f.policy
}

// ManifestURL returns the provider URL for scope.
func (f *Fetcher) ManifestURL(scope string) string {
	u := *f.baseURL
	u.Path = f.baseURL.Path + manifestsRoute + scope
	u.RawPath = f.baseURL.EscapedPath() + manifestsRoute + url.PathEscape(scope)
	return u.String()
}

// FetchWithRetry fetches scope, retrying transient failures per the policy.
// The returned error is a manifest.ScopeError of kind ErrTransientNetwork,
// ErrRemoteRejected or ErrCancelled.
func (f *Fetcher) FetchWithRetry(ctx context.Context, scope string) (manifest.Document, error) {
	var doc manifest.Document
	policy := f.policy
	policy.OnAttempt = func(attempt int, err error) {
		outcome := f.outcome(ctx, err)
		observability.RecordFetchAttempt(outcome)
		if err == nil {
			f.logger.Debug().Str("scope", scope).Int("attempt", attempt).Msg("fetch_succeeded")
			return
		}
		f.logger.Warn().
			Str("scope", scope).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Str("outcome", outcome).
			Err(err).
			Msg("fetch_attempt_failed")
	}

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		got, err := f.Fetch(ctx, scope)
		if err != nil {
			return err
		}
		doc = got
		return nil
	})
	if err == nil {
		return doc, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return manifest.Document{}, manifest.NewScopeError(manifest.ErrCancelled, scope, ctxErr)
	}
	return manifest.Document{}, err
}

// Fetch performs a single attempt without retry.
func (f *Fetcher) Fetch(ctx context.Context, scope string) (manifest.Document, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return manifest.Document{}, manifest.NewScopeError(manifest.ErrCancelled, scope, ctxErr)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ManifestURL(scope), nil)
	if err != nil {
		return manifest.Document{}, manifest.NewScopeError(manifest.ErrRemoteRejected, scope, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return manifest.Document{}, f.classify(ctx, scope, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return manifest.Document{}, manifest.NewScopeError(manifest.ErrRemoteRejected, scope, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return manifest.Document{}, f.classify(ctx, scope, err)
	}
	payload, err := decodePayload(body)
	if err != nil {
		return manifest.Document{}, manifest.NewScopeError(manifest.ErrRemoteRejected, scope, err)
	}
	return manifest.Document{
		Scope:      scope,
		Payload:    payload,
		Provenance: manifest.ProvenanceNetwork,
		FetchedAt:  f.now().UTC(),
	}, nil
}

// classify maps a transport failure onto the error taxonomy.
func (f *Fetcher) classify(ctx context.Context, scope string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return manifest.NewScopeError(manifest.ErrCancelled, scope, ctxErr)
	}
	if IsTransient(err) {
		return manifest.NewScopeError(manifest.ErrTransientNetwork, scope, err)
	}
	// Deterministic transport failures (bad TLS, unsupported scheme) count as
	// a rejection.
	return manifest.NewScopeError(manifest.ErrRemoteRejected, scope, err)
}

func (f *Fetcher) outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return observability.FetchSuccess
	case ctx.Err() != nil || errors.Is(err, manifest.ErrCancelled):
		return observability.FetchCancelled
	case IsTransient(err):
		return observability.FetchTransient
	default:
		return observability.FetchRejected
	}
}

func decodePayload(body []byte) (manifest.Payload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return manifest.Payload{}, fmt.Errorf("remote: empty manifest body")
	}
	var payload manifest.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return manifest.Payload{}, fmt.Errorf("remote: decode manifest: %w", err)
	}
	if payload.IsZero() {
		return manifest.Payload{}, fmt.Errorf("remote: manifest payload has no fields")
	}
	return payload, nil
}
