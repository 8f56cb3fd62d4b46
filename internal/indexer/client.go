// Package indexer forwards search intents to the external indexer API.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/manifestd/internal/remote"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBaseURLRequired = errors.New("indexer: base url required")
	ErrSearchFailed    = errors.New("indexer: search failed")
)

const (
	searchRoute    = "/search"
	maxResultBytes = 4 << 20
	maxErrorBody   = 512
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = "manifestd/0.0.1"
	}
	return c
}

// Client issues GET {base_url}/search with intent parameters as the query.
type Client struct {
	cfg     Config
	baseURL *url.URL
	client  *http.Client
	logger  zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, ErrBaseURLRequired
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("indexer: parse base url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("indexer: base url %q must be http or https", raw)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	c := &Client{
		cfg:     cfg,
		baseURL: base,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "indexer").Logger()
	return c, nil
}

// SearchURL returns the search endpoint with params encoded as the query.
func (c *Client) SearchURL(params map[string]any) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + searchRoute
	u.RawQuery = encodeParams(params).Encode()
	return u.String()
}

// Search runs one search. Failures other than caller cancellation wrap
// ErrSearchFailed; a non-2xx answer also carries a *remote.StatusError.
func (c *Client) Search(ctx context.Context, params map[string]any) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SearchURL(params), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn().Err(err).Msg("search_request_failed")
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &remote.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		c.logger.Warn().Int("status", resp.StatusCode).Msg("search_rejected")
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, statusErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: read body: %w", ErrSearchFailed, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not json", ErrSearchFailed)
	}
	return json.RawMessage(body), nil
}

func encodeParams(params map[string]any) url.Values {
	values := url.Values{}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		switch v := params[key].(type) {
		case nil:
		case string:
			values.Add(key, v)
		case []any:
			for _, item := range v {
				values.Add(key, fmt.Sprint(item))
			}
		case []string:
			for _, item := range v {
				values.Add(key, item)
			}
		default:
			values.Add(key, fmt.Sprint(v))
		}
	}
	return values
}
