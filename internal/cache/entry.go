package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/manifestd/internal/manifest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Entry is the persisted record for one scope.
type Entry struct {
	Scope   string           `json:"scope"`
	Payload manifest.Payload `json:"payload"`
	SavedAt time.Time        `json:"saved_at"`
}

// Document converts the entry into a cache-tier document.
func (e Entry) Document() manifest.Document {
	return manifest.Document{
		Scope:      e.Scope,
		Payload:    e.Payload,
		Provenance: manifest.ProvenanceCache,
		FetchedAt:  e.SavedAt,
	}
}

var errEmptyPayload = errors.New("entry has empty payload")

type options struct {
	logger zerolog.Logger
	now    func() time.Time
}

// Option customises a store at construction.
type Option func(*options)

// WithLogger sets the logger used for swallowed read/write failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the clock used to stamp SavedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(backend string, opts []Option) options {
	o := options{
		logger: log.Logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With().Str("component", "cache").Str("backend", backend).Logger()
	return o
}

func encodeEntry(e Entry) ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// decodeEntry parses a stored record and checks it belongs to scope and
// carries a payload.
func decodeEntry(scope string, data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	if e.Scope != scope {
		return Entry{}, fmt.Errorf("entry scope mismatch: stored=%q", e.Scope)
	}
	if e.Payload.IsZero() {
		return Entry{}, errEmptyPayload
	}
	return e, nil
}
