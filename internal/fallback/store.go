// Package fallback serves the single static manifest used when neither the
// cache nor the remote provider can produce one.
package fallback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/manifestd/internal/manifest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("fallback: unsupported document format")

// Format is the on-disk encoding of the fallback document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from the file extension. Files without a
// recognised extension are read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Document is the fallback file shape: a template scope plus the payload.
type Document struct {
	Scope   string           `json:"scope,omitempty" yaml:"scope,omitempty"`
	Payload manifest.Payload `json:"payload" yaml:"payload"`
}

// Store reads the fallback document from a read-only file provisioned at
// deploy time.
type Store struct {
	path   string
	format Format
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore binds a store to path. The file is not required to exist yet.
func NewStore(path string, logger zerolog.Logger) *Store {
	resolved := strings.TrimSpace(path)
	return &Store{
		path:   resolved,
		format: FormatFor(resolved),
		logger: logger.With().Str("component", "fallback").Str("path", resolved).Logger(),
		now:    time.Now,
	}
}

// NewDefaultStore binds a store to path using the global logger.
func NewDefaultStore(path string) *Store {
	return NewStore(path, log.Logger)
}

// Path returns the fallback file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the fallback document. Absent and unparsable files both
// report false.
func (s *Store) Load() (manifest.Document, bool) {
	doc, ok, err := s.Read()
	if err != nil {
		s.logger.Warn().Err(err).Msg("fallback_read_failed")
		return manifest.Document{}, false
	}
	return doc, ok
}

// Read is Load with the parse or I/O failure surfaced.
func (s *Store) Read() (manifest.Document, bool, error) {
	if s.path == "" {
		return manifest.Document{}, false, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return manifest.Document{}, false, nil
		}
		return manifest.Document{}, false, fmt.Errorf("fallback: read %q: %w", s.path, err)
	}
	raw, err := Decode(s.format, data)
	if err != nil {
		return manifest.Document{}, false, fmt.Errorf("fallback: parse %q: %w", s.path, err)
	}
	if raw.Payload.IsZero() {
		return manifest.Document{}, false, fmt.Errorf("fallback: %q has empty payload", s.path)
	}
	return manifest.Document{
		Scope:      raw.Scope,
		Payload:    raw.Payload,
		Provenance: manifest.ProvenanceFallback,
		FetchedAt:  s.now().UTC(),
	}, true, nil
}

// Decode parses a fallback document in the given format.
func Decode(format Format, data []byte) (Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return Document{}, err
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return Document{}, err
		}
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return doc, nil
}

// Encode renders a fallback document in the given format.
func Encode(format Format, doc Document) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
