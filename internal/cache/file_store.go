package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/manifestd/internal/manifest"
)

const fileSuffix = "_manifest.json"

// FileStore keeps one JSON record per scope under a root directory.
type FileStore struct {
	root string
	opts options
}

// NewFileStore provisions root and returns a store bound to it.
func NewFileStore(root string, opts ...Option) (*FileStore, error) {
	resolved := strings.TrimSpace(root)
	if resolved == "" {
		return nil, fmt.Errorf("cache: file store root required")
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve root %q: %w", resolved, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create root %q: %w", abs, err)
	}
	return &FileStore{root: abs, opts: buildOptions("file", opts)}, nil
}

// Root returns the absolute cache directory.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the record path for scope.
func (s *FileStore) Path(scope string) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", manifest.NewScopeError(manifest.ErrInvalidScope, scope, nil)
	}
	p := filepath.Clean(filepath.Join(s.root, url.PathEscape(scope)+fileSuffix))
	if !isWithin(p, s.root) {
		return "", fmt.Errorf("cache: path escapes root")
	}
	return p, nil
}

// Load returns the cached document for scope. Missing and unreadable records
// are both reported as a miss.
func (s *FileStore) Load(scope string) (manifest.Document, bool) {
	doc, ok, err := s.Read(scope)
	if err != nil {
		s.opts.logger.Warn().Str("scope", scope).Err(err).Msg("cache_read_failed")
		return manifest.Document{}, false
	}
	return doc, ok
}

// Read is Load with the failure surfaced as an ErrCacheRead ScopeError.
func (s *FileStore) Read(scope string) (manifest.Document, bool, error) {
	p, err := s.Path(scope)
	if err != nil {
		return manifest.Document{}, false, manifest.NewScopeError(manifest.ErrCacheRead, scope, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return manifest.Document{}, false, nil
		}
		return manifest.Document{}, false, manifest.NewScopeError(manifest.ErrCacheRead, scope, err)
	}
	e, err := decodeEntry(scope, data)
	if err != nil {
		return manifest.Document{}, false, manifest.NewScopeError(manifest.ErrCacheRead, scope, err)
	}
	return e.Document(), true, nil
}

// Save records doc under scope, logging and discarding any failure.
func (s *FileStore) Save(scope string, doc manifest.Document) {
	if err := s.Write(scope, doc); err != nil {
		s.opts.logger.Warn().Str("scope", scope).Err(err).Msg("cache_write_failed")
	}
}

// Write is Save with the failure surfaced as an ErrCacheWrite ScopeError.
func (s *FileStore) Write(scope string, doc manifest.Document) error {
	p, err := s.Path(scope)
	if err != nil {
		return manifest.NewScopeError(manifest.ErrCacheWrite, scope, err)
	}
	if doc.Payload.IsZero() {
		return manifest.NewScopeError(manifest.ErrCacheWrite, scope, errEmptyPayload)
	}
	data, err := encodeEntry(Entry{
		Scope:   scope,
		Payload: doc.Payload,
		SavedAt: s.opts.now().UTC(),
	})
	if err != nil {
		return manifest.NewScopeError(manifest.ErrCacheWrite, scope, err)
	}
	if err := writeFileAtomic(p, data, 0o644); err != nil {
		return manifest.NewScopeError(manifest.ErrCacheWrite, scope, err)
	}
	return nil
}

// Delete removes the record for scope if present.
func (s *FileStore) Delete(scope string) error {
	p, err := s.Path(scope)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// writeFileAtomic writes data to a unique temp file beside path, syncs it and
// renames it over path, so readers observe either the old or the new record.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	// Some filesystems refuse fsync on directories; the rename already landed.
	_ = f.Sync()
	return nil
}

func isWithin(path string, root string) bool {
	p := filepath.Clean(path)
	r := filepath.Clean(root)
	if p == r {
		return false
	}
	return strings.HasPrefix(p, r+string(os.PathSeparator))
}
