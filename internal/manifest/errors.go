package manifest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidScope        = errors.New("manifest: invalid scope")
	ErrTransientNetwork    = errors.New("manifest: transient network error")
	ErrRemoteRejected      = errors.New("manifest: remote rejected request")
	ErrCacheRead           = errors.New("manifest: cache read failed")
	ErrCacheWrite          = errors.New("manifest: cache write failed")
	ErrManifestUnavailable = errors.New("manifest: manifest unavailable")
	ErrCancelled           = errors.New("manifest: resolution cancelled")
)

// ScopeError ties an error kind to the scope it occurred for. errors.Is
// matches Kind; errors.Unwrap yields the underlying cause.
type ScopeError struct {
	Scope string
	Kind  error
	Err   error
}

func (e *ScopeError) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("manifest: error")
	}
	fmt.Fprintf(&b, " scope=%q", e.Scope)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ScopeError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *ScopeError) Unwrap() error {
	return e.Err
}

// NewScopeError builds a ScopeError of the given kind.
func NewScopeError(kind error, scope string, cause error) *ScopeError {
	return &ScopeError{Scope: scope, Kind: kind, Err: cause}
}

// ScopeOf returns the scope named by the first ScopeError in err's chain.
func ScopeOf(err error) (string, bool) {
	var se *ScopeError
	if errors.As(err, &se) {
		return se.Scope, true
	}
	return "", false
}
