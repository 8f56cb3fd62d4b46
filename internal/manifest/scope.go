package manifest

import "strings"

// NormalizeScope trims surrounding whitespace and rejects blank scopes.
func NormalizeScope(raw string) (string, error) {
	scope := strings.TrimSpace(raw)
	if scope == "" {
		return "", NewScopeError(ErrInvalidScope, raw, nil)
	}
	return scope, nil
}
