// Package remote fetches manifests from the authoritative manifest provider
// over HTTP.
//
// Failures are classified before they leave the package:
// - transient: connectivity problems (refused, reset, timeout, DNS); retried
// - rejected: a well-formed non-2xx response or an unusable body; not retried
// - cancelled: the caller's context ended; returned immediately
//
// The fetcher never writes to the cache.
package remote
