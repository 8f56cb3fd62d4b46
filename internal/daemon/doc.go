// Package daemon assembles the manifestd process: cache backend, fallback
// document, remote fetcher, resolver and HTTP server.
package daemon
