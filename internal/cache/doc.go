// Package cache persists resolved manifests keyed by scope on local durable
// storage.
//
// The cache is advisory: Load maps every read problem to a miss and Save
// swallows write problems after logging them. Read and Write expose the
// underlying errors for callers that want them.
//
// Two backends are provided:
// - FileStore: one JSON record per scope, replaced atomically
// - SQLiteStore: one row per scope, replaced with a single upsert
//
// Entries never expire.
package cache
