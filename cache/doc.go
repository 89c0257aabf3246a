// Package cache stores command execution results keyed by normalized
// (command, working directory) pairs.
//
// It provides an in-memory Store with per-entry TTL expiry, LRU bounding,
// targeted invalidation by command or pattern, and hit/miss statistics.
package cache
