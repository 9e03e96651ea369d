// Package cache implements the transparent read-through/write-through layer
// that wraps a query connector. A cache.Connector first consults its Storage
// for a fresh entry, falls back to the wrapped child on a miss, and
// opportunistically persists successful read results. Storage failures never
// reach the caller: the fail-soft boundary degrades a broken cache to
// "always ask the child", at worst. FileStorage keys entries by the query's
// canonical string, one file per key, with TTL freshness derived from the
// file's modification time and atomic temp-file + rename writes.
package cache
