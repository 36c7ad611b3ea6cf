// Package cache provides the TTL result cache used at the three caching
// points of the recommendation pipeline: taste profiles, full recommendation
// responses, and per-book embedding vectors.
//
// The cache is an optimisation, never a dependency: implementations must not
// surface backend failures to callers. A failed read is a miss and a failed
// write is a no-op, logged inside the implementation.
package cache

import (
	"context"
	"time"
)

// Cache is a whole-value key/value store with per-entry TTL.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the payload stored under key and true, or nil and false when
	// the key is absent, expired, or the backend failed.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores payload under key for ttl. A non-positive ttl means the entry
	// never expires (it can still be evicted for space). Writes replace the
	// whole value; there are no partial updates.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)

	// Delete removes key if present.
	Delete(ctx context.Context, key string)
}
