package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// entry pairs a payload with its own deadline. The LRU bounds entry count;
// expiry is enforced per entry on read because each caching point uses a
// different TTL.
type entry struct {
	payload   []byte
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process [Cache] backed by a size-bounded LRU.
//
// It is the default backend: single-node deployments get caching without any
// extra infrastructure, and the [Cache] interface leaves room for a networked
// backend later. Memory is safe for concurrent use.
type Memory struct {
	lru *expirable.LRU[string, entry]
}

// NewMemory creates a Memory cache holding at most maxEntries values.
// maxEntries <= 0 falls back to 4096.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	// TTL handling is per entry, so the LRU itself never expires values.
	return &Memory{lru: expirable.NewLRU[string, entry](maxEntries, nil, 0)}
}

// Get implements [Cache].
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.lru.Remove(key)
		return nil, false
	}
	return e.payload, true
}

// Set implements [Cache].
func (m *Memory) Set(_ context.Context, key string, payload []byte, ttl time.Duration) {
	e := entry{payload: payload}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.lru.Add(key, e)
}

// Delete implements [Cache].
func (m *Memory) Delete(_ context.Context, key string) {
	m.lru.Remove(key)
}

// Len reports the number of live entries, counting not-yet-collected expired
// ones. Intended for health reporting and tests.
func (m *Memory) Len() int {
	return m.lru.Len()
}
