// Package attrcache holds the process-local map from object key to its
// attribute envelope. It exists so repeated getattr calls don't force a
// HEAD round trip, and so a mutation (setattr, write, create) is
// immediately visible to the next lookup without waiting on the store.
package attrcache

import (
	"sync"

	"github.com/s3fs-go/s3fs/internal/envelope"
)

// Cache is a concurrency-safe key -> envelope map. A zero Cache is not
// usable; construct with New.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]envelope.Envelope
}

// New returns an empty attribute cache.
func New() *Cache {
	return &Cache{entries: make(map[string]envelope.Envelope)}
}

// Get returns the cached envelope for key, if present.
func (c *Cache) Get(key string) (envelope.Envelope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Set stores or replaces the envelope for key. Callers that just mutated an
// object's attributes (setattr, write, truncate) call this instead of
// waiting for the next HEAD to observe their own change.
func (c *Cache) Set(key string, e envelope.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

// Forget removes key, forcing the next Get to miss and the caller to
// refresh from the store. Used on delete and on rename's source key.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Rename moves any cached envelope from oldKey to newKey.
func (c *Cache) Rename(oldKey, newKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[oldKey]; ok {
		c.entries[newKey] = e
		delete(c.entries, oldKey)
	}
}
