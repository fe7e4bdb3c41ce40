package remote

import "sync"

// TagCache stores query results under invalidation tags.
//
// Each cached entry lives under one tag (status:<batchID>,
// result:<batchID>, batches:<pseudo>). A mutation that targets an entity
// invalidates its tag, so the next read for that tag goes back to the
// backend. A live-update hint carries no entity information, so it
// invalidates everything.
type TagCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewTagCache returns an empty cache.
func NewTagCache() *TagCache {
	return &TagCache{entries: make(map[string]any)}
}

// Get returns the entry cached under tag, if it is still valid.
func (c *TagCache) Get(tag string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[tag]
	return v, ok
}

// Put caches value under tag, replacing any previous entry.
func (c *TagCache) Put(tag string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tag] = value
}

// Invalidate drops the entries for the given tags. Unknown tags are
// ignored.
func (c *TagCache) Invalidate(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		delete(c.entries, tag)
	}
}

// InvalidateAll drops every entry.
func (c *TagCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]any)
}

// Len returns the number of valid entries.
func (c *TagCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cache tag constructors.

func tagStatus(batchID string) string     { return "status:" + batchID }
func tagResult(batchID string) string     { return "result:" + batchID }
func tagBatches(pseudo string) string     { return "batches:" + pseudo }
func tagUserPages(pseudo string) string   { return "user-pages:" + pseudo }
func tagBatchPages(batchID string) string { return "batch-pages:" + batchID }
