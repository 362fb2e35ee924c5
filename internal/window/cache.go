package window

import (
	"slices"
	"sync"

	"github.com/matheus3301/chansync/internal/message"
)

// DefaultCacheSize is the number of tail messages kept when no size is given.
const DefaultCacheSize = 100

// Cache holds the most recent messages seen while a window tracks the live
// tail, so a reopened view can render before the authoritative fetch
// returns. Oldest entries are evicted first once capacity is reached.
//
// Only the sync coordinator mutates a Cache; readers may call Messages at
// any time.
type Cache struct {
	mu       sync.RWMutex
	msgs     []message.Message
	capacity int
	primed   bool
}

// NewCache returns a cache bounded to capacity messages.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{capacity: capacity}
}

// LoadInitial primes the cache for a live-tail session and returns the
// cached tail for instant rendering.
func (c *Cache) LoadInitial() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primed = true
	return slices.Clone(c.msgs)
}

// LoadNext records a forward batch the client has just rendered.
func (c *Cache) LoadNext(batch []message.Message) {
	if len(batch) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = c.trimLocked(message.Merge(c.msgs, batch))
}

// ApplyChangelog replaces updated entries in place and removes deleted
// ones. It never reorders or adds entries.
func (c *Cache) ApplyChangelog(updated []message.Message, deleted []message.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	message.Replace(c.msgs, updated)
	c.msgs = message.Remove(c.msgs, deleted)
}

// Flush merges the cached tail with a freshly fetched batch. The result
// holds every ID exactly once in message order; the cache keeps the newest
// entries of it.
func (c *Cache) Flush(batch []message.Message) []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := message.Merge(c.msgs, batch)
	c.msgs = c.trimLocked(slices.Clone(merged))
	return merged
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
	c.primed = false
}

// Primed reports whether LoadInitial ran since the last Clear.
func (c *Cache) Primed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.primed
}

// Messages returns a copy of the cached tail.
func (c *Cache) Messages() []message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.msgs)
}

// Len returns the number of cached messages.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.msgs)
}

func (c *Cache) trimLocked(msgs []message.Message) []message.Message {
	if len(msgs) <= c.capacity {
		return msgs
	}
	return msgs[len(msgs)-c.capacity:]
}
