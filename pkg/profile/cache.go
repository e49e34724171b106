package profile

import (
	"sync"
	"time"

	"github.com/finsightai/finsight/pkg/model"
)

// cache is the process-wide pack cache: last-writer-wins per key, TTL-only
// eviction, atomic full-pack replacement.
type cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	pack    *model.ProfilePack
	expires time.Time
}

func newCache(ttl time.Duration) *cache {
	return &cache{entries: map[string]cacheEntry{}, ttl: ttl}
}

func (c *cache) get(key string) (*model.ProfilePack, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.pack, true
}

func (c *cache) put(key string, pack *model.ProfilePack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{pack: pack, expires: time.Now().Add(c.ttl)}
}

// sweep drops expired entries; callers may run it opportunistically.
func (c *cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
		}
	}
}
