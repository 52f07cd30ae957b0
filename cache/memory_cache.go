package cache

import (
	"sync"
	"time"
)

// MemoryCache implements CacheProvider using in-memory storage
type MemoryCache struct {
	mu       sync.RWMutex
	data     map[SubtreeKey]*TreeResponse
	ttl      time.Duration
	expiries map[SubtreeKey]time.Time
}

// NewMemoryCache creates a new in-memory cache provider
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		ttl:      5 * time.Minute,
		data:     make(map[SubtreeKey]*TreeResponse),
		expiries: make(map[SubtreeKey]time.Time),
	}
}

// Initialize performs any necessary setup for the cache provider
func (c *MemoryCache) Initialize() error {
	return nil
}

// GetSubtree retrieves a cached subtree response if available
func (c *MemoryCache) GetSubtree(key SubtreeKey) (*TreeResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expiry, exists := c.expiries[key]
	if !exists || time.Now().After(expiry) {
		return nil, false
	}

	if response, ok := c.data[key]; ok {
		return response, true
	}

	return nil, false
}

// SetSubtree stores a subtree response in cache
func (c *MemoryCache) SetSubtree(key SubtreeKey, response *TreeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = response
	c.expiries[key] = time.Now().Add(c.ttl)
}

// InvalidateCache removes all cached data
func (c *MemoryCache) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[SubtreeKey]*TreeResponse)
	c.expiries = make(map[SubtreeKey]time.Time)
}

// SetCacheTTL sets the cache time-to-live duration
func (c *MemoryCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ttl = ttl
	// Update all existing expiries
	now := time.Now()
	for key := range c.data {
		c.expiries[key] = now.Add(ttl)
	}
}
