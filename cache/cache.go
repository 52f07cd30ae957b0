package cache

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/treekit/arbor/models"
)

var (
	provider CacheProvider
	once     sync.Once
	mu       sync.RWMutex
)

// SubtreeKey identifies one cached subtree read: the requested root (0 for
// the whole forest), the depth limit and the sort flag.
type SubtreeKey struct {
	Root   int64
	Depth  int64
	Sorted bool
}

// String renders the key in the form used by the external cache stores.
func (k SubtreeKey) String() string {
	return fmt.Sprintf("tree:%d:%d:%t", k.Root, k.Depth, k.Sorted)
}

// TreeResponse represents a cached subtree read: the node list and,
// optionally, its indented text rendering.
type TreeResponse struct {
	Data     []*models.Node `json:"data"`
	Rendered string         `json:"rendered,omitempty"`
}

// CacheProvider defines the interface for cache implementations.
// It caches rendered subtree responses at the API layer; the nested-set
// engine underneath always reads boundaries fresh from the table.
type CacheProvider interface {
	// GetSubtree retrieves a cached subtree response if available.
	// Returns the response and whether it was found in cache.
	GetSubtree(key SubtreeKey) (*TreeResponse, bool)

	// SetSubtree stores a subtree response in cache.
	SetSubtree(key SubtreeKey, response *TreeResponse)

	// InvalidateCache removes all cached data.
	// This is called whenever the tree structure is modified.
	InvalidateCache()

	// SetCacheTTL sets the cache time-to-live duration.
	SetCacheTTL(ttl time.Duration)

	// Initialize performs any necessary setup for the cache provider.
	// Returns an error if initialization fails.
	Initialize() error
}

// Initialize sets up the cache provider
func Initialize() error {
	var err error
	once.Do(func() {
		// Use Redis in local development, MemoryCache otherwise
		if os.Getenv("REDIS_HOST") != "" {
			provider = NewRedisCache()
		} else {
			provider = NewMemoryCache()
		}
		err = provider.Initialize()
	})
	return err
}

// GetSubtree retrieves a cached subtree response if available
func GetSubtree(key SubtreeKey) (*TreeResponse, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return provider.GetSubtree(key)
}

// SetSubtree stores a subtree response in cache
func SetSubtree(key SubtreeKey, response *TreeResponse) {
	mu.Lock()
	defer mu.Unlock()
	provider.SetSubtree(key, response)
}

// InvalidateCache removes all cached data
func InvalidateCache() {
	mu.Lock()
	defer mu.Unlock()
	provider.InvalidateCache()
}

// SetCacheTTL sets the cache time-to-live duration
func SetCacheTTL(ttl time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	provider.SetCacheTTL(ttl)
}

// SetProvider allows changing the cache provider at runtime
func SetProvider(p CacheProvider) error {
	mu.Lock()
	defer mu.Unlock()
	if err := p.Initialize(); err != nil {
		return err
	}
	provider = p
	return nil
}

// ResetProvider resets the cache provider for testing
func ResetProvider() {
	mu.Lock()
	defer mu.Unlock()
	provider = nil
	once = sync.Once{}
}
