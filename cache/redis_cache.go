package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements CacheProvider using Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache provider
func NewRedisCache() *RedisCache {
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		redisHost = "localhost"
	}
	redisPort := os.Getenv("REDIS_PORT")
	if redisPort == "" {
		redisPort = "6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", redisHost, redisPort),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	return &RedisCache{
		client: client,
		ttl:    5 * time.Minute,
	}
}

// Initialize performs any necessary setup for the cache provider
func (c *RedisCache) Initialize() error {
	ctx := context.Background()
	_, err := c.client.Ping(ctx).Result()
	return err
}

// GetSubtree retrieves a cached subtree response if available
func (c *RedisCache) GetSubtree(key SubtreeKey) (*TreeResponse, bool) {
	ctx := context.Background()
	data, err := c.client.Get(ctx, key.String()).Result()
	if err != nil {
		return nil, false
	}

	var response TreeResponse
	if err := json.Unmarshal([]byte(data), &response); err != nil {
		return nil, false
	}

	return &response, true
}

// SetSubtree stores a subtree response in cache
func (c *RedisCache) SetSubtree(key SubtreeKey, response *TreeResponse) {
	ctx := context.Background()
	data, err := json.Marshal(response)
	if err != nil {
		return
	}

	c.client.Set(ctx, key.String(), data, c.ttl)
}

// InvalidateCache removes all cached subtrees
func (c *RedisCache) InvalidateCache() {
	ctx := context.Background()
	keys, err := c.client.Keys(ctx, "tree:*").Result()
	if err != nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
}

// SetCacheTTL sets the cache time-to-live duration
func (c *RedisCache) SetCacheTTL(ttl time.Duration) {
	c.ttl = ttl
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
