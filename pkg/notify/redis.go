package notify

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the best-effort duplicate suppressor in front of the
// notification outbox.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCacheFromEnv returns nil when REDIS_ADDR is unset (cache disabled).
func NewRedisCacheFromEnv() *RedisCache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})}
}

// ClaimOnce atomically claims the key. Returns true when this caller is the
// first within ttl, false when the key was already claimed.
func (c *RedisCache) ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, "kyc:notify:"+key, 1, ttl).Result()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }
