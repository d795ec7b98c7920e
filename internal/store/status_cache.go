/**
 * @description
 * Redis-backed read-through cache for the derived verification status. The
 * status view is read far more often than it changes, so GET /status serves
 * from here with a bounded TTL; every synchronizer write invalidates the key.
 *
 * @notes
 * - The cache only ever holds a projection of the `users` row. No idempotency
 *   decision reads from it.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transferhub/onboarding-service/internal/domain"
)

// ErrCacheMiss is returned when no cached status exists for the user.
var ErrCacheMiss = errors.New("status cache miss")

// RedisStatusCache is the Redis implementation of the StatusCache.
type RedisStatusCache struct {
	client *redis.Client
}

// NewRedisStatusCache creates a new RedisStatusCache.
func NewRedisStatusCache(client *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{client: client}
}

func statusKey(userID string) string {
	return fmt.Sprintf("onboarding:status:%s", userID)
}

// Get returns the cached status for a user, or ErrCacheMiss.
func (c *RedisStatusCache) Get(ctx context.Context, userID string) (*domain.CachedVerificationStatus, error) {
	raw, err := c.client.Get(ctx, statusKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		log.Printf("Error reading status cache for user %s: %v", userID, err)
		return nil, err
	}
	var status domain.CachedVerificationStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		// Treat a corrupt entry as a miss; the caller will refill it.
		log.Printf("Discarding corrupt status cache entry for user %s: %v", userID, err)
		_ = c.client.Del(ctx, statusKey(userID)).Err()
		return nil, ErrCacheMiss
	}
	return &status, nil
}

// Set stores the status view with a TTL.
func (c *RedisStatusCache) Set(ctx context.Context, userID string, status *domain.CachedVerificationStatus, ttl time.Duration) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, statusKey(userID), raw, ttl).Err(); err != nil {
		log.Printf("Error writing status cache for user %s: %v", userID, err)
		return err
	}
	return nil
}

// Invalidate removes the cached status for a user.
func (c *RedisStatusCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, statusKey(userID)).Err(); err != nil {
		log.Printf("Error invalidating status cache for user %s: %v", userID, err)
		return err
	}
	return nil
}
