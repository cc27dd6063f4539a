package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authlog-service/internal/client"
	"authlog-service/internal/repository"
)

const fingerprintKeyPrefix = "authlog:fingerprint:"

// FingerprintCache is the Redis-backed repository.FingerprintStore. Entries
// expire with the configured session fingerprint TTL so abandoned sessions
// clean themselves up.
type FingerprintCache struct {
	redis *client.RedisClient
}

func NewFingerprintCache(redisClient *client.RedisClient) *FingerprintCache {
	return &FingerprintCache{redis: redisClient}
}

var _ repository.FingerprintStore = (*FingerprintCache)(nil)

func (c *FingerprintCache) Save(ctx context.Context, sessionID, fingerprint string, ttl time.Duration) error {
	if err := c.redis.Set(ctx, fingerprintKeyPrefix+sessionID, fingerprint, ttl); err != nil {
		return fmt.Errorf("failed to store session fingerprint: %w", err)
	}
	return nil
}

func (c *FingerprintCache) Get(ctx context.Context, sessionID string) (string, error) {
	value, err := c.redis.Get(ctx, fingerprintKeyPrefix+sessionID)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read session fingerprint: %w", err)
	}
	return value, nil
}

func (c *FingerprintCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.redis.Del(ctx, fingerprintKeyPrefix+sessionID); err != nil {
		return fmt.Errorf("failed to delete session fingerprint: %w", err)
	}
	return nil
}
