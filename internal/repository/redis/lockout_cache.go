package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"authlog-service/internal/client"
	"authlog-service/internal/repository"
)

// LockoutCache is the Redis-backed repository.LockoutStore. Identifiers are
// hashed before use so raw IPs and email addresses never appear as Redis
// keys.
type LockoutCache struct {
	redis     *client.RedisClient
	keyPrefix string
}

func NewLockoutCache(redisClient *client.RedisClient, keyPrefix string) *LockoutCache {
	return &LockoutCache{
		redis:     redisClient,
		keyPrefix: keyPrefix,
	}
}

var _ repository.LockoutStore = (*LockoutCache)(nil)

func (c *LockoutCache) RegisterAttempt(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.redis.IncrWithExpire(ctx, c.attemptsKey(key), window)
	if err != nil {
		return 0, fmt.Errorf("failed to register login attempt: %w", err)
	}
	return count, nil
}

func (c *LockoutCache) Lock(ctx context.Context, key string, duration time.Duration) error {
	if err := c.redis.Set(ctx, c.lockKey(key), "1", duration); err != nil {
		return fmt.Errorf("failed to set lockout flag: %w", err)
	}
	return nil
}

func (c *LockoutCache) IsLocked(ctx context.Context, key string) (bool, error) {
	locked, err := c.redis.Exists(ctx, c.lockKey(key))
	if err != nil {
		return false, fmt.Errorf("failed to check lockout flag: %w", err)
	}
	return locked, nil
}

func (c *LockoutCache) LockTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.redis.TTL(ctx, c.lockKey(key))
	if err != nil {
		return 0, fmt.Errorf("failed to read lockout TTL: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (c *LockoutCache) Attempts(ctx context.Context, key string) (int64, error) {
	raw, err := c.redis.Get(ctx, c.attemptsKey(key))
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read attempt counter: %w", err)
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt attempt counter: %w", err)
	}
	return count, nil
}

func (c *LockoutCache) Clear(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.attemptsKey(key), c.lockKey(key)); err != nil {
		return fmt.Errorf("failed to clear lockout state: %w", err)
	}
	return nil
}

func (c *LockoutCache) attemptsKey(key string) string {
	return c.keyPrefix + "attempts:" + hashIdentifier(key)
}

func (c *LockoutCache) lockKey(key string) string {
	return c.keyPrefix + "locked:" + hashIdentifier(key)
}

func hashIdentifier(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}
