package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisClient(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

const revokedPrefix = "revoked:"

// RevocationCache remembers revoked access-token hashes until the token
// would have expired on its own.
type RevocationCache struct {
	client redis.Cmdable
}

func NewRevocationCache(client redis.Cmdable) *RevocationCache {
	return &RevocationCache{client: client}
}

func (c *RevocationCache) MarkRevoked(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, revokedPrefix+tokenHash, "1", ttl).Err(); err != nil {
		return fmt.Errorf("mark token revoked: %w", err)
	}
	return nil
}

func (c *RevocationCache) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	n, err := c.client.Exists(ctx, revokedPrefix+tokenHash).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}
