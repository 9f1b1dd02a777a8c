package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leadwatch/leadwatch/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

// tokenCacheSkew expires cached tokens slightly before the platform does.
const tokenCacheSkew = 30 * time.Second

// RedisTokenCache implements core.TokenCache using Redis.
type RedisTokenCache struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisTokenCache creates a RedisTokenCache. Keys are namespaced with prefix.
func NewRedisTokenCache(client redis.UniversalClient, prefix string) *RedisTokenCache {
	if prefix == "" {
		prefix = "leadwatch:token:"
	}
	return &RedisTokenCache{client: client, prefix: prefix, now: time.Now}
}

type cachedToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
	AppLevel  bool      `json:"app_level"`
}

// Get returns the cached token; ok=false when absent or already expired.
func (c *RedisTokenCache) Get(ctx context.Context, key string) (model.AccessToken, bool, error) {
	if key == "" {
		return model.AccessToken{}, false, errors.New("key cannot be empty")
	}
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.AccessToken{}, false, nil
	}
	if err != nil {
		return model.AccessToken{}, false, fmt.Errorf("redis get: %w", err)
	}
	var ct cachedToken
	if err := json.Unmarshal(raw, &ct); err != nil {
		return model.AccessToken{}, false, fmt.Errorf("decode cached token: %w", err)
	}
	if ct.Value == "" || !ct.ExpiresAt.After(c.now()) {
		return model.AccessToken{}, false, nil
	}
	return model.AccessToken{Value: ct.Value, ExpiresAt: ct.ExpiresAt, AppLevel: ct.AppLevel}, true, nil
}

// Set stores the token until shortly before it expires. Tokens that are about to expire are not cached.
func (c *RedisTokenCache) Set(ctx context.Context, key string, token model.AccessToken) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	ttl := token.ExpiresAt.Sub(c.now()) - tokenCacheSkew
	if token.IsZero() || ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(cachedToken{Value: token.Value, ExpiresAt: token.ExpiresAt.UTC(), AppLevel: token.AppLevel})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Health checks the health of the Redis connection.
func (c *RedisTokenCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
