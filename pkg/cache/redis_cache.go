package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"

	"github.com/developer-mesh/rag-core/pkg/errors"
)

// RedisConfig holds configuration for the Redis tier.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// RedisCache implements Cache over a remote Redis store. It is the backing
// tier for MultiLevelCache; expiry is delegated to Redis, so there is no
// sweeper to manage.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection with a bounded
// exponential backoff on the initial ping. Per-operation calls are never
// silently retried; retry policy belongs to the caller.
func NewRedisCache(cfg RedisConfig, defaultTTL time.Duration) (*RedisCache, error) {
	if defaultTTL <= 0 {
		return nil, errors.InvalidArgumentf("cache.redis", "default ttl must be positive, got %s", defaultTTL)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(ping, policy); err != nil {
		_ = client.Close()
		return nil, errors.BackendUnavailable("cache.redis.connect", err)
	}

	return &RedisCache{client: client, defaultTTL: defaultTTL}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errors.NotFound("cache.get")
		}
		return errors.WrapBackend("cache.get", err)
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.InvalidArgument("cache.get", err)
	}
	return nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl < 0 {
		return errors.InvalidArgumentf("cache.set", "ttl must not be negative, got %s", ttl)
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.InvalidArgument("cache.set", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return errors.WrapBackend("cache.set", err)
	}
	return nil
}

// Delete removes a key. Idempotent.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return errors.WrapBackend("cache.delete", err)
	}
	return nil
}

// Exists checks whether a key is present.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.WrapBackend("cache.exists", err)
	}
	return n > 0, nil
}

// Flush removes all keys in the configured database.
func (c *RedisCache) Flush(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return errors.WrapBackend("cache.flush", err)
	}
	return nil
}

// Stats reports the remote key count. Memory and expiry accounting live on
// the Redis server, not here.
func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats := Stats{}
	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.Count = int(n)
		stats.ActiveCount = int(n)
	}
	return stats
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
