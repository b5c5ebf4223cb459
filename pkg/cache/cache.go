// Package cache implements the TTL cache engine: a bounded in-memory store
// with lazy and background expiration, an optional Redis tier for remote
// backing, and a multi-level combination of the two.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/developer-mesh/rag-core/pkg/errors"
)

// Cache defines caching operations. Values are JSON-encoded on write and
// decoded into the caller's out parameter on read, so the same contract
// holds for the in-memory and the Redis implementations.
type Cache interface {
	// Get retrieves a value. A missing or expired key yields
	// errors.ErrNotFound; callers treat both identically to a cold miss.
	Get(ctx context.Context, key string, value interface{}) error

	// Set stores a value, overwriting any existing entry and resetting its
	// expiry. ttl == 0 selects the configured default; a negative ttl is an
	// InvalidArgument.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes an entry immediately regardless of TTL. Idempotent.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a live (non-expired) entry is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Flush removes all entries.
	Flush(ctx context.Context) error

	// Stats returns a point-in-time snapshot of store occupancy.
	Stats() Stats

	// Close releases resources and stops any background work.
	Close() error
}

// Stats describes store occupancy at a point in time.
type Stats struct {
	Count             int   `json:"count"`
	ActiveCount       int   `json:"active_count"`
	ExpiredCount      int   `json:"expired_count"`
	MaxSize           int   `json:"max_size"`
	ApproxMemoryBytes int64 `json:"approx_memory_bytes"`
	SweptTotal        int64 `json:"swept_total"`
}

// Config holds configuration for the in-memory engine.
type Config struct {
	DefaultTTL      time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxSize         int           `mapstructure:"max_size"`
}

// Validate checks the configuration and applies no defaults; defaulting is
// the config loader's job.
func (c Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return errors.InvalidArgumentf("cache.config", "ttl must be positive, got %s", c.DefaultTTL)
	}
	if c.CleanupInterval <= 0 {
		return errors.InvalidArgumentf("cache.config", "cleanup_interval must be positive, got %s", c.CleanupInterval)
	}
	if c.MaxSize <= 0 {
		return errors.InvalidArgumentf("cache.config", "max_size must be positive, got %d", c.MaxSize)
	}
	return nil
}

// Clock abstracts the wall clock for testability.
type Clock func() time.Time

// GetOrSet returns the cached value for key, or runs fill, stores its result
// with the given ttl and decodes it into value. The fill function runs at
// most once per call; concurrent callers for the same cold key may each run
// it (last write wins), matching the read-through contract.
func GetOrSet(ctx context.Context, c Cache, key string, ttl time.Duration, value interface{}, fill func(ctx context.Context) (interface{}, error)) error {
	err := c.Get(ctx, key, value)
	if err == nil {
		return nil
	}
	if !errors.IsNotFound(err) {
		return err
	}

	fresh, err := fill(ctx)
	if err != nil {
		return fmt.Errorf("filling %q: %w", key, err)
	}
	if err := c.Set(ctx, key, fresh, ttl); err != nil {
		return err
	}
	return c.Get(ctx, key, value)
}
