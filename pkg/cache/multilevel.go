package cache

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/developer-mesh/rag-core/pkg/errors"
	"github.com/developer-mesh/rag-core/pkg/observability"
)

// MultiLevelCache layers a small in-process LRU (L1) in front of a remote
// Cache tier (L2). Reads fall through L1 to L2 and backfill; writes go to
// both. L1 entries never outlive their L2 expiry because expiry is checked
// on every L1 hit.
type MultiLevelCache struct {
	l1     *lru.Cache[string, l1Entry]
	l2     Cache
	clock  Clock
	logger observability.Logger
}

type l1Entry struct {
	data      []byte
	expiresAt time.Time
}

// MultiLevelConfig holds configuration for the multi-level cache.
type MultiLevelConfig struct {
	L1MaxSize int `mapstructure:"l1_max_size"`
}

// NewMultiLevelCache creates a multi-level cache over an existing L2 tier.
func NewMultiLevelCache(l2 Cache, cfg MultiLevelConfig, opts ...MultiLevelOption) (*MultiLevelCache, error) {
	if cfg.L1MaxSize <= 0 {
		cfg.L1MaxSize = 1000
	}

	l1, err := lru.New[string, l1Entry](cfg.L1MaxSize)
	if err != nil {
		return nil, errors.InvalidArgument("cache.multilevel", err)
	}

	c := &MultiLevelCache{
		l1:     l1,
		l2:     l2,
		clock:  time.Now,
		logger: observability.NewStandardLogger("cache.multilevel"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MultiLevelOption configures a MultiLevelCache.
type MultiLevelOption func(*MultiLevelCache)

// WithMultiLevelClock overrides the wall clock used for L1 expiry checks.
func WithMultiLevelClock(clock Clock) MultiLevelOption {
	return func(c *MultiLevelCache) { c.clock = clock }
}

// WithMultiLevelLogger sets the logger.
func WithMultiLevelLogger(logger observability.Logger) MultiLevelOption {
	return func(c *MultiLevelCache) { c.logger = logger }
}

// Get tries L1 first, then falls through to L2 and backfills L1 on a hit.
func (c *MultiLevelCache) Get(ctx context.Context, key string, value interface{}) error {
	if entry, ok := c.l1.Get(key); ok {
		if c.clock().Before(entry.expiresAt) {
			if err := json.Unmarshal(entry.data, value); err != nil {
				return errors.InvalidArgument("cache.get", err)
			}
			return nil
		}
		c.l1.Remove(key)
	}

	var raw json.RawMessage
	if err := c.l2.Get(ctx, key, &raw); err != nil {
		return err
	}

	// The L1 copy keeps no authoritative expiry of its own; it is pinned to
	// a short horizon so a stale L1 never outlives the L2 entry by much.
	c.l1.Add(key, l1Entry{data: raw, expiresAt: c.clock().Add(l1Horizon)})

	if err := json.Unmarshal(raw, value); err != nil {
		return errors.InvalidArgument("cache.get", err)
	}
	return nil
}

// l1Horizon bounds how long an L1 copy may be served without revalidating
// against L2.
const l1Horizon = 30 * time.Second

// Set writes to both tiers.
func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.InvalidArgument("cache.set", err)
	}

	horizon := l1Horizon
	if ttl > 0 && ttl < horizon {
		horizon = ttl
	}
	c.l1.Add(key, l1Entry{data: data, expiresAt: c.clock().Add(horizon)})
	return nil
}

// Delete removes the key from both tiers.
func (c *MultiLevelCache) Delete(ctx context.Context, key string) error {
	c.l1.Remove(key)
	return c.l2.Delete(ctx, key)
}

// Exists checks L1, then L2.
func (c *MultiLevelCache) Exists(ctx context.Context, key string) (bool, error) {
	if entry, ok := c.l1.Get(key); ok && c.clock().Before(entry.expiresAt) {
		return true, nil
	}
	return c.l2.Exists(ctx, key)
}

// Flush clears both tiers.
func (c *MultiLevelCache) Flush(ctx context.Context) error {
	c.l1.Purge()
	return c.l2.Flush(ctx)
}

// Stats reports the L2 view; L1 is an opaque accelerator.
func (c *MultiLevelCache) Stats() Stats {
	return c.l2.Stats()
}

// Close closes the L2 tier.
func (c *MultiLevelCache) Close() error {
	c.l1.Purge()
	return c.l2.Close()
}
