package cache

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/developer-mesh/rag-core/pkg/errors"
	"github.com/developer-mesh/rag-core/pkg/observability"
)

// shardCount is a power of two so the shard index is a cheap mask.
const shardCount = 32

// MemoryCache is the in-memory TTL store. Keys are striped across shards,
// each with its own lock, so the background sweep and foreground operations
// only ever contend on one shard at a time.
type MemoryCache struct {
	shards [shardCount]*memoryShard
	config Config
	clock  Clock
	logger observability.Logger

	// size is the live global entry count, kept outside the shard locks
	size       int64
	sweptTotal int64

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

type memoryShard struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

type memoryItem struct {
	data      []byte
	createdAt time.Time
	expiresAt time.Time
}

func (it memoryItem) expired(now time.Time) bool {
	return !now.Before(it.expiresAt)
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock overrides the wall clock. Tests use this to advance time
// deterministically.
func WithClock(clock Clock) MemoryOption {
	return func(c *MemoryCache) { c.clock = clock }
}

// WithLogger sets the cache logger.
func WithLogger(logger observability.Logger) MemoryOption {
	return func(c *MemoryCache) { c.logger = logger }
}

// NewMemoryCache creates the in-memory engine and starts its background
// sweeper. The caller owns the lifecycle: Close stops the sweeper and must
// be called before the process (or test) exits.
func NewMemoryCache(config Config, opts ...MemoryOption) (*MemoryCache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &MemoryCache{
		config: config,
		clock:  time.Now,
		logger: observability.NewStandardLogger("cache.memory"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &memoryShard{items: make(map[string]memoryItem)}
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.sweepLoop()

	return c, nil
}

func (c *MemoryCache) shardFor(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()&(shardCount-1)]
}

// Set stores a value. A new key inserted into a full store evicts the
// nearest-to-expiry entry first, so the size bound always holds.
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := errors.FromContext("cache.set", ctx); err != nil {
		return err
	}
	if ttl < 0 {
		return errors.InvalidArgumentf("cache.set", "ttl must not be negative, got %s", ttl)
	}
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.InvalidArgument("cache.set", err)
	}

	now := c.clock()
	item := memoryItem{data: data, createdAt: now, expiresAt: now.Add(ttl)}

	shard := c.shardFor(key)
	shard.mu.RLock()
	_, exists := shard.items[key]
	shard.mu.RUnlock()

	// Make room before inserting a new key. Locks are only ever held one
	// shard at a time, so eviction happens outside the insert lock.
	if !exists {
		for atomic.LoadInt64(&c.size) >= int64(c.config.MaxSize) {
			if !c.evictNearestToExpiry() {
				break
			}
		}
	}

	shard.mu.Lock()
	_, exists = shard.items[key]
	shard.items[key] = item
	if !exists {
		atomic.AddInt64(&c.size, 1)
	}
	shard.mu.Unlock()

	// Concurrent inserts may overshoot between the eviction and the insert;
	// settle back under the bound before returning.
	for atomic.LoadInt64(&c.size) > int64(c.config.MaxSize) {
		if !c.evictNearestToExpiry() {
			break
		}
	}

	c.logger.Debug("cache set", map[string]interface{}{"key": key, "ttl": ttl.String()})
	return nil
}

// Get retrieves a value with lazy expiration: an expired entry is deleted
// under the shard lock and reported as a miss.
func (c *MemoryCache) Get(ctx context.Context, key string, value interface{}) error {
	if err := errors.FromContext("cache.get", ctx); err != nil {
		return err
	}

	shard := c.shardFor(key)

	shard.mu.RLock()
	item, exists := shard.items[key]
	shard.mu.RUnlock()

	if !exists {
		return errors.NotFound("cache.get")
	}
	if item.expired(c.clock()) {
		shard.mu.Lock()
		// Recheck: a concurrent Set may have refreshed the entry.
		if cur, ok := shard.items[key]; ok && cur.expired(c.clock()) {
			delete(shard.items, key)
			atomic.AddInt64(&c.size, -1)
		}
		shard.mu.Unlock()
		return errors.NotFound("cache.get")
	}

	if err := json.Unmarshal(item.data, value); err != nil {
		return errors.InvalidArgument("cache.get", err)
	}
	return nil
}

// Delete removes an entry. No error when the key is absent.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := errors.FromContext("cache.delete", ctx); err != nil {
		return err
	}

	shard := c.shardFor(key)
	shard.mu.Lock()
	if _, ok := shard.items[key]; ok {
		delete(shard.items, key)
		atomic.AddInt64(&c.size, -1)
	}
	shard.mu.Unlock()
	return nil
}

// Exists reports whether a live entry is present without touching it.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	if err := errors.FromContext("cache.exists", ctx); err != nil {
		return false, err
	}

	shard := c.shardFor(key)
	shard.mu.RLock()
	item, exists := shard.items[key]
	shard.mu.RUnlock()

	return exists && !item.expired(c.clock()), nil
}

// Flush removes all entries.
func (c *MemoryCache) Flush(ctx context.Context) error {
	if err := errors.FromContext("cache.flush", ctx); err != nil {
		return err
	}

	var removed int64
	for _, shard := range c.shards {
		shard.mu.Lock()
		removed += int64(len(shard.items))
		shard.items = make(map[string]memoryItem)
		shard.mu.Unlock()
	}
	atomic.AddInt64(&c.size, -removed)
	c.logger.Debug("cache flushed", map[string]interface{}{"removed": removed})
	return nil
}

// Stats returns occupancy counters and an approximate memory estimate
// (key bytes plus encoded value bytes).
func (c *MemoryCache) Stats() Stats {
	now := c.clock()
	stats := Stats{
		MaxSize:    c.config.MaxSize,
		SweptTotal: atomic.LoadInt64(&c.sweptTotal),
	}

	for _, shard := range c.shards {
		shard.mu.RLock()
		for key, item := range shard.items {
			stats.Count++
			stats.ApproxMemoryBytes += int64(len(key) + len(item.data))
			if item.expired(now) {
				stats.ExpiredCount++
			}
		}
		shard.mu.RUnlock()
	}
	stats.ActiveCount = stats.Count - stats.ExpiredCount
	return stats
}

// Close stops the background sweeper and waits for it to exit. Safe to call
// more than once.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
	})
	return nil
}

// sweepLoop runs active expiration every CleanupInterval until Close.
func (c *MemoryCache) sweepLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}

// Sweep removes every expired entry, locking one shard at a time so
// foreground traffic on other shards is never blocked by the scan. Exported
// so tests and operators can force a cycle without waiting for the ticker.
func (c *MemoryCache) Sweep() int {
	now := c.clock()
	removed := 0

	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, item := range shard.items {
			if item.expired(now) {
				delete(shard.items, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}

	if removed > 0 {
		atomic.AddInt64(&c.size, int64(-removed))
		atomic.AddInt64(&c.sweptTotal, int64(removed))
		c.logger.Debug("swept expired entries", map[string]interface{}{"removed": removed})
	}
	return removed
}

// evictNearestToExpiry removes the entry closest to expiry across the whole
// store. The scan takes shard read locks one at a time; the chosen victim is
// rechecked under its shard's write lock before deletion, so a concurrent
// Delete cannot be double-counted. Returns false when the store is empty.
func (c *MemoryCache) evictNearestToExpiry() bool {
	for attempt := 0; attempt < 2; attempt++ {
		var victimShard *memoryShard
		var victimKey string
		var victimExpiry time.Time

		for _, shard := range c.shards {
			shard.mu.RLock()
			for key, item := range shard.items {
				if victimKey == "" || item.expiresAt.Before(victimExpiry) {
					victimShard = shard
					victimKey = key
					victimExpiry = item.expiresAt
				}
			}
			shard.mu.RUnlock()
		}
		if victimKey == "" {
			return false
		}

		victimShard.mu.Lock()
		_, ok := victimShard.items[victimKey]
		if ok {
			delete(victimShard.items, victimKey)
			atomic.AddInt64(&c.size, -1)
		}
		victimShard.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}
