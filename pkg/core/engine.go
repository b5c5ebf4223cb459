// Package core composes the cache, history, and retrieval subsystems
// into a single engine with one construction and shutdown path.
package core

import (
	"context"

	"github.com/developer-mesh/rag-core/pkg/cache"
	"github.com/developer-mesh/rag-core/pkg/errors"
	"github.com/developer-mesh/rag-core/pkg/history"
	"github.com/developer-mesh/rag-core/pkg/observability"
	"github.com/developer-mesh/rag-core/pkg/resilience"
	"github.com/developer-mesh/rag-core/pkg/retrieval"
)

// Params configures an Engine. Searcher is optional; without one the
// engine serves cache and history only.
type Params struct {
	Cache        cache.Config
	History      history.Config
	RedisEnabled bool
	Redis        cache.RedisConfig
	L1MaxSize    int
	Retrieval    retrieval.Config
	Breaker      resilience.CircuitBreakerConfig

	Searcher retrieval.Searcher
	Logger   observability.Logger
	Clock    cache.Clock
}

// Engine owns the composed subsystems.
type Engine struct {
	store     cache.Cache
	history   *history.Manager
	retriever *retrieval.ThresholdRetriever
	logger    observability.Logger
}

// New builds an Engine from params and starts its background workers.
func New(params Params) (*Engine, error) {
	logger := params.Logger
	if logger == nil {
		logger = observability.NewStandardLogger("core")
	}

	store, err := buildStore(params, logger)
	if err != nil {
		return nil, err
	}

	historyOpts := []history.Option{
		history.WithLogger(logger.WithPrefix("core.history")),
	}
	if params.Clock != nil {
		historyOpts = append(historyOpts, history.WithClock(params.Clock))
	}
	mgr, err := history.NewManager(store, params.History, historyOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	e := &Engine{
		store:   store,
		history: mgr,
		logger:  logger,
	}

	if params.Searcher != nil {
		searcher, err := resilience.NewBreakerSearcher(params.Searcher, params.Breaker, logger.WithPrefix("core.breaker"))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		retriever, err := retrieval.NewThresholdRetriever(searcher, params.Retrieval,
			retrieval.WithLogger(logger.WithPrefix("core.retrieval")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		e.retriever = retriever
	}

	logger.Info("core engine initialized", map[string]interface{}{
		"redis_enabled": params.RedisEnabled,
		"retrieval":     e.retriever != nil,
	})
	return e, nil
}

func buildStore(params Params, logger observability.Logger) (cache.Cache, error) {
	if !params.RedisEnabled {
		opts := []cache.MemoryOption{
			cache.WithLogger(logger.WithPrefix("core.cache")),
		}
		if params.Clock != nil {
			opts = append(opts, cache.WithClock(params.Clock))
		}
		return cache.NewMemoryCache(params.Cache, opts...)
	}

	redisCache, err := cache.NewRedisCache(params.Redis, params.Cache.DefaultTTL)
	if err != nil {
		return nil, err
	}
	mlOpts := []cache.MultiLevelOption{
		cache.WithMultiLevelLogger(logger.WithPrefix("core.cache")),
	}
	if params.Clock != nil {
		mlOpts = append(mlOpts, cache.WithMultiLevelClock(params.Clock))
	}
	ml, err := cache.NewMultiLevelCache(redisCache, cache.MultiLevelConfig{L1MaxSize: params.L1MaxSize}, mlOpts...)
	if err != nil {
		_ = redisCache.Close()
		return nil, err
	}
	return ml, nil
}

// Cache exposes the underlying store.
func (e *Engine) Cache() cache.Cache { return e.store }

// History exposes the conversation history manager.
func (e *Engine) History() *history.Manager { return e.history }

// Retriever returns the configured retriever, or an error when the
// engine was built without a search backend.
func (e *Engine) Retriever() (*retrieval.ThresholdRetriever, error) {
	if e.retriever == nil {
		return nil, errors.InvalidArgumentf("core.retriever", "engine built without a searcher")
	}
	return e.retriever, nil
}

// Stats reports store statistics.
func (e *Engine) Stats() cache.Stats { return e.store.Stats() }

// Shutdown stops background workers and releases the store.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info("core engine shutting down", nil)
	if err := ctx.Err(); err != nil {
		return errors.FromContext("core.shutdown", ctx)
	}
	return e.store.Close()
}
