// Package resilience wraps vector-search backends with circuit breakers
// so a struggling backend sheds load instead of queueing callers.
package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/developer-mesh/rag-core/pkg/errors"
	"github.com/developer-mesh/rag-core/pkg/observability"
	"github.com/developer-mesh/rag-core/pkg/retrieval"
)

// CircuitBreakerConfig tunes the search breaker.
type CircuitBreakerConfig struct {
	Name         string        `mapstructure:"name"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

func (c *CircuitBreakerConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "vector-search"
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 5
	}
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.5
	}
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
}

// BreakerSearcher decorates a Searcher with a circuit breaker. Rejected
// calls surface as retryable backend errors so callers can fall back or
// retry later.
type BreakerSearcher struct {
	inner   retrieval.Searcher
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// NewBreakerSearcher wraps inner with a breaker built from config.
func NewBreakerSearcher(inner retrieval.Searcher, config CircuitBreakerConfig, logger observability.Logger) (*BreakerSearcher, error) {
	if inner == nil {
		return nil, errors.InvalidArgumentf("resilience.new", "inner searcher must not be nil")
	}
	config.applyDefaults()
	if logger == nil {
		logger = observability.NewStandardLogger("resilience")
	}

	s := &BreakerSearcher{inner: inner, logger: logger}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		// Caller mistakes must not open the breaker; only backend
		// trouble counts as failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsInvalidArgument(err) || err == context.Canceled
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return s, nil
}

// Search implements retrieval.Searcher.
func (s *BreakerSearcher) Search(ctx context.Context, vector []float32, k int, metric retrieval.Metric) ([]retrieval.Match, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.Search(ctx, vector, k, metric)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errors.BackendUnavailable("searcher.search", err)
		}
		return nil, errors.WrapBackend("searcher.search", err)
	}
	matches, _ := result.([]retrieval.Match)
	return matches, nil
}

// State reports the breaker state, mostly for health checks.
func (s *BreakerSearcher) State() gobreaker.State {
	return s.breaker.State()
}
