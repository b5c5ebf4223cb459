package mocks

import (
	"context"
	"sync"

	"github.com/developer-mesh/rag-core/pkg/retrieval"
)

// MockSearcher is a mock implementation of the Searcher interface for
// testing. It records calls and replays canned matches.
type MockSearcher struct {
	mu sync.Mutex

	Matches []retrieval.Match
	Err     error

	Calls      int
	LastVector []float32
	LastK      int
	LastMetric retrieval.Metric
}

// Search mocks the Search method.
func (m *MockSearcher) Search(ctx context.Context, vector []float32, k int, metric retrieval.Metric) ([]retrieval.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.LastVector = vector
	m.LastK = k
	m.LastMetric = metric

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}

	out := make([]retrieval.Match, len(m.Matches))
	copy(out, m.Matches)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// CallCount returns the number of Search invocations.
func (m *MockSearcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}
