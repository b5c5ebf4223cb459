// Package retrieval implements threshold-based vector retrieval: over-fetch
// candidates from a vector-search backend, normalize scores to a common 0-1
// scale, filter below a similarity threshold and return a ranked, capped
// result set.
package retrieval

import (
	"context"
	"strings"

	"github.com/developer-mesh/rag-core/pkg/errors"
)

// Metric identifies the similarity metric used by the backend index.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricDotProduct Metric = "dotproduct"
	MetricEuclidean  Metric = "euclidean"
)

// ParseMetric parses and validates a metric name against the allowed set.
// An empty allowed set permits every known metric.
func ParseMetric(name string, allowed []Metric) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	switch m {
	case MetricCosine, MetricDotProduct, MetricEuclidean:
	default:
		return "", errors.InvalidArgumentf("retrieval.metric", "unsupported metric %q", name)
	}

	if len(allowed) == 0 {
		return m, nil
	}
	for _, a := range allowed {
		if m == a {
			return m, nil
		}
	}
	return "", errors.InvalidArgumentf("retrieval.metric", "metric %q is not in the allowed set", name)
}

// Match is one raw candidate returned by the backend. Its Score is in the
// backend's native scale for the metric: higher-is-better for cosine and
// dotproduct, a distance (lower-is-better) for euclidean.
type Match struct {
	DocumentID string                 `json:"document_id"`
	Text       string                 `json:"text"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Searcher is the abstract vector-search backend contract. Implementations
// must honor ctx cancellation and return at most k matches, best-first in
// the backend's native order.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int, metric Metric) ([]Match, error)
}

// Candidate is one retrieved document with its normalized similarity.
type Candidate struct {
	DocumentID string                 `json:"document_id"`
	Text       string                 `json:"text"`
	Score      float64                `json:"score"`
	RawScore   float64                `json:"raw_score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
