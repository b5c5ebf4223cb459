package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/developer-mesh/rag-core/pkg/errors"
	"github.com/developer-mesh/rag-core/pkg/observability"
)

// Config holds the retriever defaults, all overridable per query.
type Config struct {
	DefaultLimitK    int      `mapstructure:"default_limit_k"`
	DefaultTopK      int      `mapstructure:"default_top_k"`
	DefaultMetric    string   `mapstructure:"default_metric"`
	DefaultThreshold float64  `mapstructure:"default_threshold"`
	AllowedMetrics   []string `mapstructure:"allowed_metrics"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DefaultTopK <= 0 {
		return errors.InvalidArgumentf("retrieval.config", "default_top_k must be positive, got %d", c.DefaultTopK)
	}
	if c.DefaultLimitK < c.DefaultTopK {
		return errors.InvalidArgumentf("retrieval.config", "default_limit_k %d < default_top_k %d", c.DefaultLimitK, c.DefaultTopK)
	}
	if c.DefaultThreshold < 0 || c.DefaultThreshold > 1 {
		return errors.InvalidArgumentf("retrieval.config", "default_threshold must be in [0,1], got %g", c.DefaultThreshold)
	}
	if _, err := ParseMetric(c.DefaultMetric, c.allowed()); err != nil {
		return err
	}
	return nil
}

func (c Config) allowed() []Metric {
	out := make([]Metric, 0, len(c.AllowedMetrics))
	for _, m := range c.AllowedMetrics {
		out = append(out, Metric(m))
	}
	return out
}

// Options are the per-query knobs. Zero values select the configured
// defaults.
type Options struct {
	// LimitK is the candidate pool fetched from the backend.
	LimitK int
	// TopK caps the final result set. Must not exceed LimitK.
	TopK int
	// Metric names the index similarity metric.
	Metric string
	// Threshold is the normalized similarity cutoff in [0,1]. Set
	// ThresholdSet when passing an explicit zero.
	Threshold    float64
	ThresholdSet bool
}

// ThresholdRetriever wraps a vector-search backend with the over-fetch,
// normalize, filter, rank pipeline. It holds no mutable state; calls are
// independent and safely parallel.
type ThresholdRetriever struct {
	searcher Searcher
	config   Config
	logger   observability.Logger
}

// Option configures a ThresholdRetriever.
type Option func(*ThresholdRetriever)

// WithLogger sets the retriever logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *ThresholdRetriever) { r.logger = logger }
}

// NewThresholdRetriever creates a retriever over the given backend.
func NewThresholdRetriever(searcher Searcher, config Config, opts ...Option) (*ThresholdRetriever, error) {
	if searcher == nil {
		return nil, errors.InvalidArgumentf("retrieval.new", "searcher must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &ThresholdRetriever{
		searcher: searcher,
		config:   config,
		logger:   observability.NewStandardLogger("retrieval"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve runs one retrieval pass. An empty result is a valid outcome
// meaning "no confident answer", never an error.
func (r *ThresholdRetriever) Retrieve(ctx context.Context, vector []float32, opts Options) ([]Candidate, error) {
	limitK, topK, metric, threshold, err := r.resolve(opts)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, errors.InvalidArgumentf("retrieval.retrieve", "query vector must not be empty")
	}

	ctx, span := observability.StartSpan(ctx, "retrieval.retrieve",
		attribute.Int("limit_k", limitK),
		attribute.Int("top_k", topK),
		attribute.String("metric", string(metric)),
		attribute.Float64("threshold", threshold),
	)
	var retErr error
	defer func() { observability.EndSpan(span, retErr) }()

	matches, err := r.searcher.Search(ctx, vector, limitK, metric)
	if err != nil {
		retErr = errors.WrapBackend("retrieval.search", err)
		return nil, retErr
	}

	candidates := make([]Candidate, 0, len(matches))
	for _, match := range matches {
		candidates = append(candidates, Candidate{
			DocumentID: match.DocumentID,
			Text:       match.Text,
			Score:      NormalizeScore(match.Score, metric),
			RawScore:   match.Score,
			Metadata:   match.Metadata,
		})
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if c.Score >= threshold {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].DocumentID < kept[j].DocumentID
	})

	if len(kept) > topK {
		kept = kept[:topK]
	}

	r.logger.Debug("retrieval complete", map[string]interface{}{
		"fetched":  len(matches),
		"returned": len(kept),
		"metric":   string(metric),
	})

	out := make([]Candidate, len(kept))
	copy(out, kept)
	return out, nil
}

// resolve merges per-query options with the configured defaults and
// validates them before any backend call.
func (r *ThresholdRetriever) resolve(opts Options) (limitK, topK int, metric Metric, threshold float64, err error) {
	limitK = opts.LimitK
	if limitK == 0 {
		limitK = r.config.DefaultLimitK
	}
	topK = opts.TopK
	if topK == 0 {
		topK = r.config.DefaultTopK
	}
	threshold = r.config.DefaultThreshold
	if opts.ThresholdSet {
		threshold = opts.Threshold
	}

	name := opts.Metric
	if name == "" {
		name = r.config.DefaultMetric
	}
	metric, err = ParseMetric(name, r.config.allowed())
	if err != nil {
		return 0, 0, "", 0, err
	}

	if limitK < 0 || topK <= 0 {
		err = errors.InvalidArgumentf("retrieval.retrieve", "limit_k %d and top_k %d must be positive", limitK, topK)
		return 0, 0, "", 0, err
	}
	if topK > limitK {
		err = errors.InvalidArgumentf("retrieval.retrieve", "top_k %d exceeds limit_k %d", topK, limitK)
		return 0, 0, "", 0, err
	}
	if threshold < 0 || threshold > 1 {
		err = errors.InvalidArgumentf("retrieval.retrieve", "threshold must be in [0,1], got %g", threshold)
		return 0, 0, "", 0, err
	}
	return limitK, topK, metric, threshold, nil
}

// NormalizeScore maps a backend-native score onto the common 0-1
// higher-is-better scale. Cosine and dotproduct scores are clamped;
// euclidean distances invert monotonically via 1/(1+d), so the same
// threshold comparison holds across metrics.
func NormalizeScore(raw float64, metric Metric) float64 {
	switch metric {
	case MetricEuclidean:
		if raw < 0 {
			raw = 0
		}
		return 1 / (1 + raw)
	default:
		return clamp01(raw)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// String implements fmt.Stringer for debugging.
func (c Candidate) String() string {
	return fmt.Sprintf("%s (%.3f)", c.DocumentID, c.Score)
}
