package retrieval_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/rag-core/pkg/errors"
	"github.com/developer-mesh/rag-core/pkg/retrieval"
	"github.com/developer-mesh/rag-core/pkg/retrieval/mocks"
)

func testConfig() retrieval.Config {
	return retrieval.Config{
		DefaultLimitK:    10,
		DefaultTopK:      3,
		DefaultMetric:    "cosine",
		DefaultThreshold: 0.75,
		AllowedMetrics:   []string{"cosine", "dotproduct", "euclidean"},
	}
}

func allMetrics() []retrieval.Metric {
	return []retrieval.Metric{retrieval.MetricCosine, retrieval.MetricDotProduct, retrieval.MetricEuclidean}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    retrieval.Metric
		wantErr bool
	}{
		{name: "cosine", input: "cosine", want: retrieval.MetricCosine},
		{name: "case insensitive", input: "DotProduct", want: retrieval.MetricDotProduct},
		{name: "trimmed", input: " euclidean ", want: retrieval.MetricEuclidean},
		{name: "unknown", input: "manhattan", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := retrieval.ParseMetric(tt.input, allMetrics())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidArgument(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("outside allowed set", func(t *testing.T) {
		_, err := retrieval.ParseMetric("euclidean", []retrieval.Metric{retrieval.MetricCosine})
		require.Error(t, err)
		assert.True(t, errors.IsInvalidArgument(err))
	})
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*retrieval.Config)
	}{
		{name: "zero top_k", mutate: func(c *retrieval.Config) { c.DefaultTopK = 0 }},
		{name: "limit_k below top_k", mutate: func(c *retrieval.Config) { c.DefaultLimitK = 2 }},
		{name: "threshold above one", mutate: func(c *retrieval.Config) { c.DefaultThreshold = 1.1 }},
		{name: "negative threshold", mutate: func(c *retrieval.Config) { c.DefaultThreshold = -0.1 }},
		{name: "bad metric", mutate: func(c *retrieval.Config) { c.DefaultMetric = "taxicab" }},
		{name: "default metric outside allowed", mutate: func(c *retrieval.Config) { c.AllowedMetrics = []string{"euclidean"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalidArgument(err))
		})
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, testConfig().Validate())
	})
}

func TestThresholdFilterAndRanking(t *testing.T) {
	scores := []float64{0.95, 0.40, 0.80, 0.75, 0.60, 0.90, 0.74, 0.85, 0.76, 0.99}
	matches := make([]retrieval.Match, len(scores))
	for i, s := range scores {
		matches[i] = retrieval.Match{DocumentID: fmt.Sprintf("doc-%02d", i), Text: "text", Score: s}
	}
	mock := &mocks.MockSearcher{Matches: matches}

	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	got, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, retrieval.Options{
		LimitK:       10,
		TopK:         6,
		Threshold:    0.75,
		ThresholdSet: true,
	})
	require.NoError(t, err)

	wantIDs := []string{"doc-09", "doc-00", "doc-05", "doc-07", "doc-02", "doc-08"}
	require.Len(t, got, len(wantIDs))
	for i, want := range wantIDs {
		assert.Equal(t, want, got[i].DocumentID)
	}
	// doc-03 at exactly 0.75 would rank 7th, so the TopK cap drops it.
	assert.Equal(t, 10, mock.LastK)
}

func TestTieBreakByDocumentID(t *testing.T) {
	mock := &mocks.MockSearcher{Matches: []retrieval.Match{
		{DocumentID: "doc-c", Score: 0.9},
		{DocumentID: "doc-a", Score: 0.9},
		{DocumentID: "doc-b", Score: 0.9},
	}}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	got, err := r.Retrieve(context.Background(), []float32{1}, retrieval.Options{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "doc-a", got[0].DocumentID)
	assert.Equal(t, "doc-b", got[1].DocumentID)
	assert.Equal(t, "doc-c", got[2].DocumentID)
}

func TestEuclideanNormalization(t *testing.T) {
	mock := &mocks.MockSearcher{Matches: []retrieval.Match{
		{DocumentID: "far", Score: 2.0},
		{DocumentID: "near", Score: 0.1},
	}}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	got, err := r.Retrieve(context.Background(), []float32{1}, retrieval.Options{
		Metric:       "euclidean",
		Threshold:    0,
		ThresholdSet: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].DocumentID)
	assert.InDelta(t, 1/1.1, got[0].Score, 1e-9)
	assert.Equal(t, "far", got[1].DocumentID)
	assert.InDelta(t, 1/3.0, got[1].Score, 1e-9)
}

func TestNormalizeScoreClamps(t *testing.T) {
	assert.Equal(t, 1.0, retrieval.NormalizeScore(1.7, retrieval.MetricCosine))
	assert.Equal(t, 0.0, retrieval.NormalizeScore(-0.2, retrieval.MetricDotProduct))
	assert.Equal(t, 1.0, retrieval.NormalizeScore(-1, retrieval.MetricEuclidean))
}

func TestTopKExceedsLimitKFailsBeforeBackend(t *testing.T) {
	mock := &mocks.MockSearcher{}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), []float32{1}, retrieval.Options{LimitK: 5, TopK: 10})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
	assert.Equal(t, 0, mock.CallCount())
}

func TestUnsupportedMetricFailsBeforeBackend(t *testing.T) {
	mock := &mocks.MockSearcher{}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), []float32{1}, retrieval.Options{Metric: "hamming"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
	assert.Equal(t, 0, mock.CallCount())
}

func TestAllBelowThresholdReturnsEmpty(t *testing.T) {
	mock := &mocks.MockSearcher{Matches: []retrieval.Match{
		{DocumentID: "a", Score: 0.2},
		{DocumentID: "b", Score: 0.4},
	}}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	got, err := r.Retrieve(context.Background(), []float32{1}, retrieval.Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFewerCandidatesThanLimitK(t *testing.T) {
	mock := &mocks.MockSearcher{Matches: []retrieval.Match{
		{DocumentID: "only", Score: 0.9},
	}}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	got, err := r.Retrieve(context.Background(), []float32{1}, retrieval.Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].DocumentID)
}

func TestDefaultsApplied(t *testing.T) {
	mock := &mocks.MockSearcher{Matches: []retrieval.Match{
		{DocumentID: "a", Score: 0.80},
		{DocumentID: "b", Score: 0.85},
		{DocumentID: "c", Score: 0.90},
		{DocumentID: "d", Score: 0.95},
	}}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	got, err := r.Retrieve(context.Background(), []float32{1}, retrieval.Options{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "d", got[0].DocumentID)
	assert.Equal(t, 10, mock.LastK)
	assert.Equal(t, retrieval.MetricCosine, mock.LastMetric)
}

func TestBackendErrorClassified(t *testing.T) {
	mock := &mocks.MockSearcher{Err: fmt.Errorf("connection refused")}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), []float32{1}, retrieval.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.False(t, errors.IsInvalidArgument(err))
}

func TestEmptyVectorRejected(t *testing.T) {
	mock := &mocks.MockSearcher{}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), nil, retrieval.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
	assert.Equal(t, 0, mock.CallCount())
}

func TestRawScorePreserved(t *testing.T) {
	mock := &mocks.MockSearcher{Matches: []retrieval.Match{
		{DocumentID: "a", Score: 0.3},
	}}
	r, err := retrieval.NewThresholdRetriever(mock, testConfig())
	require.NoError(t, err)

	got, err := r.Retrieve(context.Background(), []float32{1}, retrieval.Options{
		Metric:       "euclidean",
		Threshold:    0,
		ThresholdSet: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.3, got[0].RawScore, 1e-9)
	assert.InDelta(t, 1/1.3, got[0].Score, 1e-9)
}

func TestNewThresholdRetrieverValidation(t *testing.T) {
	_, err := retrieval.NewThresholdRetriever(nil, testConfig())
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))

	bad := testConfig()
	bad.DefaultTopK = 0
	_, err = retrieval.NewThresholdRetriever(&mocks.MockSearcher{}, bad)
	require.Error(t, err)
}
