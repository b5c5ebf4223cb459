package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/rag-core/pkg/errors"
	"github.com/developer-mesh/rag-core/pkg/observability"
	"github.com/developer-mesh/rag-core/pkg/retrieval"
)

func setupSearcher(t *testing.T) (*PostgresSearcher, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	searcher, err := NewPostgresSearcher(
		sqlx.NewDb(db, "postgres"),
		Config{Table: "embeddings"},
		observability.NewNoopLogger(),
	)
	require.NoError(t, err)
	return searcher, mock
}

func searchColumns() []string {
	return []string{"id", "content", "score", "metadata"}
}

func TestSearchCosine(t *testing.T) {
	searcher, mock := setupSearcher(t)

	query := "SELECT id, content, 1 - (embedding <=> $1::vector) AS score, metadata FROM embeddings ORDER BY embedding <=> $1::vector LIMIT $2"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("[1,0,0]", 5).
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow("doc-1", "first chunk", 0.92, []byte(`{"source":"handbook"}`)).
			AddRow("doc-2", "second chunk", 0.81, nil))

	matches, err := searcher.Search(context.Background(), []float32{1, 0, 0}, 5, retrieval.MetricCosine)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "doc-1", matches[0].DocumentID)
	assert.Equal(t, "first chunk", matches[0].Text)
	assert.InDelta(t, 0.92, matches[0].Score, 1e-9)
	assert.Equal(t, "handbook", matches[0].Metadata["source"])

	assert.Equal(t, "doc-2", matches[1].DocumentID)
	assert.Nil(t, matches[1].Metadata)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchEuclideanReturnsDistance(t *testing.T) {
	searcher, mock := setupSearcher(t)

	query := "SELECT id, content, embedding <-> $1::vector AS score, metadata FROM embeddings ORDER BY embedding <-> $1::vector LIMIT $2"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("[0.5,-2]", 3).
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow("doc-1", "chunk", 0.42, nil))

	matches, err := searcher.Search(context.Background(), []float32{0.5, -2}, 3, retrieval.MetricEuclidean)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.42, matches[0].Score, 1e-9)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchDotProduct(t *testing.T) {
	searcher, mock := setupSearcher(t)

	query := "SELECT id, content, -(embedding <#> $1::vector) AS score, metadata FROM embeddings ORDER BY embedding <#> $1::vector LIMIT $2"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("[1]", 2).
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow("doc-1", "chunk", 0.7, nil))

	matches, err := searcher.Search(context.Background(), []float32{1}, 2, retrieval.MetricDotProduct)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchValidation(t *testing.T) {
	searcher, _ := setupSearcher(t)

	_, err := searcher.Search(context.Background(), nil, 5, retrieval.MetricCosine)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))

	_, err = searcher.Search(context.Background(), []float32{1}, 0, retrieval.MetricCosine)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))

	_, err = searcher.Search(context.Background(), []float32{1}, 5, retrieval.Metric("manhattan"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestSearchBackendError(t *testing.T) {
	searcher, mock := setupSearcher(t)

	mock.ExpectQuery("SELECT id, content").
		WillReturnError(fmt.Errorf("connection reset"))

	_, err := searcher.Search(context.Background(), []float32{1}, 5, retrieval.MetricCosine)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestNewPostgresSearcherValidation(t *testing.T) {
	_, err := NewPostgresSearcher(nil, Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = NewPostgresSearcher(sqlx.NewDb(db, "postgres"), Config{Table: "bad-name; drop"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[1,0,0]", vectorLiteral([]float32{1, 0, 0}))
	assert.Equal(t, "[0.5,-2]", vectorLiteral([]float32{0.5, -2}))
}
