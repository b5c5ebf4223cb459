// Package vectorstore implements retrieval.Searcher over Postgres with
// the pgvector extension. It is a thin adapter on the stock database
// driver; schema and index management are owned elsewhere.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/rag-core/pkg/errors"
	"github.com/developer-mesh/rag-core/pkg/observability"
	"github.com/developer-mesh/rag-core/pkg/retrieval"
)

// Config locates the embeddings table.
type Config struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PostgresSearcher runs pgvector similarity queries.
type PostgresSearcher struct {
	db     *sqlx.DB
	table  string
	logger observability.Logger
}

// NewPostgresSearcher creates a searcher over an existing connection.
func NewPostgresSearcher(db *sqlx.DB, cfg Config, logger observability.Logger) (*PostgresSearcher, error) {
	if db == nil {
		return nil, errors.InvalidArgumentf("vectorstore.new", "db must not be nil")
	}
	table := cfg.Table
	if table == "" {
		table = "embeddings"
	}
	if !validTableName(table) {
		return nil, errors.InvalidArgumentf("vectorstore.new", "invalid table name %q", table)
	}
	if logger == nil {
		logger = observability.NewStandardLogger("vectorstore")
	}
	return &PostgresSearcher{db: db, table: table, logger: logger}, nil
}

// validTableName admits only identifiers we are willing to interpolate
// into SQL: lowercase letters, digits, underscores, with an optional
// schema qualifier.
func validTableName(name string) bool {
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r >= 'a' && r <= 'z':
			case r == '_':
			case r >= '0' && r <= '9':
				if i == 0 {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

type searchRow struct {
	ID       string          `db:"id"`
	Content  string          `db:"content"`
	Score    float64         `db:"score"`
	Metadata json.RawMessage `db:"metadata"`
}

// Search implements retrieval.Searcher. Scores come back in the
// metric's native scale; the retriever normalizes them.
func (s *PostgresSearcher) Search(ctx context.Context, vector []float32, k int, metric retrieval.Metric) ([]retrieval.Match, error) {
	if len(vector) == 0 {
		return nil, errors.InvalidArgumentf("vectorstore.search", "query vector must not be empty")
	}
	if k <= 0 {
		return nil, errors.InvalidArgumentf("vectorstore.search", "k must be positive, got %d", k)
	}

	var scoreExpr, orderExpr string
	switch metric {
	case retrieval.MetricCosine:
		scoreExpr = "1 - (embedding <=> $1::vector)"
		orderExpr = "embedding <=> $1::vector"
	case retrieval.MetricDotProduct:
		// <#> is negative inner product; negate it back.
		scoreExpr = "-(embedding <#> $1::vector)"
		orderExpr = "embedding <#> $1::vector"
	case retrieval.MetricEuclidean:
		scoreExpr = "embedding <-> $1::vector"
		orderExpr = "embedding <-> $1::vector"
	default:
		return nil, errors.InvalidArgumentf("vectorstore.search", "unsupported metric %q", metric)
	}

	query := fmt.Sprintf(
		"SELECT id, content, %s AS score, metadata FROM %s ORDER BY %s LIMIT $2",
		scoreExpr, s.table, orderExpr,
	)

	var rows []searchRow
	if err := s.db.SelectContext(ctx, &rows, query, vectorLiteral(vector), k); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.WrapBackend("vectorstore.search", err)
	}

	matches := make([]retrieval.Match, 0, len(rows))
	for _, row := range rows {
		match := retrieval.Match{
			DocumentID: row.ID,
			Text:       row.Content,
			Score:      row.Score,
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &match.Metadata); err != nil {
				s.logger.Warn("skipping unparseable metadata", map[string]interface{}{
					"document_id": row.ID,
					"error":       err.Error(),
				})
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// vectorLiteral renders the pgvector input literal, e.g. "[1,0,0]".
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
