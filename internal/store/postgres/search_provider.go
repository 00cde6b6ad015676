package postgres

import (
	"context"
	"database/sql"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/store"
)

var _ store.SearchProvider = (*Store)(nil)

func (s *Store) storeEmbedding(ctx context.Context, memoryID string, vec []float32) error {
	if !s.pgvectorAvailable || len(vec) == 0 {
		return nil
	}
	v := pgvector.NewVector(vec)
	_, err := s.db.ExecContext(ctx, `UPDATE memories SET embedding_vec=$1 WHERE id=$2`, v, memoryID)
	return err
}

// LexicalSearch runs a full-text query against the generated content_tsv
// column, grounded on the teacher's FTS migration and search provider.
func (s *Store) LexicalSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	opts.Normalize()
	if opts.Query == "" {
		return nil, apperr.New(apperr.KindInvalid, "query is required")
	}

	const q = `
		SELECT ` + selectColumns + `,
			ts_rank(content_tsv, plainto_tsquery('english', $1)) AS rank
		FROM memories
		WHERE status = 'active' AND content_tsv @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, q, opts.Query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "lexical search", err)
	}
	defer rows.Close()

	var out []store.ScoredMemory
	for rows.Next() {
		var rank sql.NullFloat64
		m, err := scanMemoryPlusExtra(rows, &rank)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindBackend, "scan lexical row", err)
		}
		out = append(out, store.ScoredMemory{Memory: m, SimilarityScore: rank.Float64})
	}
	return out, nil
}

// VectorSearch runs an ANN query over embedding_vec using pgvector's cosine
// distance operator, falling back to recency order when the extension is
// unavailable (teacher's postgres search_provider.go degrade path).
func (s *Store) VectorSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	opts.Normalize()
	if len(opts.Vector) == 0 {
		return nil, apperr.New(apperr.KindInvalid, "vector is required")
	}

	if !s.pgvectorAvailable {
		page, err := s.List(ctx, store.ListOptions{Page: 1, Limit: opts.Limit, SortBy: "created_at", SortOrder: "desc"})
		if err != nil {
			return nil, err
		}
		out := make([]store.ScoredMemory, 0, len(page.Items))
		for i := range page.Items {
			out = append(out, store.ScoredMemory{Memory: &page.Items[i]})
		}
		return out, nil
	}

	vec := pgvector.NewVector(opts.Vector)
	const q = `
		SELECT ` + selectColumns + `, 1 - (embedding_vec <=> $1::vector) AS cosine_sim
		FROM memories
		WHERE status = 'active' AND embedding_vec IS NOT NULL
		ORDER BY embedding_vec <=> $1::vector
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, q, vec, opts.Limit, opts.Offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "vector search", err)
	}
	defer rows.Close()

	var out []store.ScoredMemory
	for rows.Next() {
		var sim sql.NullFloat64
		m, err := scanMemoryPlusExtra(rows, &sim)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindBackend, "scan vector row", err)
		}
		out = append(out, store.ScoredMemory{Memory: m, SimilarityScore: sim.Float64})
	}
	return out, nil
}
