package sqlite

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/store"
)

var _ store.SearchProvider = (*Store)(nil)

// vectorSearchMaxCandidates caps how many recent embeddings are loaded into
// Go memory and ranked per call. Datasets beyond this should move to the
// postgres/pgvector backend for indexed ANN search, per the teacher's
// sqlite search_provider.go comment on the same limit.
const vectorSearchMaxCandidates = 10_000

// LexicalSearch runs an FTS5 MATCH query over memories_fts.
func (s *Store) LexicalSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	opts.Normalize()
	if opts.Query == "" {
		return nil, apperr.New(apperr.KindInvalid, "query is required")
	}

	const q = `
		SELECT m.` + selectColumns + `, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.id
		WHERE memories_fts MATCH ? AND m.status = 'active'
		ORDER BY rank
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, q, sanitizeFTSQuery(opts.Query), opts.Limit, opts.Offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "lexical search", err)
	}
	defer rows.Close()

	var out []store.ScoredMemory
	for rows.Next() {
		var rank float64
		m, err := scanMemoryPlusExtra(rows, &rank)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindBackend, "scan lexical row", err)
		}
		// bm25 is a cost (lower is better; FTS5 returns it as a negative
		// number); invert into a similarity-style score in [0, 1) so callers
		// treat every backend's SimilarityScore the same.
		relevance := math.Max(0, -rank)
		out = append(out, store.ScoredMemory{Memory: m, SimilarityScore: relevance / (1.0 + relevance)})
	}
	return out, nil
}

// VectorSearch loads up to vectorSearchMaxCandidates embeddings (most
// recent first) and ranks them by in-process cosine similarity, the same
// degrade-to-linear-scan strategy the teacher's sqlite backend uses in the
// absence of a native ANN index.
func (s *Store) VectorSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	opts.Normalize()
	if len(opts.Vector) == 0 {
		return nil, apperr.New(apperr.KindInvalid, "vector is required")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.memory_id, e.embedding, e.dimension
		FROM embeddings e
		JOIN memories m ON m.id = e.memory_id
		WHERE m.status = 'active'
		ORDER BY m.created_at DESC
		LIMIT ?`, vectorSearchMaxCandidates)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "load embeddings", err)
	}

	type candidate struct {
		id    string
		score float64
	}
	var candidates []candidate
	for rows.Next() {
		var id string
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &blob, &dim); err != nil {
			continue
		}
		vec, err := deserializeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{id, cosineSimilarity(opts.Vector, vec)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "iterate embeddings", err)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	end := opts.Offset + opts.Limit
	if end > len(candidates) {
		end = len(candidates)
	}
	if opts.Offset > len(candidates) {
		return nil, nil
	}

	out := make([]store.ScoredMemory, 0, end-opts.Offset)
	for _, c := range candidates[opts.Offset:end] {
		m, err := s.Get(ctx, c.id)
		if err != nil {
			continue
		}
		out = append(out, store.ScoredMemory{Memory: m, SimilarityScore: c.score})
	}
	return out, nil
}

// cosineSimilarity returns 0 for mismatched or zero-magnitude vectors
// rather than NaN, so a bad embedding never poisons the sort order.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sanitizeFTSQuery strips characters FTS5's MATCH syntax treats specially,
// so arbitrary user text can't break the query parser.
func sanitizeFTSQuery(q string) string {
	replacer := strings.NewReplacer(`"`, ` `, `*`, ` `, `:`, ` `, `(`, ` `, `)`, ` `)
	cleaned := strings.TrimSpace(replacer.Replace(q))
	if cleaned == "" {
		return `""`
	}
	return fmt.Sprintf(`"%s"`, cleaned)
}
