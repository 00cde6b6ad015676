// Package retrieval combines the Memory Store's search with the scoring
// engine to produce ranked recall results — spec.md's Component C.
package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/embedding"
	"github.com/scrypster/arbor/internal/scoring"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/pkg/types"
)

// Result is one ranked memory with its score breakdown, returned by Search.
type Result struct {
	Memory    *types.Memory
	Breakdown scoring.Breakdown
}

// Query describes a recall request.
type Query struct {
	Text     string
	Tier     types.Tier
	Limit    int
	MinScore float64
}

// Engine ranks candidates drawn from a store.Store by Combined score.
type Engine struct {
	store     store.Store
	embedder  embedding.Generator
	scorer    *scoring.Engine
}

// New builds a retrieval Engine over the given store, embedder, and
// scoring engine.
func New(s store.Store, embedder embedding.Generator, scorer *scoring.Engine) *Engine {
	return &Engine{store: s, embedder: embedder, scorer: scorer}
}

// Search embeds the query text, pulls vector and lexical candidates from
// the store, re-ranks the union by Combined score, and records an access
// event on every returned memory (spec.md: reads bump recency/engagement).
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.Text == "" {
		return nil, apperr.New(apperr.KindInvalid, "query text is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	candidateLimit := limit * 4
	if candidateLimit < 40 {
		candidateLimit = 40
	}

	vectorHits, err := e.store.VectorSearch(ctx, store.SearchOptions{
		Vector: vec, Limit: candidateLimit, Tier: q.Tier,
	})
	if err != nil {
		return nil, err
	}
	lexicalHits, err := e.store.LexicalSearch(ctx, store.SearchOptions{
		Query: q.Text, Limit: candidateLimit, Tier: q.Tier,
	})
	if err != nil {
		return nil, err
	}

	merged := mergeBySimilarity(vectorHits, lexicalHits)

	now := time.Now()
	results := make([]Result, 0, len(merged))
	for _, hit := range merged {
		b := e.scorer.Combined(hit.Memory, vec, now)
		if b.Combined < q.MinScore {
			continue
		}
		results = append(results, Result{Memory: hit.Memory, Breakdown: b})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Breakdown.Combined > results[j].Breakdown.Combined
	})
	if len(results) > limit {
		results = results[:limit]
	}

	for _, r := range results {
		if err := e.store.RecordAccess(ctx, r.Memory.ID, now); err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
	}

	return results, nil
}

// mergeBySimilarity unions two candidate sets by memory ID, keeping the
// higher similarity score when both searches surface the same memory.
func mergeBySimilarity(sets ...[]store.ScoredMemory) []store.ScoredMemory {
	byID := make(map[string]store.ScoredMemory)
	for _, set := range sets {
		for _, hit := range set {
			existing, ok := byID[hit.Memory.ID]
			if !ok || hit.SimilarityScore > existing.SimilarityScore {
				byID[hit.Memory.ID] = hit
			}
		}
	}
	out := make([]store.ScoredMemory, 0, len(byID))
	for _, hit := range byID {
		out = append(out, hit)
	}
	return out
}
