// Package scoring implements the three-component combined score (Recency,
// Importance, Relevance) that ranks retrieval candidates, adapted from the
// teacher's internal/engine decay and confidence scoring style — a
// multi-factor score that breaks down into named, independently inspectable
// components.
package scoring

import (
	"math"
	"time"

	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/pkg/types"
)

// Breakdown exposes each component of a Combined score, plus the raw
// inputs and weights spec.md §4.2's explain mode requires, for explain-mode
// responses (SPEC_FULL.md Section C.1, mirroring ScoreBreakdown /
// RecencyDetails / RelevanceDetails / WeightsUsed in
// three_component_scoring.rs).
type Breakdown struct {
	Recency    float64
	Importance float64
	Relevance  float64
	Combined   float64

	// HoursSinceAccess is the raw Δh recency was computed from.
	HoursSinceAccess float64
	// Similarity is the remapped sim' in [0,1] that fed Relevance when an
	// embedding was available on both sides, or 0 under the fallback.
	Similarity float64
	// HasEmbedding reports whether Similarity came from an actual
	// cosine comparison rather than the missing-embedding fallback.
	HasEmbedding bool

	RecencyWeight    float64
	ImportanceWeight float64
	RelevanceWeight  float64
}

// Engine computes Combined scores from a loaded scoring configuration.
type Engine struct {
	cfg config.ScoringConfig
}

// New builds an Engine from cfg. The three weights are expected to already
// sum to 1 (config.Normalize is applied on load, spec.md §9).
func New(cfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Recency returns exp(-lambda * hoursSince), in (0, 1].
func (e *Engine) Recency(reference, now time.Time) float64 {
	hours := now.Sub(reference).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-e.cfg.DecayLambda * hours)
}

// Relevance remaps a raw cosine similarity in [-1, 1] to [0, 1] via
// (cos+1)/2, per spec.md §4.2 (the original Rust scorer uses raw cosine;
// spec.md's remapping is treated as normative here — see the relevance
// remap note in DESIGN.md).
func (e *Engine) Relevance(cosineSimilarity float64) float64 {
	r := (cosineSimilarity + 1.0) / 2.0
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// normalizedAccessCount maps an access count onto [0,1] against the
// configured ceiling, matching the teacher's capped-bonus idiom in
// confidence_scorer.go (diminishing returns past a cap).
func (e *Engine) normalizedAccessCount(count int) float64 {
	if e.cfg.MaxAccessCountForNorm <= 0 {
		return 0
	}
	v := float64(count) / float64(e.cfg.MaxAccessCountForNorm)
	if v > 1 {
		return 1
	}
	return v
}

// cosineSimilarity returns the raw cosine similarity of a and b in
// [-1, 1], or 0 for mismatched dimensions or a zero-magnitude vector,
// mirroring the store's vector-search scorer and
// calculate_cosine_similarity in three_component_scoring.rs.
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

// relevanceComponent computes V(m,ctx) per spec.md §4.2: when both m and
// the query carry an embedding, a weighted blend of remapped semantic
// similarity, importance, and access pattern; otherwise the fixed
// 0.5·I + 0.3·A + 0.2 baseline (three_component_scoring.rs's
// calculate_relevance_score and its no-embedding fallback arm).
func (e *Engine) relevanceComponent(m *types.Memory, queryEmbedding []float32) (relevance, similarity float64, hasEmbedding bool) {
	accessPattern := e.normalizedAccessCount(m.AccessCount)

	if len(m.Embedding) == 0 || len(queryEmbedding) == 0 {
		v := 0.5*m.ImportanceScore + 0.3*accessPattern + 0.2
		if v > 1 {
			v = 1
		}
		return v, 0, false
	}

	sim := e.Relevance(cosineSimilarity(m.Embedding, queryEmbedding))
	v := e.cfg.ContextSimilarityWeight*sim +
		e.cfg.ImportanceFactorWeight*m.ImportanceScore +
		e.cfg.AccessPatternWeight*accessPattern
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	return v, sim, true
}

// Combined computes the full three-component score for a memory against a
// query embedding, and returns the per-component Breakdown alongside it.
// queryEmbedding may be nil, which forces the relevance fallback.
func (e *Engine) Combined(m *types.Memory, queryEmbedding []float32, now time.Time) Breakdown {
	reference := m.RecencyReference()
	hoursSince := now.Sub(reference).Hours()
	if hoursSince < 0 {
		hoursSince = 0
	}

	recency := e.Recency(reference, now)
	relevance, similarity, hasEmbedding := e.relevanceComponent(m, queryEmbedding)
	importance := m.ImportanceScore

	combined := e.cfg.RecencyWeight*recency +
		e.cfg.ImportanceWeight*importance +
		e.cfg.RelevanceWeight*relevance

	return Breakdown{
		Recency:    recency,
		Importance: importance,
		Relevance:  relevance,
		Combined:   combined,

		HoursSinceAccess: hoursSince,
		Similarity:       similarity,
		HasEmbedding:     hasEmbedding,

		RecencyWeight:    e.cfg.RecencyWeight,
		ImportanceWeight: e.cfg.ImportanceWeight,
		RelevanceWeight:  e.cfg.RelevanceWeight,
	}
}
