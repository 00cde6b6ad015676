package scoring

import (
	"testing"
	"time"

	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/pkg/types"
)

func testEngine() *Engine {
	return New(config.ScoringConfig{
		RecencyWeight:           1.0 / 3.0,
		ImportanceWeight:        1.0 / 3.0,
		RelevanceWeight:         1.0 / 3.0,
		DecayLambda:             0.005,
		ContextSimilarityWeight: 1.0,
		ImportanceFactorWeight:  0,
		AccessPatternWeight:     0,
		MaxAccessCountForNorm:   100,
	})
}

func TestRecency_DecaysTowardZeroWithAge(t *testing.T) {
	e := testEngine()
	now := time.Now()
	fresh := e.Recency(now, now)
	old := e.Recency(now.Add(-1000*time.Hour), now)

	if fresh != 1.0 {
		t.Fatalf("expected recency 1.0 for zero elapsed time, got %v", fresh)
	}
	if old >= fresh {
		t.Fatalf("expected older reference to score lower recency: old=%v fresh=%v", old, fresh)
	}
}

func TestRelevance_RemapsCosineRange(t *testing.T) {
	e := testEngine()
	cases := map[float64]float64{
		1.0:  1.0,
		-1.0: 0.0,
		0.0:  0.5,
	}
	for cos, want := range cases {
		got := e.Relevance(cos)
		if got != want {
			t.Fatalf("Relevance(%v) = %v, want %v", cos, got, want)
		}
	}
}

func TestCombined_WeightsAllThreeComponents(t *testing.T) {
	e := testEngine()
	now := time.Now()
	query := []float32{1, 0}
	m := &types.Memory{
		ImportanceScore: 0.9,
		CreatedAt:       now,
		Embedding:       []float32{1, 0},
	}

	b := e.Combined(m, query, now)
	if b.Recency != 1.0 || b.Importance != 0.9 || b.Relevance != 1.0 {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
	if !b.HasEmbedding || b.Similarity != 1.0 {
		t.Fatalf("expected HasEmbedding with similarity 1.0, got %+v", b)
	}
	want := (1.0 + 0.9 + 1.0) / 3.0
	if diff := b.Combined - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("Combined = %v, want %v", b.Combined, want)
	}
}

func TestCombined_UsesLastAccessedOverCreatedAt(t *testing.T) {
	e := testEngine()
	now := time.Now()
	old := now.Add(-500 * time.Hour)
	recent := now.Add(-1 * time.Hour)
	m := &types.Memory{
		CreatedAt:      old,
		LastAccessedAt: &recent,
	}

	b := e.Combined(m, nil, now)
	directRecency := e.Recency(recent, now)
	if b.Recency != directRecency {
		t.Fatalf("expected recency computed from LastAccessedAt, got %v want %v", b.Recency, directRecency)
	}
}

func TestCombined_FallsBackWhenEmbeddingMissing(t *testing.T) {
	e := testEngine()
	now := time.Now()
	m := &types.Memory{ImportanceScore: 0.4, CreatedAt: now}

	b := e.Combined(m, []float32{1, 0}, now)
	if b.HasEmbedding {
		t.Fatalf("expected fallback relevance when memory has no embedding, got %+v", b)
	}
	want := 0.5*0.4 + 0.3*0 + 0.2
	if diff := b.Relevance - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("Relevance = %v, want %v", b.Relevance, want)
	}
}
