package reflection

import (
	"testing"

	"github.com/scrypster/arbor/pkg/types"
)

func TestValidateAndPrune_DropsInsightsBelowQualityFloor(t *testing.T) {
	weak := &types.Insight{
		InsightType:       types.InsightPattern,
		ConfidenceScore:   0.9,
		ValidationMetrics: types.ValidationMetrics{Novelty: 0.1, Coherence: 0.9, EvidenceStrength: 0.9},
		RelatedConcepts:   []string{"x"},
	}
	strong := &types.Insight{
		InsightType:       types.InsightSynthesis,
		ConfidenceScore:   0.9,
		ValidationMetrics: types.ValidationMetrics{Novelty: 0.9, Coherence: 0.9, EvidenceStrength: 0.9},
		RelatedConcepts:   []string{"y"},
	}

	out := validateAndPrune([]*types.Insight{weak, strong})
	if len(out) != 1 || out[0] != strong {
		t.Fatalf("expected only the strong insight to survive, got %d results", len(out))
	}
}

func TestValidateAndPrune_DedupesByConceptsAndType(t *testing.T) {
	mk := func() *types.Insight {
		return &types.Insight{
			InsightType:       types.InsightGap,
			ConfidenceScore:   0.9,
			ValidationMetrics: types.ValidationMetrics{Novelty: 0.9, Coherence: 0.9, EvidenceStrength: 0.9},
			RelatedConcepts:   []string{"b", "a"},
		}
	}
	out := validateAndPrune([]*types.Insight{mk(), mk()})
	if len(out) != 1 {
		t.Fatalf("expected duplicate insight to be pruned, got %d", len(out))
	}
}

func TestDeriveAnalogyInsight_AlwaysReturnsNil(t *testing.T) {
	if got := deriveAnalogyInsight(Cluster{}, Cluster{}); got != nil {
		t.Fatalf("expected analogy stub to return nil, got %+v", got)
	}
}

func TestDeriveCausalInsights_AlwaysEmpty(t *testing.T) {
	if got := deriveCausalInsights([]Cluster{{}, {}}); got != nil {
		t.Fatalf("expected causal stub to return nil/empty, got %+v", got)
	}
}
