package reflection

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/pkg/types"
)

// derivePatternInsight flags a dominant recurring word/phrase across a
// cluster, ported from detect_cluster_patterns in reflection_engine.rs:
// requires the raw frequency >= 3 AND a relative frequency >= 0.6.
func derivePatternInsight(c Cluster, cfg config.ReflectionConfig) *types.Insight {
	if len(c.Memories) < cfg.MinClusterSize {
		return nil
	}
	word, freq := patternFrequency(c.Memories)
	if word == "" || freq < 3 {
		return nil
	}
	confidence := float64(freq) / float64(len(c.Memories))
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0.6 {
		return nil
	}

	return &types.Insight{
		ID:              uuid.NewString(),
		InsightType:     types.InsightPattern,
		Content:         fmt.Sprintf("Detected recurring pattern %q across %d memories in cluster with %.1f%% frequency", word, len(c.Memories), confidence*100),
		ConfidenceScore: confidence,
		ImportanceScore: confidence * 0.8,
		SourceMemoryIDs: memoryIDs(c.Memories),
		RelatedConcepts: []string{word},
		ValidationMetrics: types.ValidationMetrics{
			Novelty:          0.7,
			Coherence:        confidence,
			EvidenceStrength: confidence,
			SemanticRichness: 0.6,
			PredictivePower:  0.5,
		},
		GeneratedAt: time.Now(),
	}
}

// deriveSynthesisInsight combines a cluster's dominant concepts into a
// single higher-level statement, ported from generate_synthesis_insight.
func deriveSynthesisInsight(c Cluster) *types.Insight {
	if len(c.DominantConcepts) < 2 {
		return nil
	}
	content := fmt.Sprintf(
		"Synthesis of %d related memories reveals connections between concepts: %s. This cluster shows coherence of %.2f.",
		len(c.Memories), strings.Join(c.DominantConcepts, ", "), c.CoherenceScore,
	)
	evidence := float64(len(c.Memories)) / 10.0
	if evidence > 1 {
		evidence = 1
	}
	richness := float64(len(c.DominantConcepts)) / 5.0
	if richness > 1 {
		richness = 1
	}

	return &types.Insight{
		ID:              uuid.NewString(),
		InsightType:     types.InsightSynthesis,
		Content:         content,
		ConfidenceScore: c.CoherenceScore,
		ImportanceScore: c.CoherenceScore * 0.9,
		SourceMemoryIDs: memoryIDs(c.Memories),
		RelatedConcepts: c.DominantConcepts,
		ValidationMetrics: types.ValidationMetrics{
			Novelty:          0.6,
			Coherence:        c.CoherenceScore,
			EvidenceStrength: evidence,
			SemanticRichness: richness,
			PredictivePower:  0.6,
		},
		GeneratedAt: time.Now(),
	}
}

// deriveTrendInsight flags sustained engagement with a topic over time,
// ported from detect_temporal_trends: requires the cluster's span to
// exceed 24h and a temporal-density-derived confidence >= 0.3.
func deriveTrendInsight(c Cluster) *types.Insight {
	if c.SpanStart.IsZero() || c.SpanEnd.IsZero() {
		return nil
	}
	duration := c.SpanEnd.Sub(c.SpanStart)
	if duration <= 24*time.Hour {
		return nil
	}
	days := duration.Hours() / 24
	if days < 1 {
		days = 1
	}
	density := float64(len(c.Memories)) / days
	confidence := density / 5.0
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0.3 {
		return nil
	}

	content := fmt.Sprintf(
		"Temporal trend detected: %d related memories occurred over %.0f days, suggesting sustained engagement with topic involving: %s",
		len(c.Memories), days, strings.Join(c.DominantConcepts, ", "),
	)

	return &types.Insight{
		ID:              uuid.NewString(),
		InsightType:     types.InsightTrend,
		Content:         content,
		ConfidenceScore: confidence,
		ImportanceScore: confidence * 0.7,
		SourceMemoryIDs: memoryIDs(c.Memories),
		RelatedConcepts: c.DominantConcepts,
		ValidationMetrics: types.ValidationMetrics{
			Novelty:          0.5,
			Coherence:        c.CoherenceScore,
			EvidenceStrength: confidence,
			SemanticRichness: 0.4,
			PredictivePower:  0.8,
		},
		GeneratedAt: time.Now(),
	}
}

// deriveGapInsight flags low coherence in a large cluster as a signal of
// missing intermediate concepts, ported from identify_knowledge_gaps:
// requires >= 5 members, coherence < 0.6, and resulting confidence >= 0.4.
func deriveGapInsight(c Cluster) *types.Insight {
	if len(c.Memories) < 5 || c.CoherenceScore >= 0.6 {
		return nil
	}
	confidence := 1.0 - c.CoherenceScore
	if confidence < 0.4 {
		return nil
	}

	content := fmt.Sprintf(
		"Potential knowledge gap identified: %d memories about %s show low coherence (%.2f), suggesting missing connections or intermediate concepts",
		len(c.Memories), strings.Join(c.DominantConcepts, ", "), c.CoherenceScore,
	)

	return &types.Insight{
		ID:              uuid.NewString(),
		InsightType:     types.InsightGap,
		Content:         content,
		ConfidenceScore: confidence,
		ImportanceScore: confidence * 0.6,
		SourceMemoryIDs: memoryIDs(c.Memories),
		RelatedConcepts: c.DominantConcepts,
		ValidationMetrics: types.ValidationMetrics{
			Novelty:          0.8,
			Coherence:        0.5,
			EvidenceStrength: confidence,
			SemanticRichness: 0.7,
			PredictivePower:  0.9,
		},
		GeneratedAt: time.Now(),
	}
}

// deriveAnalogyInsight is an interface-only stub: reflection_engine.rs's
// detect_cross_cluster_analogies takes two clusters and always returns
// None ("Implementation would find analogies between different concept
// clusters"). SPEC_FULL.md §E keeps that exact behavior rather than
// inventing an analogy heuristic with no grounding.
func deriveAnalogyInsight(a, b Cluster) *types.Insight {
	return nil
}

// deriveCausalInsights is the Causality counterpart stub, ported from
// detect_causal_relationships which always returns an empty Vec.
func deriveCausalInsights(clusters []Cluster) []*types.Insight {
	return nil
}

// deriveContradictionInsights is the Contradiction counterpart stub.
// reflection_engine.rs declares InsightType::Contradiction and describes
// "Contradiction Detection" as a capability in its module doc comment, but
// never defines a detect_contradictions function anywhere in the file —
// unlike Analogy and Causality, which at least have a real (always-empty)
// function body. There is nothing to port; this keeps the declared type
// reachable through the same never-populated path its source left it in.
func deriveContradictionInsights(clusters []Cluster) []*types.Insight {
	return nil
}

func memoryIDs(members []*types.Memory) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

// generateClusterInsights runs all four concrete per-cluster derivations.
func generateClusterInsights(c Cluster, cfg config.ReflectionConfig) []*types.Insight {
	var out []*types.Insight
	if i := derivePatternInsight(c, cfg); i != nil {
		out = append(out, i)
	}
	if i := deriveSynthesisInsight(c); i != nil {
		out = append(out, i)
	}
	if i := deriveTrendInsight(c); i != nil {
		out = append(out, i)
	}
	if i := deriveGapInsight(c); i != nil {
		out = append(out, i)
	}
	return out
}

// generateCrossClusterInsights runs the cross-cluster stubs over every
// cluster pair, matching generate_cross_cluster_insights's nested loop.
func generateCrossClusterInsights(clusters []Cluster) []*types.Insight {
	var out []*types.Insight
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			if insight := deriveAnalogyInsight(clusters[i], clusters[j]); insight != nil {
				out = append(out, insight)
			}
		}
	}
	out = append(out, deriveCausalInsights(clusters)...)
	out = append(out, deriveContradictionInsights(clusters)...)
	return out
}
