// Package reflection implements the insight engine: greedy single-link
// clustering of memories by embedding similarity, per-cluster insight
// derivation, cross-cluster stubs, and quality-gated validation —
// spec.md's Component D, grounded on reflection_engine.rs and adapted into
// the teacher's engine-package style (internal/engine/inference_engine.go).
package reflection

import (
	"math"
	"time"

	"github.com/scrypster/arbor/pkg/types"
)

// Cluster groups memories the clustering pass judged similar enough to
// analyze together.
type Cluster struct {
	Memories          []*types.Memory
	CentroidEmbedding []float32
	CoherenceScore    float64
	DominantConcepts  []string
	SpanStart         time.Time
	SpanEnd           time.Time
}

// clusterMemories performs greedy single-link clustering: pick an
// unassigned seed, absorb every remaining unassigned memory whose cosine
// similarity to the seed clears the threshold, repeat. Mirrors
// reflection_engine.rs's cluster_memories exactly (seed-then-absorb, not a
// full pairwise linkage), so a later teacher change in cluster topology has
// one place to port.
func clusterMemories(memories []*types.Memory, threshold float64, minSize int) []Cluster {
	unassigned := append([]*types.Memory(nil), memories...)
	var clusters []Cluster

	for len(unassigned) > 0 {
		seed := unassigned[0]
		unassigned = unassigned[1:]
		members := []*types.Memory{seed}

		var remaining []*types.Memory
		for _, m := range unassigned {
			if len(seed.Embedding) > 0 && len(m.Embedding) > 0 &&
				cosineSimilarity(seed.Embedding, m.Embedding) >= threshold {
				members = append(members, m)
			} else {
				remaining = append(remaining, m)
			}
		}
		unassigned = remaining

		if len(members) >= minSize {
			clusters = append(clusters, buildCluster(members))
		}
	}

	return clusters
}

func buildCluster(members []*types.Memory) Cluster {
	return Cluster{
		Memories:          members,
		CentroidEmbedding: centroidEmbedding(members),
		CoherenceScore:    clusterCoherence(members),
		DominantConcepts:  extractDominantConcepts(members),
		SpanStart:         spanStart(members),
		SpanEnd:           spanEnd(members),
	}
}

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

func centroidEmbedding(members []*types.Memory) []float32 {
	var dim int
	var withEmbedding []*types.Memory
	for _, m := range members {
		if len(m.Embedding) > 0 {
			withEmbedding = append(withEmbedding, m)
			dim = len(m.Embedding)
		}
	}
	if len(withEmbedding) == 0 {
		return nil
	}
	sum := make([]float64, dim)
	for _, m := range withEmbedding {
		for i, v := range m.Embedding {
			sum[i] += float64(v)
		}
	}
	centroid := make([]float32, dim)
	for i, v := range sum {
		centroid[i] = float32(v / float64(len(withEmbedding)))
	}
	return centroid
}

// clusterCoherence is the average pairwise cosine similarity across every
// member with an embedding (reflection_engine.rs calculate_cluster_coherence).
func clusterCoherence(members []*types.Memory) float64 {
	var withEmbedding [][]float32
	for _, m := range members {
		if len(m.Embedding) > 0 {
			withEmbedding = append(withEmbedding, m.Embedding)
		}
	}
	if len(withEmbedding) < 2 {
		return 1.0
	}
	var total float64
	var pairs int
	for i := 0; i < len(withEmbedding); i++ {
		for j := i + 1; j < len(withEmbedding); j++ {
			total += cosineSimilarity(withEmbedding[i], withEmbedding[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

func spanStart(members []*types.Memory) time.Time {
	min := members[0].CreatedAt
	for _, m := range members {
		if m.CreatedAt.Before(min) {
			min = m.CreatedAt
		}
	}
	return min
}

func spanEnd(members []*types.Memory) time.Time {
	max := members[0].CreatedAt
	for _, m := range members {
		if m.CreatedAt.After(max) {
			max = m.CreatedAt
		}
	}
	return max
}
