package types

import (
	"sort"
	"time"
)

// InsightType is the closed set of derivations the reflection engine can
// produce for a memory cluster.
type InsightType string

const (
	InsightPattern      InsightType = "pattern"
	InsightSynthesis    InsightType = "synthesis"
	InsightGap          InsightType = "gap"
	InsightContradiction InsightType = "contradiction"
	InsightTrend        InsightType = "trend"
	InsightCausality    InsightType = "causality"
	InsightAnalogy      InsightType = "analogy"
)

// ValidationMetrics scores an Insight's quality along five independent axes,
// each in [0,1]. The reflection engine drops any insight failing the
// thresholds in spec.md §4.3 before it is ever persisted.
type ValidationMetrics struct {
	Novelty          float64 `json:"novelty"`
	Coherence        float64 `json:"coherence"`
	EvidenceStrength float64 `json:"evidence_strength"`
	SemanticRichness float64 `json:"semantic_richness"`
	PredictivePower  float64 `json:"predictive_power"`
}

// Insight is a derived, higher-order statement about a cluster of memories,
// produced by the Reflection Engine (component D).
type Insight struct {
	ID                string            `json:"id"`
	Content           string            `json:"content"`
	InsightType       InsightType       `json:"insight_type"`
	ConfidenceScore   float64           `json:"confidence_score"`
	ImportanceScore   float64           `json:"importance_score"`
	SourceMemoryIDs   []string          `json:"source_memory_ids"`
	RelatedConcepts   []string          `json:"related_concepts"`
	ValidationMetrics ValidationMetrics `json:"validation_metrics"`
	GeneratedAt       time.Time         `json:"generated_at"`

	// MirrorMemoryID links to the Memory record that mirrors this insight,
	// when one was written back. Empty when no mirror was created.
	MirrorMemoryID string `json:"mirror_memory_id,omitempty"`
}

// Passes reports whether the insight clears the hard quality floor from
// spec.md §4.3 ("MUST drop any insight whose ..."). It does not check the
// session-scoped deduplication rule (P7); that is the caller's job since it
// requires comparing against siblings.
func (i *Insight) Passes() bool {
	m := i.ValidationMetrics
	return m.Novelty > 0.3 &&
		m.Coherence > 0.5 &&
		m.EvidenceStrength > 0.4 &&
		i.ConfidenceScore > 0.6
}

// DedupeKey returns the (sorted related_concepts, insight_type) tuple used
// to detect duplicate insights within one reflection session (spec.md P7).
func (i *Insight) DedupeKey() string {
	concepts := append([]string(nil), i.RelatedConcepts...)
	sort.Strings(concepts)
	key := string(i.InsightType) + "|"
	for _, c := range concepts {
		key += c + ","
	}
	return key
}

// SessionStatus is the closed set of states a ReflectionSession passes
// through. Transitions are linear: Queued -> Running -> terminal.
type SessionStatus string

const (
	SessionQueued    SessionStatus = "queued"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// ReflectionSession is one scheduling unit: a single end-to-end run of the
// reflection pipeline, reported atomically (spec.md §3, P9).
type ReflectionSession struct {
	ID            string        `json:"id"`
	TriggerReason string        `json:"trigger_reason"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Status        SessionStatus `json:"status"`

	AnalyzedMemoryCount  int `json:"analyzed_memory_count"`
	GeneratedClusterCount int `json:"generated_cluster_count"`
	GeneratedInsightCount int `json:"generated_insight_count"`
}
