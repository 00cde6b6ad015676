package reflection

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/pkg/types"
)

// Engine runs end-to-end reflection sessions: pull candidate memories,
// cluster them, derive insights, validate/dedup, and write surviving
// insights back as mirror memories.
type Engine struct {
	store store.Store
	cfg   config.ReflectionConfig

	mu           sync.Mutex
	lastRunAt    time.Time
}

// New builds a reflection Engine against store s.
func New(s store.Store, cfg config.ReflectionConfig) *Engine {
	return &Engine{store: s, cfg: cfg}
}

// ShouldTrigger reports whether accumulated importance across candidate
// memories clears the configured threshold, subject to the cooldown since
// the last run (spec.md §4.3, "Importance Accumulation" trigger).
func (e *Engine) ShouldTrigger(ctx context.Context, accumulatedImportance float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastRunAt.IsZero() && time.Since(e.lastRunAt) < e.cfg.ReflectionCooldown {
		return false
	}
	return accumulatedImportance >= e.cfg.ImportanceTriggerThreshold
}

// LastRunAt returns the completion time of the last successful session, or
// the zero time if no session has completed yet. Callers (the scheduler's
// importance accumulator, in particular) use this to scope "since last
// reflection" windows without reaching into Engine's internal lock.
func (e *Engine) LastRunAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRunAt
}

// Run executes one reflection session over candidate memories and returns
// the populated ReflectionSession. It never returns a partial session: a
// hard failure before insight generation reports SessionFailed rather than
// a short-lived empty session.
func (e *Engine) Run(ctx context.Context, triggerReason string) (*types.ReflectionSession, error) {
	session := &types.ReflectionSession{
		ID:            uuid.NewString(),
		TriggerReason: triggerReason,
		StartedAt:     time.Now(),
		Status:        types.SessionRunning,
	}

	candidates, err := e.loadCandidates(ctx)
	if err != nil {
		session.Status = types.SessionFailed
		return session, err
	}
	session.AnalyzedMemoryCount = len(candidates)

	clusters := clusterMemories(candidates, e.cfg.ClusteringSimilarityThreshold, e.cfg.MinClusterSize)
	session.GeneratedClusterCount = len(clusters)

	var raw []*types.Insight
	for _, c := range clusters {
		raw = append(raw, generateClusterInsights(c, e.cfg)...)
	}
	raw = append(raw, generateCrossClusterInsights(clusters)...)

	validated := validateAndPrune(raw)
	session.GeneratedInsightCount = len(validated)

	for _, insight := range validated {
		if err := e.writeBack(ctx, insight); err != nil {
			log.Printf("reflection: failed to write back insight %s: %v", insight.ID, err)
		}
	}

	now := time.Now()
	session.CompletedAt = &now
	session.Status = types.SessionCompleted

	e.mu.Lock()
	e.lastRunAt = now
	e.mu.Unlock()

	return session, nil
}

// loadCandidates pulls Active memories created since the last completed
// reflection (or since now − TemporalAnalysisWindowDays when no reflection
// has run yet) whose importance clears MinImportanceForInput, across every
// live tier, ordered by created_at and capped at MaxMemoriesPerReflection
// (spec.md §4.3 Input selection).
func (e *Engine) loadCandidates(ctx context.Context) ([]*types.Memory, error) {
	cutoff := e.candidateCutoff()

	var out []*types.Memory
	for _, tier := range []types.Tier{types.TierWorking, types.TierWarm, types.TierCold} {
		mems, err := e.store.ListByTier(ctx, tier)
		if err != nil {
			return nil, err
		}
		for _, m := range mems {
			if m.ImportanceScore >= e.cfg.MinImportanceForInput && !m.CreatedAt.Before(cutoff) {
				out = append(out, m)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > e.cfg.MaxMemoriesPerReflection {
		out = out[:e.cfg.MaxMemoriesPerReflection]
	}
	return out, nil
}

// candidateCutoff returns the earliest created_at a candidate memory may
// have: the last completed reflection's timestamp, or now minus the
// configured temporal analysis window when no reflection has completed yet.
func (e *Engine) candidateCutoff() time.Time {
	if last := e.LastRunAt(); !last.IsZero() {
		return last
	}
	days := e.cfg.TemporalAnalysisWindowDays
	if days <= 0 {
		days = 30
	}
	return time.Now().AddDate(0, 0, -days)
}

// validateAndPrune drops insights failing the hard quality floor (Insight.Passes)
// and deduplicates by (sorted related_concepts, insight_type) within the
// session, per spec.md P7 and reflection_engine.rs's
// validate_and_prune_insights.
func validateAndPrune(insights []*types.Insight) []*types.Insight {
	seen := make(map[string]bool)
	var out []*types.Insight
	for _, insight := range insights {
		if !insight.Passes() {
			continue
		}
		key := insight.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, insight)
	}
	return out
}

// writeBack stores a validated insight as a high-importance mirror memory
// in the Working tier, scaling its importance by InsightImportanceMultiplier
// and capping at 1.0 — reflection_engine.rs's store_insights_as_memories.
func (e *Engine) writeBack(ctx context.Context, insight *types.Insight) error {
	importance := insight.ImportanceScore * e.cfg.InsightImportanceMultiplier
	if importance > 1.0 {
		importance = 1.0
	}

	metadata := map[string]any{
		"insight_type":       string(insight.InsightType),
		"confidence_score":   insight.ConfidenceScore,
		"source_memory_ids":  insight.SourceMemoryIDs,
		"related_concepts":   insight.RelatedConcepts,
		"validation_metrics": insight.ValidationMetrics,
		"is_meta_memory":     true,
		"generated_by":       "reflection_engine",
	}

	created, err := e.store.Create(ctx, types.CreateRequest{
		Content:         insight.Content,
		Tier:            types.TierWorking,
		ImportanceScore: &importance,
		Metadata:        metadata,
	})
	if err != nil && !apperr.Is(err, apperr.KindConflict) {
		return err
	}
	if created != nil {
		insight.MirrorMemoryID = created.ID
	}
	return nil
}
