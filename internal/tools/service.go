// Package tools implements the caller-facing tool surface. See types.go
// for argument/result shapes and validation.go for the shared validation
// helpers; service.go wires each tool to the store/retrieval/scoring/
// reflection/scheduler layers, grounded on the teacher's
// internal/api/mcp.Server's one-method-per-tool dispatch shape.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/arbor/internal/reflection"
	"github.com/scrypster/arbor/internal/retrieval"
	"github.com/scrypster/arbor/internal/scheduler"
	"github.com/scrypster/arbor/internal/scoring"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/pkg/types"
)

// Service implements the 8 tools named in spec.md §6. It holds no
// authentication or rate-limiting state of its own — callers (the MCP/API
// transport) are expected to run every request through internal/gate.Gate
// first and only reach Service once a request is admitted.
type Service struct {
	store      store.Store
	retrieval  *retrieval.Engine
	scorer     *scoring.Engine
	reflection *reflection.Engine
	scheduler  *scheduler.Scheduler
	harvester  *Harvester
}

// New builds a Service over the given components. scheduler may be nil in
// configurations that run reflection only on-demand (no background sweep).
func New(s store.Store, r *retrieval.Engine, sc *scoring.Engine, refl *reflection.Engine, sched *scheduler.Scheduler) *Service {
	return &Service{
		store:      s,
		retrieval:  r,
		scorer:     sc,
		reflection: refl,
		scheduler:  sched,
		harvester:  NewHarvester(),
	}
}

// StoreMemory implements store_memory.
func (s *Service) StoreMemory(ctx context.Context, args StoreMemoryArgs) (*StoreMemoryResult, error) {
	if err := requireNonEmpty("content", args.Content); err != nil {
		return nil, err
	}
	tier, err := parseTier("tier", args.Tier)
	if err != nil {
		return nil, err
	}
	if tier == "" {
		tier = types.TierWorking
	}
	if args.ImportanceScore != nil {
		if err := validateUnitInterval("importance_score", *args.ImportanceScore); err != nil {
			return nil, err
		}
	}

	metadata := args.Metadata
	if len(args.Tags) > 0 {
		if metadata == nil {
			metadata = make(map[string]any, 1)
		}
		metadata["tags"] = args.Tags
	}

	req := types.CreateRequest{
		Content:         args.Content,
		Tier:            tier,
		ImportanceScore: args.ImportanceScore,
		Metadata:        metadata,
	}

	mem, err := s.store.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return &StoreMemoryResult{ID: mem.ID, Tier: string(mem.Tier)}, nil
}

// SearchMemory implements search_memory.
func (s *Service) SearchMemory(ctx context.Context, args SearchMemoryArgs) (*SearchMemoryResult, error) {
	if err := requireNonEmpty("query", args.Query); err != nil {
		return nil, err
	}
	limit := args.Limit
	if limit == 0 {
		limit = 10
	}
	if err := validateLimit("limit", limit, 100); err != nil {
		return nil, err
	}
	threshold := args.SimilarityThreshold
	if threshold == 0 {
		threshold = 0.5
	}
	if err := validateUnitInterval("similarity_threshold", threshold); err != nil {
		return nil, err
	}
	tier, err := parseTier("tier", args.Tier)
	if err != nil {
		return nil, err
	}

	hits, err := s.retrieval.Search(ctx, retrieval.Query{
		Text:     args.Query,
		Tier:     tier,
		Limit:    limit,
		MinScore: threshold,
	})
	if err != nil {
		return nil, err
	}

	items := make([]SearchMemoryResultItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, toResultItem(h))
	}
	return &SearchMemoryResult{Results: items, Total: len(items)}, nil
}

func toResultItem(r retrieval.Result) SearchMemoryResultItem {
	return SearchMemoryResultItem{
		ID:              r.Memory.ID,
		Content:         r.Memory.Content,
		Tier:            string(r.Memory.Tier),
		CombinedScore:   r.Breakdown.Combined,
		RecencyScore:    r.Breakdown.Recency,
		ImportanceScore: r.Breakdown.Importance,
		RelevanceScore:  r.Breakdown.Relevance,
	}
}

// GetStatistics implements get_statistics.
func (s *Service) GetStatistics(ctx context.Context, args GetStatisticsArgs) (*GetStatisticsResult, error) {
	tiers := []types.Tier{types.TierWorking, types.TierWarm, types.TierCold, types.TierFrozen}
	result := &GetStatisticsResult{TierCounts: make([]TierCount, 0, len(tiers))}

	var importanceSum float64
	for _, tier := range tiers {
		mems, err := s.store.ListByTier(ctx, tier)
		if err != nil {
			return nil, err
		}
		result.TierCounts = append(result.TierCounts, TierCount{Tier: string(tier), Count: len(mems)})
		result.TotalMemories += len(mems)
		for _, m := range mems {
			importanceSum += m.ImportanceScore
		}
	}

	if !args.Detailed {
		return result, nil
	}

	if result.TotalMemories > 0 {
		result.AverageImportance = importanceSum / float64(result.TotalMemories)
	}
	if s.scheduler != nil {
		snap := s.scheduler.Metrics()
		result.ReflectionSessions = snap.TotalReflectionsCompleted
		result.InsightsGenerated = snap.TotalInsightsGenerated
	}
	return result, nil
}

// WhatDidYouRemember implements what_did_you_remember.
func (s *Service) WhatDidYouRemember(ctx context.Context, args WhatDidYouRememberArgs) (*WhatDidYouRememberResult, error) {
	timeRange, err := validateTimeRange(args.TimeRange)
	if err != nil {
		return nil, err
	}
	limit := args.Limit
	if limit == 0 {
		limit = 10
	}
	if err := validateLimit("limit", limit, 50); err != nil {
		return nil, err
	}
	convContext := args.Context
	if convContext == "" {
		convContext = "conversation"
	}

	since := timeRangeCutoff(timeRange, time.Now())

	hits, err := s.retrieval.Search(ctx, retrieval.Query{
		Text:     convContext,
		Limit:    limit * 3,
		MinScore: 0,
	})
	if err != nil {
		return nil, err
	}

	items := make([]SearchMemoryResultItem, 0, limit)
	for _, h := range hits {
		if h.Memory.RecencyReference().Before(since) {
			continue
		}
		items = append(items, toResultItem(h))
		if len(items) >= limit {
			break
		}
	}

	return &WhatDidYouRememberResult{
		Memories: items,
		Summary:  fmt.Sprintf("%d memories recalled for %q over %s", len(items), convContext, timeRange),
	}, nil
}

func timeRangeCutoff(timeRange string, now time.Time) time.Time {
	switch timeRange {
	case "last_hour":
		return now.Add(-time.Hour)
	case "last_week":
		return now.AddDate(0, 0, -7)
	case "last_month":
		return now.AddDate(0, -1, 0)
	default: // last_day
		return now.AddDate(0, 0, -1)
	}
}

// HarvestConversation implements harvest_conversation.
func (s *Service) HarvestConversation(ctx context.Context, args HarvestConversationArgs) (*HarvestConversationResult, error) {
	role, err := validateRole(args.Role)
	if err != nil {
		return nil, err
	}
	convContext := args.Context
	if convContext == "" {
		convContext = "conversation"
	}

	if !s.harvester.ShouldHarvest(args.Message, args.ForceHarvest) {
		return &HarvestConversationResult{Harvested: false, Message: "message not significant enough to harvest"}, nil
	}

	mem, err := s.store.Create(ctx, types.CreateRequest{
		Content: args.Message,
		Tier:    types.TierWorking,
		Metadata: map[string]any{
			"context": convContext,
			"role":    role,
			"source":  "harvest_conversation",
		},
	})
	if err != nil {
		return nil, err
	}

	return &HarvestConversationResult{Harvested: true, MemoryID: mem.ID, Message: "harvested"}, nil
}

// GetHarvesterMetrics implements get_harvester_metrics.
func (s *Service) GetHarvesterMetrics(ctx context.Context) (*GetHarvesterMetricsResult, error) {
	m := s.harvester.Metrics()
	return &m, nil
}

// MigrateMemory implements migrate_memory.
func (s *Service) MigrateMemory(ctx context.Context, args MigrateMemoryArgs) (*MigrateMemoryResult, error) {
	if err := requireNonEmpty("memory_id", args.MemoryID); err != nil {
		return nil, err
	}
	tier, err := parseTier("target_tier", args.TargetTier)
	if err != nil {
		return nil, err
	}
	if tier == "" {
		return nil, invalid("target_tier is required")
	}

	if err := s.store.SetTier(ctx, args.MemoryID, tier); err != nil {
		return nil, err
	}
	return &MigrateMemoryResult{ID: args.MemoryID, TargetTier: string(tier)}, nil
}

// DeleteMemory implements delete_memory.
func (s *Service) DeleteMemory(ctx context.Context, args DeleteMemoryArgs) (*DeleteMemoryResult, error) {
	if err := requireNonEmpty("memory_id", args.MemoryID); err != nil {
		return nil, err
	}
	if !args.Confirm {
		return nil, invalid("confirm must be true to delete memory %q", args.MemoryID)
	}

	if err := s.store.Delete(ctx, args.MemoryID); err != nil {
		return nil, err
	}
	return &DeleteMemoryResult{ID: args.MemoryID, Deleted: true}, nil
}
