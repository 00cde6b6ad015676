// Package tools implements the caller-facing tool surface: store_memory,
// search_memory, get_statistics, what_did_you_remember,
// harvest_conversation, get_harvester_metrics, migrate_memory, and
// delete_memory. Each tool validates its arguments against spec.md §6's
// table before dispatching into the store/retrieval/reflection layers.
//
// Grounded on original_source/src/mcp_server/tools.rs's tool schemas and
// argument-validation switch, and on the teacher's internal/api/mcp
// server's one-struct-per-tool Args/Result pattern.
package tools

import "time"

// StoreMemoryArgs is store_memory's input.
type StoreMemoryArgs struct {
	Content         string         `json:"content"`
	Tier            string         `json:"tier,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	ImportanceScore *float64       `json:"importance_score,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// StoreMemoryResult is store_memory's output.
type StoreMemoryResult struct {
	ID   string `json:"id"`
	Tier string `json:"tier"`
}

// SearchMemoryArgs is search_memory's input.
type SearchMemoryArgs struct {
	Query               string   `json:"query"`
	Limit               int      `json:"limit,omitempty"`
	SimilarityThreshold float64  `json:"similarity_threshold,omitempty"`
	Tier                string   `json:"tier,omitempty"`
	Tags                []string `json:"tags,omitempty"`
}

// SearchMemoryResultItem is one ranked hit from search_memory.
type SearchMemoryResultItem struct {
	ID              string  `json:"id"`
	Content         string  `json:"content"`
	Tier            string  `json:"tier"`
	CombinedScore   float64 `json:"combined_score"`
	RecencyScore    float64 `json:"recency_score"`
	ImportanceScore float64 `json:"importance_score"`
	RelevanceScore  float64 `json:"relevance_score"`
}

// SearchMemoryResult is search_memory's output.
type SearchMemoryResult struct {
	Results []SearchMemoryResultItem `json:"results"`
	Total   int                      `json:"total"`
}

// GetStatisticsArgs is get_statistics's input.
type GetStatisticsArgs struct {
	Detailed bool `json:"detailed,omitempty"`
}

// TierCount is the live-memory count for one tier.
type TierCount struct {
	Tier  string `json:"tier"`
	Count int    `json:"count"`
}

// GetStatisticsResult is get_statistics's output.
type GetStatisticsResult struct {
	TotalMemories int         `json:"total_memories"`
	TierCounts    []TierCount `json:"tier_counts"`

	// Detailed fields, populated only when Detailed is requested.
	AverageImportance float64 `json:"average_importance,omitempty"`
	ReflectionSessions uint64 `json:"reflection_sessions_completed,omitempty"`
	InsightsGenerated  uint64 `json:"insights_generated,omitempty"`
}

// WhatDidYouRememberArgs is what_did_you_remember's input.
type WhatDidYouRememberArgs struct {
	Context   string `json:"context,omitempty"`
	TimeRange string `json:"time_range,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// WhatDidYouRememberResult is what_did_you_remember's output.
type WhatDidYouRememberResult struct {
	Memories []SearchMemoryResultItem `json:"memories"`
	Summary  string                   `json:"summary"`
}

// HarvestConversationArgs is harvest_conversation's input.
type HarvestConversationArgs struct {
	Message      string `json:"message,omitempty"`
	Context      string `json:"context,omitempty"`
	Role         string `json:"role,omitempty"`
	ForceHarvest bool   `json:"force_harvest,omitempty"`
	SilentMode   bool   `json:"silent_mode,omitempty"`
}

// HarvestConversationResult is harvest_conversation's output.
type HarvestConversationResult struct {
	Harvested bool   `json:"harvested"`
	MemoryID  string `json:"memory_id,omitempty"`
	Message   string `json:"message"`
}

// GetHarvesterMetricsResult is get_harvester_metrics's output.
type GetHarvesterMetricsResult struct {
	TotalHarvested  uint64     `json:"total_harvested"`
	TotalSkipped    uint64     `json:"total_skipped"`
	LastHarvestedAt *time.Time `json:"last_harvested_at,omitempty"`
}

// MigrateMemoryArgs is migrate_memory's input.
type MigrateMemoryArgs struct {
	MemoryID   string `json:"memory_id"`
	TargetTier string `json:"target_tier"`
	Reason     string `json:"reason,omitempty"`
}

// MigrateMemoryResult is migrate_memory's output.
type MigrateMemoryResult struct {
	ID         string `json:"id"`
	TargetTier string `json:"target_tier"`
}

// DeleteMemoryArgs is delete_memory's input.
type DeleteMemoryArgs struct {
	MemoryID string `json:"memory_id"`
	Confirm  bool   `json:"confirm"`
}

// DeleteMemoryResult is delete_memory's output.
type DeleteMemoryResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
