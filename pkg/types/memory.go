// Package types holds the data model shared across the memory store,
// scoring engine, reflection engine, and request gate.
package types

import "time"

// Tier is the lifecycle stage of a Memory. Working is hot/recent, Warm is
// secondary, Cold is archival, Frozen is terminal (effectively deleted but
// retained for audit).
type Tier string

const (
	TierWorking Tier = "working"
	TierWarm    Tier = "warm"
	TierCold    Tier = "cold"
	TierFrozen  Tier = "frozen"
)

// Valid reports whether t is one of the four closed tier values.
func (t Tier) Valid() bool {
	switch t {
	case TierWorking, TierWarm, TierCold, TierFrozen:
		return true
	}
	return false
}

// adjacentTiers maps each tier to the tiers directly reachable from it by an
// ordinary (non-operator) transition, per spec.md I: tier moves must obey
// Working<->Warm<->Cold<->Frozen adjacency.
var adjacentTiers = map[Tier]map[Tier]bool{
	TierWorking: {TierWarm: true},
	TierWarm:    {TierWorking: true, TierCold: true},
	TierCold:    {TierWarm: true, TierFrozen: true},
	TierFrozen:  {TierCold: true},
}

// CanTransition reports whether moving from t to next is an adjacent,
// non-operator tier transition.
func (t Tier) CanTransition(next Tier) bool {
	if t == next {
		return true
	}
	return adjacentTiers[t][next]
}

// Status distinguishes live records from logically deleted ones. Deleted
// records are excluded from every query surface.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Memory is the primary persisted record: a text observation plus metadata,
// an optional embedding vector, and the scalar state the scoring engine and
// lifecycle scheduler maintain over time.
type Memory struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`

	// Embedding is nil when no vector has been computed yet. A present but
	// empty slice is treated the same as nil by callers — use len() == 0,
	// never a separate "has embedding" flag.
	Embedding []float32 `json:"embedding,omitempty"`

	Tier   Tier   `json:"tier"`
	Status Status `json:"status"`

	ImportanceScore float64 `json:"importance_score"`
	RecencyScore    float64 `json:"recency_score"`
	RelevanceScore  float64 `json:"relevance_score"`

	AccessCount int `json:"access_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// LastAccessedAt is nil until the first read. Recency math falls back to
	// CreatedAt when it is nil (spec.md Memory.last_accessed_at).
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	// ExpiresAt, when set and in the past, makes the record behave as
	// Deleted on next read without a physical status write.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// ParentID is a DAG edge to another Memory. Empty string means no parent.
	ParentID string `json:"parent_id,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether m's ExpiresAt has passed as of now.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// EffectiveStatus returns Deleted when m is soft-deleted or has expired,
// and m.Status otherwise. Read paths must treat both the same way.
func (m *Memory) EffectiveStatus(now time.Time) Status {
	if m.Status == StatusDeleted || m.Expired(now) {
		return StatusDeleted
	}
	return StatusActive
}

// RecencyReference returns the timestamp recency math should measure from:
// LastAccessedAt when set, otherwise CreatedAt.
func (m *Memory) RecencyReference() time.Time {
	if m.LastAccessedAt != nil {
		return *m.LastAccessedAt
	}
	return m.CreatedAt
}

// CreateRequest carries the fields a caller may set when creating a Memory.
// Unset ImportanceScore/Tier/Status take the store's defaults.
type CreateRequest struct {
	Content         string
	Embedding       []float32
	Tier            Tier
	ImportanceScore *float64
	ParentID        string
	Metadata        map[string]any
	ExpiresAt       *time.Time
}

// UpdatePatch carries the fields an update(id, patch) call may change. Nil
// fields are left untouched; this is how "empty patch is a no-op on content"
// (spec.md §8) is expressed without sentinel zero values.
type UpdatePatch struct {
	Content         *string
	Embedding       []float32
	EmbeddingSet    bool // distinguishes "no change" from "clear embedding"
	Tier            *Tier
	ImportanceScore *float64
	Metadata        map[string]any
	MetadataSet     bool
	ExpiresAt       *time.Time
	ExpiresAtSet    bool
}
