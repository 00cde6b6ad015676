// Package store defines the persistence interfaces for Memory records:
// CRUD with tier-aware filtering, and vector/lexical search. Concrete
// backends live in the postgres and sqlite subpackages.
//
// Adapted from the teacher's internal/storage package (MemoryStore,
// SearchProvider, ListOptions, PaginatedResult[T]), narrowed to the
// tier/lifecycle/scoring scope this spec covers — the graph, relationship,
// and entity-embedding interfaces the teacher defines alongside these have
// no [MODULE] home here (see DESIGN.md "Dropped").
package store

import (
	"context"
	"time"

	"github.com/scrypster/arbor/pkg/types"
)

// PaginatedResult is a generic page of results, carried over verbatim from
// the teacher's storage layer.
type PaginatedResult[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	HasMore  bool
}

// ListOptions filters and paginates MemoryStore.List calls.
type ListOptions struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string

	Tier           types.Tier
	IncludeDeleted bool
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	MinImportance  float64
	ParentID       string
}

var allowedSortFields = map[string]bool{
	"created_at":       true,
	"updated_at":       true,
	"importance_score": true,
	"access_count":     true,
}

// Normalize applies defaults and clamps, matching the teacher's
// ListOptions.Normalize whitelist-then-default pattern.
func (o *ListOptions) Normalize() {
	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset returns the SQL OFFSET implied by Page/Limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// SearchOptions configures a SearchProvider call.
type SearchOptions struct {
	Query     string
	Vector    []float32
	Limit     int
	Offset    int
	MinScore  float64
	Tier      types.Tier
	ParentID  string
}

// Normalize applies defaults, matching the teacher's SearchOptions.Normalize.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// ScoredMemory pairs a Memory with the raw similarity score a search
// backend computed for it, before the scoring engine combines it with
// recency and importance.
type ScoredMemory struct {
	Memory         *types.Memory
	SimilarityScore float64
}

// MemoryStore provides CRUD and lifecycle operations over Memory records.
type MemoryStore interface {
	Create(ctx context.Context, req types.CreateRequest) (*types.Memory, error)
	Get(ctx context.Context, id string) (*types.Memory, error)
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)
	Update(ctx context.Context, id string, patch types.UpdatePatch) (*types.Memory, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error

	// SetTier performs a validated tier transition (adjacency-constrained,
	// spec.md I). Returns apperr.KindInvalid if the transition isn't legal.
	SetTier(ctx context.Context, id string, tier types.Tier) error

	// RecordAccess atomically increments access_count and sets
	// last_accessed_at to now.
	RecordAccess(ctx context.Context, id string, now time.Time) error

	// ListByTier returns every live memory in the given tier, used by the
	// reflection engine, the scheduler, and get_statistics. No pagination: callers constrain tier size
	// operationally (small working/warm tiers by design).
	ListByTier(ctx context.Context, tier types.Tier) ([]*types.Memory, error)

	Close() error
}

// SearchProvider provides lexical and vector search over Memory content.
type SearchProvider interface {
	LexicalSearch(ctx context.Context, opts SearchOptions) ([]ScoredMemory, error)
	VectorSearch(ctx context.Context, opts SearchOptions) ([]ScoredMemory, error)
}

// Store composes MemoryStore and SearchProvider, the full surface a backend
// must implement.
type Store interface {
	MemoryStore
	SearchProvider
}
