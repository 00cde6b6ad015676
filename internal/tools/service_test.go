package tools_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/internal/retrieval"
	"github.com/scrypster/arbor/internal/scoring"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/internal/tools"
	"github.com/scrypster/arbor/pkg/types"
)

// fakeStore is a minimal in-memory store.Store double, used to exercise
// the tools package without a real backend.
type fakeStore struct {
	memories map[string]*types.Memory
}

func newFakeStore() *fakeStore {
	return &fakeStore{memories: make(map[string]*types.Memory)}
}

func (f *fakeStore) Create(ctx context.Context, req types.CreateRequest) (*types.Memory, error) {
	importance := 0.5
	if req.ImportanceScore != nil {
		importance = *req.ImportanceScore
	}
	now := time.Now()
	m := &types.Memory{
		ID:              uuid.NewString(),
		Content:         req.Content,
		Embedding:       req.Embedding,
		Tier:            req.Tier,
		Status:          types.StatusActive,
		ImportanceScore: importance,
		Metadata:        req.Metadata,
		ParentID:        req.ParentID,
		ExpiresAt:       req.ExpiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.memories[m.ID] = m
	return m, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	m, ok := f.memories[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "memory not found")
	}
	return m, nil
}

func (f *fakeStore) List(ctx context.Context, opts store.ListOptions) (*store.PaginatedResult[types.Memory], error) {
	return &store.PaginatedResult[types.Memory]{}, nil
}

func (f *fakeStore) Update(ctx context.Context, id string, patch types.UpdatePatch) (*types.Memory, error) {
	return f.Get(ctx, id)
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	m, ok := f.memories[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "memory not found")
	}
	m.Status = types.StatusDeleted
	return nil
}

func (f *fakeStore) Restore(ctx context.Context, id string) error { return nil }

func (f *fakeStore) SetTier(ctx context.Context, id string, tier types.Tier) error {
	m, ok := f.memories[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "memory not found")
	}
	if !m.Tier.CanTransition(tier) {
		return apperr.New(apperr.KindInvalid, "illegal tier transition")
	}
	m.Tier = tier
	return nil
}

func (f *fakeStore) RecordAccess(ctx context.Context, id string, now time.Time) error {
	if m, ok := f.memories[id]; ok {
		m.LastAccessedAt = &now
	}
	return nil
}

func (f *fakeStore) ListByTier(ctx context.Context, tier types.Tier) ([]*types.Memory, error) {
	var out []*types.Memory
	for _, m := range f.memories {
		if m.Tier == tier && m.EffectiveStatus(time.Now()) == types.StatusActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) LexicalSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	var out []store.ScoredMemory
	for _, m := range f.memories {
		if m.EffectiveStatus(time.Now()) != types.StatusActive {
			continue
		}
		out = append(out, store.ScoredMemory{Memory: m, SimilarityScore: 0.6})
	}
	return out, nil
}

func (f *fakeStore) VectorSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	return f.LexicalSearch(ctx, opts)
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (fakeEmbedder) Dimension() int { return 3 }
func (fakeEmbedder) Model() string  { return "fake" }

func newTestService(t *testing.T) (*tools.Service, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	scorer := scoring.New(config.ScoringConfig{
		RecencyWeight: 0.3, ImportanceWeight: 0.3, RelevanceWeight: 0.4,
		DecayLambda: 0.01, MaxAccessCountForNorm: 100,
	})
	retr := retrieval.New(fs, fakeEmbedder{}, scorer)
	return tools.New(fs, retr, scorer, nil, nil), fs
}

func TestStoreMemory_RequiresContent(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.StoreMemory(context.Background(), tools.StoreMemoryArgs{})
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected Invalid, got %v", err)
	}
}

func TestStoreMemory_RejectsOutOfRangeImportance(t *testing.T) {
	svc, _ := newTestService(t)
	bad := 1.5
	_, err := svc.StoreMemory(context.Background(), tools.StoreMemoryArgs{Content: "hello", ImportanceScore: &bad})
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected Invalid, got %v", err)
	}
}

func TestStoreMemory_DefaultsToWorkingTier(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.StoreMemory(context.Background(), tools.StoreMemoryArgs{Content: "remember this"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tier != string(types.TierWorking) {
		t.Fatalf("expected working tier, got %s", res.Tier)
	}
}

func TestStoreMemory_FoldsTagsIntoMetadata(t *testing.T) {
	svc, fs := newTestService(t)
	res, err := svc.StoreMemory(context.Background(), tools.StoreMemoryArgs{Content: "tagged", Tags: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := fs.memories[res.ID]
	if _, ok := m.Metadata["tags"]; !ok {
		t.Fatalf("expected tags to be folded into metadata, got %+v", m.Metadata)
	}
}

func TestSearchMemory_RequiresQuery(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SearchMemory(context.Background(), tools.SearchMemoryArgs{})
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected Invalid, got %v", err)
	}
}

func TestSearchMemory_RejectsLimitOutOfRange(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SearchMemory(context.Background(), tools.SearchMemoryArgs{Query: "x", Limit: 101})
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected Invalid, got %v", err)
	}
}

func TestSearchMemory_ReturnsStoredMemory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.StoreMemory(ctx, tools.StoreMemoryArgs{Content: "gradient descent notes"}); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	res, err := svc.SearchMemory(ctx, tools.SearchMemoryArgs{Query: "gradient"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("expected 1 result, got %d", res.Total)
	}
}

func TestMigrateMemory_RejectsNonAdjacentTransition(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()
	res, _ := svc.StoreMemory(ctx, tools.StoreMemoryArgs{Content: "x"})
	fs.memories[res.ID].Tier = types.TierWorking

	_, err := svc.MigrateMemory(ctx, tools.MigrateMemoryArgs{MemoryID: res.ID, TargetTier: "frozen"})
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected Invalid for non-adjacent tier transition, got %v", err)
	}
}

func TestMigrateMemory_RejectsUnknownTier(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.MigrateMemory(context.Background(), tools.MigrateMemoryArgs{MemoryID: "x", TargetTier: "nonexistent"})
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected Invalid, got %v", err)
	}
}

func TestDeleteMemory_RequiresConfirm(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.DeleteMemory(context.Background(), tools.DeleteMemoryArgs{MemoryID: "x", Confirm: false})
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected Invalid, got %v", err)
	}
}

func TestDeleteMemory_Succeeds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res, _ := svc.StoreMemory(ctx, tools.StoreMemoryArgs{Content: "to delete"})
	out, err := svc.DeleteMemory(ctx, tools.DeleteMemoryArgs{MemoryID: res.ID, Confirm: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Deleted {
		t.Fatalf("expected Deleted=true")
	}
}

func TestGetStatistics_CountsByTier(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.StoreMemory(ctx, tools.StoreMemoryArgs{Content: "one"})
	svc.StoreMemory(ctx, tools.StoreMemoryArgs{Content: "two"})

	res, err := svc.GetStatistics(ctx, tools.GetStatisticsArgs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalMemories != 2 {
		t.Fatalf("expected 2 total memories, got %d", res.TotalMemories)
	}
}

func TestHarvestConversation_SkipsShortMessages(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.HarvestConversation(context.Background(), tools.HarvestConversationArgs{Message: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Harvested {
		t.Fatalf("expected short message to be skipped")
	}
}

func TestHarvestConversation_ForceHarvestAlwaysStores(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.HarvestConversation(context.Background(), tools.HarvestConversationArgs{Message: "hi", ForceHarvest: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Harvested || res.MemoryID == "" {
		t.Fatalf("expected forced harvest to store a memory, got %+v", res)
	}
}

func TestGetHarvesterMetrics_ReflectsHarvestCounts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.HarvestConversation(ctx, tools.HarvestConversationArgs{Message: "short"})
	svc.HarvestConversation(ctx, tools.HarvestConversationArgs{Message: "a message long enough to harvest on its own merits"})

	m, err := svc.GetHarvesterMetrics(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TotalHarvested != 1 || m.TotalSkipped != 1 {
		t.Fatalf("expected 1 harvested and 1 skipped, got %+v", m)
	}
}

func TestWhatDidYouRemember_RejectsBadTimeRange(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.WhatDidYouRemember(context.Background(), tools.WhatDidYouRememberArgs{TimeRange: "last_decade"})
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected Invalid, got %v", err)
	}
}
