package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/internal/reflection"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/pkg/types"
)

// fakeStore is a minimal store.Store backed by an in-memory slice, just
// enough to drive the reflection engine and scheduler trigger path.
type fakeStore struct {
	working []*types.Memory
}

func (f *fakeStore) Create(ctx context.Context, req types.CreateRequest) (*types.Memory, error) {
	return nil, nil
}
func (f *fakeStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	return nil, apperr.New(apperr.KindNotFound, "not found")
}
func (f *fakeStore) List(ctx context.Context, opts store.ListOptions) (*store.PaginatedResult[types.Memory], error) {
	return &store.PaginatedResult[types.Memory]{}, nil
}
func (f *fakeStore) Update(ctx context.Context, id string, patch types.UpdatePatch) (*types.Memory, error) {
	return nil, apperr.New(apperr.KindNotFound, "not found")
}
func (f *fakeStore) Delete(ctx context.Context, id string) error  { return nil }
func (f *fakeStore) Restore(ctx context.Context, id string) error { return nil }
func (f *fakeStore) SetTier(ctx context.Context, id string, tier types.Tier) error { return nil }
func (f *fakeStore) RecordAccess(ctx context.Context, id string, now time.Time) error { return nil }
func (f *fakeStore) ListByTier(ctx context.Context, tier types.Tier) ([]*types.Memory, error) {
	if tier == types.TierWorking {
		return f.working, nil
	}
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }
func (f *fakeStore) VectorSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	return nil, nil
}
func (f *fakeStore) LexicalSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	return nil, nil
}

func highImportanceMemory(importance float64) *types.Memory {
	now := time.Now()
	return &types.Memory{
		ID: uuid.NewString(), Tier: types.TierWorking, Status: types.StatusActive,
		ImportanceScore: importance, CreatedAt: now, UpdatedAt: now,
	}
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		MaxConcurrentSessions: 2,
		SessionTimeout:        time.Second,
		PriorityThresholds: config.PriorityThresholds{
			CriticalPatternThreshold:  500,
			HighImportanceThreshold:   300,
			MediumImportanceThreshold: 200,
			LowImportanceThreshold:    100,
		},
	}
}

// TestCheckReflectionTriggers_CooldownSuppressesSecondTrigger reproduces S6:
// once a reflection session has completed, a second accumulated-importance
// trigger within the cooldown window must not fire, even though the raw
// importance sum still clears the threshold.
func TestCheckReflectionTriggers_CooldownSuppressesSecondTrigger(t *testing.T) {
	fs := &fakeStore{working: []*types.Memory{
		highImportanceMemory(100), highImportanceMemory(100),
	}}
	reflCfg := config.ReflectionConfig{
		ImportanceTriggerThreshold: 150,
		MinImportanceForInput:      0,
		MaxMemoriesPerReflection:   100,
		TemporalAnalysisWindowDays: 30,
		ReflectionCooldown:         time.Hour,
	}
	engine := reflection.New(fs, reflCfg)
	sch := New(fs, engine, testSchedulerConfig())

	_, triggered := sch.checkReflectionTriggers(context.Background())
	if !triggered {
		t.Fatalf("expected first check to trigger (importance 200 >= threshold 150)")
	}

	if _, err := engine.Run(context.Background(), "test setup"); err != nil {
		t.Fatalf("unexpected error running reflection: %v", err)
	}

	_, triggered = sch.checkReflectionTriggers(context.Background())
	if triggered {
		t.Fatalf("expected cooldown to suppress a second trigger right after a completed session")
	}
}

// TestCalculateAccumulatedImportance_ScopesToSinceLastReflection checks
// that once a reflection has completed, memories created before it no
// longer count toward the next accumulated-importance sum.
func TestCalculateAccumulatedImportance_ScopesToSinceLastReflection(t *testing.T) {
	fs := &fakeStore{working: []*types.Memory{highImportanceMemory(50)}}
	reflCfg := config.ReflectionConfig{
		ImportanceTriggerThreshold: 150,
		MinImportanceForInput:      0,
		MaxMemoriesPerReflection:   100,
		TemporalAnalysisWindowDays: 30,
		ReflectionCooldown:         0,
	}
	engine := reflection.New(fs, reflCfg)
	sch := New(fs, engine, testSchedulerConfig())

	importance, count, err := sch.calculateAccumulatedImportance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if importance != 50 || count != 1 {
		t.Fatalf("expected importance=50 count=1 before any reflection has run, got importance=%v count=%v", importance, count)
	}

	if _, err := engine.Run(context.Background(), "test setup"); err != nil {
		t.Fatalf("unexpected error running reflection: %v", err)
	}

	importance, count, err = sch.calculateAccumulatedImportance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if importance != 0 || count != 0 {
		t.Fatalf("expected the pre-existing memory to drop out of the since-last-reflection window, got importance=%v count=%v", importance, count)
	}
}
