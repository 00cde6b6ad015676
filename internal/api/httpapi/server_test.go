package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/api/httpapi"
	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/internal/gate"
	"github.com/scrypster/arbor/internal/retrieval"
	"github.com/scrypster/arbor/internal/scoring"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/internal/tools"
	"github.com/scrypster/arbor/pkg/types"
)

type fakeStore struct{ memories map[string]*types.Memory }

func newFakeStore() *fakeStore { return &fakeStore{memories: make(map[string]*types.Memory)} }

func (f *fakeStore) Create(ctx context.Context, req types.CreateRequest) (*types.Memory, error) {
	importance := 0.5
	if req.ImportanceScore != nil {
		importance = *req.ImportanceScore
	}
	now := time.Now()
	m := &types.Memory{ID: uuid.NewString(), Content: req.Content, Tier: req.Tier, Status: types.StatusActive, ImportanceScore: importance, Metadata: req.Metadata, CreatedAt: now, UpdatedAt: now}
	f.memories[m.ID] = m
	return m, nil
}
func (f *fakeStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	if m, ok := f.memories[id]; ok {
		return m, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "not found")
}
func (f *fakeStore) List(ctx context.Context, opts store.ListOptions) (*store.PaginatedResult[types.Memory], error) {
	return &store.PaginatedResult[types.Memory]{}, nil
}
func (f *fakeStore) Update(ctx context.Context, id string, patch types.UpdatePatch) (*types.Memory, error) {
	return f.Get(ctx, id)
}
func (f *fakeStore) Delete(ctx context.Context, id string) error {
	if m, ok := f.memories[id]; ok {
		m.Status = types.StatusDeleted
		return nil
	}
	return apperr.New(apperr.KindNotFound, "not found")
}
func (f *fakeStore) Restore(ctx context.Context, id string) error { return nil }
func (f *fakeStore) SetTier(ctx context.Context, id string, tier types.Tier) error {
	m, ok := f.memories[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "not found")
	}
	if !m.Tier.CanTransition(tier) {
		return apperr.New(apperr.KindInvalid, "illegal transition")
	}
	m.Tier = tier
	return nil
}
func (f *fakeStore) RecordAccess(ctx context.Context, id string, now time.Time) error { return nil }
func (f *fakeStore) ListByTier(ctx context.Context, tier types.Tier) ([]*types.Memory, error) {
	var out []*types.Memory
	for _, m := range f.memories {
		if m.Tier == tier {
			out = append(out, m)
		}
	}
	return out, nil
}
func (f *fakeStore) Close() error { return nil }
func (f *fakeStore) LexicalSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	var out []store.ScoredMemory
	for _, m := range f.memories {
		out = append(out, store.ScoredMemory{Memory: m, SimilarityScore: 0.6})
	}
	return out, nil
}
func (f *fakeStore) VectorSearch(ctx context.Context, opts store.SearchOptions) ([]store.ScoredMemory, error) {
	return f.LexicalSearch(ctx, opts)
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) Dimension() int { return 2 }
func (fakeEmbedder) Model() string  { return "fake" }

func newTestServer(t *testing.T, g *gate.Gate) http.Handler {
	t.Helper()
	fs := newFakeStore()
	scorer := scoring.New(config.ScoringConfig{RecencyWeight: 0.3, ImportanceWeight: 0.3, RelevanceWeight: 0.4, DecayLambda: 0.01, MaxAccessCountForNorm: 100})
	retr := retrieval.New(fs, fakeEmbedder{}, scorer)
	svc := tools.New(fs, retr, scorer, nil, nil)
	return httpapi.New(svc, g).Handler()
}

func TestStoreMemory_Succeeds(t *testing.T) {
	h := newTestServer(t, nil)
	body, _ := json.Marshal(map[string]string{"content": "remember this"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/memories", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStoreMemory_MissingContentIsBadRequest(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/memories", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGate_RejectsUnauthenticatedCaller(t *testing.T) {
	g := gate.New(config.GateConfig{Auth: config.GateAuthConfig{Enabled: true}})
	defer g.Close()
	h := newTestServer(t, g)

	body, _ := json.Marshal(map[string]string{"content": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/memories", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected security headers applied, got %q", got)
	}
}
