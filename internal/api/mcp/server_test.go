package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/internal/gate"
	"github.com/scrypster/arbor/internal/api/mcp"
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

func newTestServer(t *testing.T, g *gate.Gate) *mcp.Server {
	t.Helper()
	fs := newFakeStore()
	scorer := scoring.New(config.ScoringConfig{RecencyWeight: 0.3, ImportanceWeight: 0.3, RelevanceWeight: 0.4, DecayLambda: 0.01, MaxAccessCountForNorm: 100})
	retr := retrieval.New(fs, fakeEmbedder{}, scorer)
	svc := tools.New(fs, retr, scorer, nil, nil)
	return mcp.NewServer(svc, g)
}

func rpc(method string, params interface{}) []byte {
	req := map[string]interface{}{"jsonrpc": "2.0", "method": method, "id": 1}
	if params != nil {
		req["params"] = params
	}
	data, _ := json.Marshal(req)
	return data
}

func TestHandleRequest_ToolsList(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := srv.HandleRequest(context.Background(), rpc("tools/list", nil), gate.Credential{})

	var decoded map[string]interface{}
	if err := json.Unmarshal(resp, &decoded); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	result, ok := decoded["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %v", decoded)
	}
	toolsList, ok := result["tools"].([]interface{})
	if !ok || len(toolsList) != 8 {
		t.Fatalf("expected 8 tools, got %v", result["tools"])
	}
}

func TestHandleRequest_UnknownMethod(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := srv.HandleRequest(context.Background(), rpc("no_such_method", nil), gate.Credential{})

	var decoded map[string]interface{}
	json.Unmarshal(resp, &decoded)
	errObj, ok := decoded["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", decoded)
	}
	if int(errObj["code"].(float64)) != mcp.ErrCodeMethodNotFound {
		t.Fatalf("expected method-not-found code, got %v", errObj["code"])
	}
}

func TestHandleRequest_ToolsCallStoreMemory(t *testing.T) {
	srv := newTestServer(t, nil)
	params := map[string]interface{}{"name": "store_memory", "arguments": map[string]interface{}{"content": "remember this"}}
	resp := srv.HandleRequest(context.Background(), rpc("tools/call", params), gate.Credential{})

	var decoded map[string]interface{}
	json.Unmarshal(resp, &decoded)
	result, ok := decoded["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %v", decoded)
	}
	if isErr, _ := result["isError"].(bool); isErr {
		t.Fatalf("unexpected tool error: %v", result)
	}
}

func TestHandleRequest_ToolsCallMissingRequiredFieldIsToolError(t *testing.T) {
	srv := newTestServer(t, nil)
	params := map[string]interface{}{"name": "store_memory", "arguments": map[string]interface{}{}}
	resp := srv.HandleRequest(context.Background(), rpc("tools/call", params), gate.Credential{})

	var decoded map[string]interface{}
	json.Unmarshal(resp, &decoded)
	result, ok := decoded["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %v", decoded)
	}
	if isErr, _ := result["isError"].(bool); !isErr {
		t.Fatalf("expected isError=true for missing content, got %v", result)
	}
}

func TestHandleRequest_GateRejectsUnauthenticatedCaller(t *testing.T) {
	g := gate.New(config.GateConfig{Auth: config.GateAuthConfig{Enabled: true}})
	defer g.Close()
	srv := newTestServer(t, g)

	params := map[string]interface{}{"name": "store_memory", "arguments": map[string]interface{}{"content": "x"}}
	resp := srv.HandleRequest(context.Background(), rpc("tools/call", params), gate.Credential{})

	var decoded map[string]interface{}
	json.Unmarshal(resp, &decoded)
	result, ok := decoded["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %v", decoded)
	}
	if isErr, _ := result["isError"].(bool); !isErr {
		t.Fatalf("expected isError=true for unauthenticated caller, got %v", result)
	}
}
