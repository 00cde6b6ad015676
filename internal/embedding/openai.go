package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scrypster/arbor/internal/apperr"
)

// OpenAIConfig configures the OpenAI embeddings HTTP client.
type OpenAIConfig struct {
	APIKey  string
	Model   string        // default: text-embedding-3-small
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 30s

	// Dim is the embedding dimension the configured model produces. It is
	// reported rather than inferred, matching how the store's vector
	// column size is fixed at schema creation time.
	Dim int
}

// OpenAIGenerator implements Generator over the OpenAI /v1/embeddings
// endpoint. Adapted from the teacher's internal/llm.OpenAIEmbeddingClient.
type OpenAIGenerator struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIGenerator builds an OpenAIGenerator from cfg, filling in the
// same defaults the teacher's client applies.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Dim == 0 {
		cfg.Dim = 1536 // text-embedding-3-small's native dimension
	}
	return &OpenAIGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed calls the OpenAI embeddings endpoint for text. The circuit breaker
// that guards against a flaky embedding service lives one layer up, in
// Wrap — Embed itself makes exactly one HTTP call per invocation.
func (g *OpenAIGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(openAIEmbeddingRequest{Model: g.cfg.Model, Input: text})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "call embedding service", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, apperr.New(apperr.KindBackend, fmt.Sprintf("embedding service returned status %d: %s", resp.StatusCode, respBody))
	}

	var parsed openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "decode embedding response", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, apperr.New(apperr.KindBackend, "embedding service returned an empty vector")
	}

	raw := parsed.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimension reports the configured embedding width.
func (g *OpenAIGenerator) Dimension() int { return g.cfg.Dim }

// Model reports the configured embedding model name.
func (g *OpenAIGenerator) Model() string { return g.cfg.Model }

var _ Generator = (*OpenAIGenerator)(nil)
