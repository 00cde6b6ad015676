// Package embedding defines the Embedding Service client contract and a
// circuit-breaker-wrapped decorator around it, adapted from the teacher's
// internal/llm package (EmbeddingGenerator, CircuitBreaker).
package embedding

import (
	"context"

	"github.com/scrypster/arbor/internal/apperr"
)

// Generator produces a vector embedding for a piece of text. Implementations
// talk to an external embedding service; arbor never computes embeddings
// itself.
type Generator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// Wrap decorates gen with a circuit breaker so a failing embedding service
// degrades to fast rejection instead of blocking every caller on timeouts.
func Wrap(gen Generator, cfg CircuitBreakerConfig) Generator {
	return &guardedGenerator{inner: gen, breaker: NewCircuitBreaker(cfg)}
}

type guardedGenerator struct {
	inner   Generator
	breaker *CircuitBreaker
}

func (g *guardedGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := g.breaker.Execute(ctx, func() (interface{}, error) {
		return g.inner.Embed(ctx, text)
	})
	if err != nil {
		if err == ErrCircuitOpen {
			return nil, apperr.Wrap(apperr.KindBackend, "embedding service circuit open", err)
		}
		return nil, apperr.Wrap(apperr.KindBackend, "embedding service call failed", err)
	}
	return result.([]float32), nil
}

func (g *guardedGenerator) Dimension() int { return g.inner.Dimension() }
func (g *guardedGenerator) Model() string  { return g.inner.Model() }
