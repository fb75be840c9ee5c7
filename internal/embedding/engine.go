// Package embedding provides vector embeddings for near-duplicate
// detection. The default engine is a deterministic, model-free
// bag-of-hashed-tokens embedder that runs in-process; an Ollama-backed
// engine is available behind the same interface for richer semantics.
package embedding

import (
	"context"
	"fmt"
	"math"

	"mnemos/internal/config"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalEngine(cfg.Dimensions), nil
	case "ollama":
		return NewOllamaEngine(cfg.Endpoint, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// Cosine returns the cosine similarity of two unit-norm vectors, which
// for normalized input is just the dot product. Mismatched dimensions
// or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// normalize scales vec to unit L2 norm in place. A zero vector is left
// untouched so empty text stays all-zero.
func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
