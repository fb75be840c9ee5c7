// Package generator wraps the external text-generation backend behind a
// small interface. The pipeline only needs "prompt in, text out" plus an
// availability probe; when no backend is reachable the pipeline degrades
// to heuristic extraction instead of blocking the scan.
package generator

import (
	"context"
	"fmt"

	"mnemos/internal/config"
)

// Options tunes a single generation call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Generator produces free text from a prompt.
type Generator interface {
	// Generate runs one completion. Callers bound it with a context
	// deadline; there is no automatic retry.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)

	// IsAvailable reports whether the backend is reachable right now.
	IsAvailable(ctx context.Context) bool

	// Name returns the backend name.
	Name() string
}

// New creates a generator from configuration. Provider "none" returns
// nil without error: the pipeline treats a nil generator as permanently
// unavailable.
func New(cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "", "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "genai":
		return NewGenAIGenerator(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown generator provider: %s", cfg.Provider)
	}
}
