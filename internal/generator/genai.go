package generator

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIGenerator runs completions against Google's Gemini API. Used when
// no local inference server is available.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

// NewGenAIGenerator creates a Gemini-backed generator.
func NewGenAIGenerator(apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIGenerator{client: client, model: model}, nil
}

// Generate runs one completion call.
func (g *GenAIGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	var cfg *genai.GenerateContentConfig
	if opts.MaxTokens > 0 || opts.Temperature > 0 {
		cfg = &genai.GenerateContentConfig{}
		if opts.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.Temperature > 0 {
			t := float32(opts.Temperature)
			cfg.Temperature = &t
		}
	}

	result, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(prompt),
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("no text returned")
	}
	return text, nil
}

// IsAvailable reports whether the client was constructed; the API is
// remote and probing it per tick would burn quota.
func (g *GenAIGenerator) IsAvailable(_ context.Context) bool {
	return g.client != nil
}

// Name returns the backend name.
func (g *GenAIGenerator) Name() string {
	return fmt.Sprintf("genai:%s", g.model)
}
