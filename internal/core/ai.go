package core

import "context"

// EmbeddingProvider is one backend in the embedding fallback chain.
// Providers may return vectors of their native dimensionality; the
// generator normalizes afterwards.
type EmbeddingProvider interface {
	Name() string
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
