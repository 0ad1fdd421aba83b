package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"math"

	"github.com/bzrportal/knowledge/internal/core"
)

// FallbackSource tags vectors synthesized without any provider. They carry
// no semantic information: identical text yields an identical vector,
// nothing more.
const FallbackSource = "fallback"

// DefaultMaxChars caps input length before any provider call, roughly the
// token budget of the smallest provider.
const DefaultMaxChars = 12000

// Result is one generated embedding plus its provenance.
type Result struct {
	Vector   []float32
	Source   string
	Fallback bool
}

// Generator produces fixed-dimension embeddings through an ordered provider
// chain. A provider failure advances the chain instead of aborting; when
// every provider fails it either synthesizes a deterministic fallback
// vector or reports core.ErrEmbeddingUnavailable.
type Generator struct {
	providers     []core.EmbeddingProvider
	dim           int
	maxChars      int
	allowFallback bool
}

func NewGenerator(providers []core.EmbeddingProvider, dim int, allowFallback bool) *Generator {
	return &Generator{
		providers:     providers,
		dim:           dim,
		maxChars:      DefaultMaxChars,
		allowFallback: allowFallback,
	}
}

// Dim returns the fixed dimensionality every generated vector has.
func (g *Generator) Dim() int { return g.dim }

// Embed returns an embedding of exactly Dim() values for text. The vector
// is normalized (pad/truncate) in one place so the index's fixed-dimension
// invariant holds no matter which provider, if any, produced it.
func (g *Generator) Embed(ctx context.Context, text string) (*Result, error) {
	if runes := []rune(text); len(runes) > g.maxChars {
		log.Printf("embedding: input truncated from %d to %d chars", len(runes), g.maxChars)
		text = string(runes[:g.maxChars])
	}

	for _, p := range g.providers {
		vec, err := p.EmbedText(ctx, text)
		if err != nil {
			log.Printf("embedding: provider %s failed, trying next: %v", p.Name(), err)
			continue
		}
		return &Result{Vector: g.normalize(vec), Source: p.Name()}, nil
	}

	if !g.allowFallback {
		return nil, fmt.Errorf("%w: all %d providers failed", core.ErrEmbeddingUnavailable, len(g.providers))
	}

	log.Printf("embedding: all providers failed, using deterministic fallback")
	return &Result{Vector: g.fallbackVector(text), Source: FallbackSource, Fallback: true}, nil
}

// normalize pads with trailing zeros or truncates so len(vec) == g.dim.
func (g *Generator) normalize(vec []float32) []float32 {
	if len(vec) == g.dim {
		return vec
	}
	out := make([]float32, g.dim)
	copy(out, vec)
	return out
}

// fallbackVector derives a pseudo-embedding from the text alone. An FNV-1a
// hash seeds a splitmix64 stream filling the dimensions, and the result is
// L2-normalized to unit length. The same text always yields a bit-identical
// vector, which preserves exact-text retrieval and dedup semantics while
// the providers are down.
func (g *Generator) fallbackVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, g.dim)
	var sumSq float64
	for i := range vec {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31

		// map to [-1, 1)
		v := float64(int64(z)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		sumSq += v * v
	}

	norm := math.Sqrt(sumSq)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
