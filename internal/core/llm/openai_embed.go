package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bzrportal/knowledge/internal/core"
)

type OpenAIEmbedder struct {
	client    openai.Client
	modelName string
}

func NewOpenAIEmbedder(apiKey, modelName string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIEmbedder{client: client, modelName: modelName}, nil
}

func (o *OpenAIEmbedder) Name() string { return "openai/" + o.modelName }

// EmbedText embeds one text, retrying with exponential backoff on rate
// limit errors (HTTP 429). Other errors fail immediately.
func (o *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vec []float32

	operation := func() error {
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: []string{text},
			},
			Model: openai.EmbeddingModel(o.modelName),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) == 0 {
			return backoff.Permanent(fmt.Errorf("openai embed: empty response"))
		}
		vec = toFloat32(resp.Data[0].Embedding)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	return vec, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vector for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)
