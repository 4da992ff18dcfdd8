// Package embeddings turns documents and query texts into vectors when clients send text only.
package embeddings

import "context"

// EmbeddingProvider produces vector representations for text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by providers that embed many texts per request.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedAll embeds texts with one batch call when supported, otherwise one call per text.
func EmbedAll(ctx context.Context, p EmbeddingProvider, texts []string) ([][]float32, error) {
	if b, ok := p.(BatchEmbedder); ok {
		return b.EmbedBatch(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
