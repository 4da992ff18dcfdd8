package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hudson-blanoire/chroma-server/internal/config"
	emb "github.com/hudson-blanoire/chroma-server/internal/embeddings"
	"github.com/hudson-blanoire/chroma-server/internal/embeddings/ollama"
	"github.com/hudson-blanoire/chroma-server/internal/embeddings/openai"
)

// NewEmbeddingProvider creates the provider selected by config, or nil when
// server-side embedding is disabled. A warmup call runs asynchronously.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) (emb.EmbeddingProvider, error) {
	var provider emb.EmbeddingProvider

	switch cfg.EmbedProvider {
	case "", config.EmbedNone:
		return nil, nil
	case config.EmbedOpenAI:
		provider = openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbedModel)
	case config.EmbedOllama:
		provider = ollama.New(cfg.OllamaURL, cfg.EmbedModel)
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER: %s", cfg.EmbedProvider)
	}

	go func() {
		warmupTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
		warmupCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
		defer cancel()

		if vec, err := provider.Embed(warmupCtx, "factory-warmup-check"); err != nil || len(vec) == 0 {
			log.Warn().Err(err).Int("vec_len", len(vec)).
				Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup failed")
		} else {
			log.Debug().Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup completed")
		}
	}()

	return provider, nil
}
