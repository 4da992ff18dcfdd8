package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hudson-blanoire/chroma-server/internal/config"
	"github.com/hudson-blanoire/chroma-server/internal/searchindex"
)

// NewSearchIndex creates a search index implementation based on config.
// Weaviate bootstraps asynchronously with a short timeout; the index is returned immediately.
func NewSearchIndex(ctx context.Context, cfg *config.Config, log zerolog.Logger) (searchindex.Index, error) {
	switch cfg.IndexBackend {
	case config.IndexHNSW:
		return searchindex.NewHNSW(), nil

	case config.IndexWeaviate:
		if cfg.WeaviateURL == "" {
			return nil, fmt.Errorf("CHROMA_WEAVIATE_URL is required when INDEX_BACKEND=weaviate")
		}
		idx, err := searchindex.NewWeaviate(cfg.WeaviateURL, log)
		if err != nil {
			return nil, err
		}
		go func() {
			bootstrapTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
			bootstrapCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
			defer cancel()

			if err := searchindex.BootstrapWeaviate(bootstrapCtx, cfg.WeaviateURL); err != nil {
				log.Warn().Err(err).Str("url", cfg.WeaviateURL).Msg("search index bootstrap failed")
			} else {
				log.Debug().Str("url", cfg.WeaviateURL).Msg("search index bootstrap completed")
			}
		}()
		return idx, nil
	}
	return nil, fmt.Errorf("unknown INDEX_BACKEND: %s", cfg.IndexBackend)
}
