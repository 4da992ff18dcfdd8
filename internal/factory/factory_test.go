package factory

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudson-blanoire/chroma-server/internal/config"
	"github.com/hudson-blanoire/chroma-server/internal/searchindex"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()

	cfg := config.NewForTesting()
	s, err := NewStore(ctx, cfg, log)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg = config.NewForTesting()
	cfg.IsPersistent = true
	cfg.PersistDirectory = t.TempDir()
	cfg.DBDriver = config.DriverBolt
	s, err = NewStore(ctx, cfg, log)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg.DBDriver = "mysql"
	_, err = NewStore(ctx, cfg, log)
	assert.Error(t, err)

	cfg.DBDriver = config.DriverPostgres
	_, err = NewStore(ctx, cfg, log)
	assert.Error(t, err)
}

func TestNewSearchIndex(t *testing.T) {
	cfg := config.NewForTesting()
	idx, err := NewSearchIndex(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, searchindex.IsVolatile(idx))

	cfg.IndexBackend = "faiss"
	_, err = NewSearchIndex(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewEmbeddingProvider(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.NewForTesting()
	p, err := NewEmbeddingProvider(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, p)

	cfg.EmbedProvider = config.EmbedOllama
	cfg.OllamaURL = "http://127.0.0.1:1"
	cfg.BootstrapTimeoutSeconds = 1
	p, err = NewEmbeddingProvider(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, p)

	cfg.EmbedProvider = "cohere"
	_, err = NewEmbeddingProvider(ctx, cfg, zerolog.Nop())
	assert.Error(t, err)
}
