package embeddings

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lenEmbedder struct{ err error }

func (l lenEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if l.err != nil {
		return nil, l.err
	}
	return []float32{float32(len(text))}, nil
}

type batchEmbedder struct {
	lenEmbedder
	calls int
}

func (b *batchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(strings.Fields(t)))}
	}
	return out, nil
}

func TestEmbedAll(t *testing.T) {
	ctx := context.Background()
	out, err := EmbedAll(ctx, lenEmbedder{}, []string{"a", "abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}}, out)

	b := &batchEmbedder{}
	out, err = EmbedAll(ctx, b, []string{"one two", "three"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}, {1}}, out)
	assert.Equal(t, 1, b.calls)

	_, err = EmbedAll(ctx, lenEmbedder{err: errors.New("boom")}, []string{"x"})
	assert.Error(t, err)
}

func TestProviderHealthChecker_Fallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hc := NewProviderHealthChecker(lenEmbedder{}, zerolog.Nop(), 50*time.Millisecond)
	go hc.Start(ctx, 20*time.Millisecond)
	require.Eventually(t, hc.IsHealthy, time.Second, 10*time.Millisecond)

	bad := NewProviderHealthChecker(lenEmbedder{err: errors.New("down")}, zerolog.Nop(), 50*time.Millisecond)
	go bad.Start(ctx, 20*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.False(t, bad.IsHealthy())
	assert.Equal(t, "embedder", bad.Name())
}
