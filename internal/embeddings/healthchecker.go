package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/hudson-blanoire/chroma-server/internal/health"
	"github.com/rs/zerolog"
)

// NewProviderHealthChecker monitors an embeddings provider via HealthPing,
// falling back to embedding a short probe text.
func NewProviderHealthChecker(p EmbeddingProvider, log zerolog.Logger, probeTimeout time.Duration) *health.ProbeChecker {
	probe := func(ctx context.Context) error {
		return health.Ping(ctx, p, func(ctx context.Context) error {
			vec, err := p.Embed(ctx, "health-check")
			if err != nil {
				return err
			}
			if len(vec) == 0 {
				return fmt.Errorf("embedder returned an empty vector")
			}
			return nil
		})
	}
	return health.NewProbeChecker("embedder", probe, log, probeTimeout)
}
