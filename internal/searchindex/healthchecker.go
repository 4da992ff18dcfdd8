package searchindex

import (
	"context"
	"errors"
	"time"

	"github.com/hudson-blanoire/chroma-server/internal/health"
	"github.com/rs/zerolog"
)

// NewSearchIndexHealthChecker monitors the index through its HealthPinger.
// Indexes without one fall back to a search on an unregistered collection,
// which must fail only with ErrUnknownCollection.
func NewSearchIndexHealthChecker(index Index, log zerolog.Logger, probeTimeout time.Duration) *health.ProbeChecker {
	probe := func(ctx context.Context) error {
		return health.Ping(ctx, index, func(ctx context.Context) error {
			_, err := index.Search(ctx, "__health_check__", nil, 1)
			if errors.Is(err, ErrUnknownCollection) {
				return nil
			}
			return err
		})
	}
	return health.NewProbeChecker("searchindex", probe, log, probeTimeout)
}
