package store

import (
	"context"
	"time"

	"github.com/hudson-blanoire/chroma-server/internal/health"
	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/rs/zerolog"
)

// NewStoreHealthChecker probes the store with HealthPing when available,
// otherwise with a cheap collection count.
func NewStoreHealthChecker(s Store, log zerolog.Logger, probeTimeout time.Duration) *health.ProbeChecker {
	probe := func(ctx context.Context) error {
		return health.Ping(ctx, s, func(ctx context.Context) error {
			_, err := s.Collections().Count(ctx, model.DefaultTenant, model.DefaultDatabase)
			return err
		})
	}
	return health.NewProbeChecker("store", probe, log, probeTimeout)
}
