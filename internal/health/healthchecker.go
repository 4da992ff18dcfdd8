// Package health tracks component health for the startup gate and /api/health.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, search index, embedder).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ServiceHealthChecker aggregates component checkers into a single service health flag.
type ServiceHealthChecker struct {
	healthy atomic.Int32
	deps    []HealthChecker
	log     zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	return &ServiceHealthChecker{deps: deps, log: log}
}

// IsHealthy returns cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Unhealthy lists the names of components currently reporting down.
func (h *ServiceHealthChecker) Unhealthy() []string {
	var down []string
	for _, c := range h.deps {
		if !c.IsHealthy() {
			down = append(down, c.Name())
		}
	}
	return down
}

// Start periodically evaluates dependency health and updates the service flag.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	prev := int32(0)
	runEvery(ctx, interval, func() {
		cur := int32(0)
		if len(h.Unhealthy()) == 0 {
			cur = 1
		}
		h.healthy.Store(cur)
		if cur == prev {
			return
		}
		if cur == 1 {
			h.log.Info().Msg("service health: UP")
		} else {
			h.log.Error().Strs("down", h.Unhealthy()).Msg("service health: DOWN")
		}
		prev = cur
	})
}

// ProbeChecker turns a probe function into a HealthChecker. Each probe runs
// under its own timeout; the result is cached until the next tick.
type ProbeChecker struct {
	name         string
	probe        func(ctx context.Context) error
	probeTimeout time.Duration
	healthy      atomic.Int32
	log          zerolog.Logger
}

// NewProbeChecker starts unhealthy until the first successful probe.
func NewProbeChecker(name string, probe func(ctx context.Context) error, log zerolog.Logger, probeTimeout time.Duration) *ProbeChecker {
	return &ProbeChecker{name: name, probe: probe, log: log, probeTimeout: probeTimeout}
}

func (c *ProbeChecker) Name() string    { return c.name }
func (c *ProbeChecker) IsHealthy() bool { return c.healthy.Load() == 1 }

func (c *ProbeChecker) Start(ctx context.Context, interval time.Duration) {
	runEvery(ctx, interval, func() {
		to := c.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()

		if err := c.probe(checkCtx); err != nil {
			c.log.Error().Stack().
				Str("checker", c.name).
				Err(err).
				Msg("health check failed")
			c.healthy.Store(0)
			return
		}
		c.healthy.Store(1)
	})
}

// runEvery calls fn immediately and then on every tick until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
