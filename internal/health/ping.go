package health

import "context"

// HealthPinger can be implemented by components to expose a specialized
// health check. HealthPing must return nil when the component is healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// Ping uses HealthPing when target implements it, otherwise fallback.
func Ping(ctx context.Context, target interface{}, fallback func(ctx context.Context) error) error {
	if p, ok := target.(HealthPinger); ok {
		return p.HealthPing(ctx)
	}
	if fallback == nil {
		return nil
	}
	return fallback(ctx)
}
