package notifier

import (
	"context"

	"peopleops/webhook-outbox-relay/notifier/breaker"
	"peopleops/webhook-outbox-relay/outbox"
)

type breakingNotifier struct {
	next     Notifier
	registry *breaker.Registry
}

// NewBreaking decorates a notifier with the per-destination circuit breaker
// registry, so one unhealthy destination cannot starve delivery capacity
// meant for healthy ones sharing the worker pool.
func NewBreaking(next Notifier, registry *breaker.Registry) Notifier {
	return &breakingNotifier{
		next:     next,
		registry: registry,
	}
}

func (b breakingNotifier) Dispatch(ctx context.Context, e *outbox.Entry, env *outbox.Envelope) error {
	return b.registry.Execute(e.Destination, func() error {
		return b.next.Dispatch(ctx, e, env)
	})
}
