package prometheus

import (
	"context"
	"time"

	"peopleops/webhook-outbox-relay/log"
)

type pendingSizer interface {
	GetPendingCount(ctx context.Context) (uint, error)
}

// ObservePendingSize keeps the pending gauge fresh between dispatch passes,
// so the metric is accurate even when the relay is idle.
func ObservePendingSize(sizer pendingSizer, ctx context.Context) {
	for {
		size, err := sizer.GetPendingCount(ctx)
		if err != nil {
			log.Logger.WithError(err).Error("an error occurred determining the pending size of the outbox")
			time.Sleep(time.Second * 1)
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			pendingSize.Set(float64(size))

			time.Sleep(time.Second * 1)
		}
	}
}
