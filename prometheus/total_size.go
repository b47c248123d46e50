package prometheus

import (
	"context"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"peopleops/webhook-outbox-relay/log"
)

var outboxTotal prom.Gauge

type totalSizer interface {
	GetTotalCount(ctx context.Context) (uint, error)
}

func init() {
	outboxTotal = promauto.NewGauge(prom.GaugeOpts{
		Name: "outbox_total",
		Help: "The total number of entries in the outbox (all statuses)",
	})
}

func ObserveTotalSize(sizer totalSizer, ctx context.Context) {
	for {
		size, err := sizer.GetTotalCount(ctx)
		if err != nil {
			log.Logger.WithError(err).Error("an error occurred determining the total size of the outbox")
			time.Sleep(time.Second * 1)
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			outboxTotal.Set(float64(size))

			time.Sleep(time.Second * 1)
		}
	}
}
