package prometheus

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enqueuedTotal            prom.Counter
	enqueueRetrySuccessTotal prom.Counter
	dispatchedTotal          prom.Counter
	failedTotal              prom.Counter
	dlqTotal                 prom.Counter
	pendingSize              prom.Gauge
	dispatchDuration         prom.Histogram
)

func init() {
	enqueuedTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "outbox_enqueued_total",
		Help: "The number of notifications written to the outbox",
	})
	enqueueRetrySuccessTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "outbox_enqueue_retry_success_total",
		Help: "The number of outbox writes that succeeded after at least one failed attempt",
	})
	dispatchedTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "outbox_dispatched_total",
		Help: "The number of notifications successfully delivered to a destination",
	})
	failedTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "outbox_failed_total",
		Help: "The number of failed delivery attempts",
	})
	dlqTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "outbox_dlq_total",
		Help: "The number of notifications moved to the dead letter store",
	})
	pendingSize = promauto.NewGauge(prom.GaugeOpts{
		Name: "outbox_pending",
		Help: "The current number of undelivered notifications in the outbox",
	})
	dispatchDuration = promauto.NewHistogram(prom.HistogramOpts{
		Name:    "outbox_dispatch_duration_seconds",
		Help:    "The time taken to deliver one notification to its destination",
		Buckets: prom.DefBuckets,
	})
}

func IncEnqueued() {
	enqueuedTotal.Inc()
}

func IncEnqueueRetrySuccess() {
	enqueueRetrySuccessTotal.Inc()
}

func IncDispatched() {
	dispatchedTotal.Inc()
}

func IncFailed() {
	failedTotal.Inc()
}

func IncDeadLettered() {
	dlqTotal.Inc()
}

func SetPendingSize(size uint) {
	pendingSize.Set(float64(size))
}

func ObserveDispatchDuration(d time.Duration) {
	dispatchDuration.Observe(d.Seconds())
}
