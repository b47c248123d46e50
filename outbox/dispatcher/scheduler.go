package dispatcher

import (
	"context"
	"sync/atomic"
	"time"

	nr "github.com/newrelic/go-agent/v3/newrelic"

	"peopleops/webhook-outbox-relay/log"
	"peopleops/webhook-outbox-relay/newrelic"
)

type passRunner interface {
	RunPass(ctx context.Context) error
}

// Scheduler drives the coordinator on a fixed interval. It is reentrancy
// guarded: when a pass is still running as the next timer fires, the tick is
// skipped instead of overlapping passes within the process.
type Scheduler struct {
	coordinator passRunner
	interval    time.Duration
	nrApp       *nr.Application
	running     int32
}

func NewScheduler(coordinator passRunner, interval time.Duration, nrApp *nr.Application) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		interval:    interval,
		nrApp:       nrApp,
	}
}

// Run blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Logger.Infof("starting outbox dispatch loop with an interval of %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
				log.Logger.Debug("previous dispatch pass still running, skipping tick")
				continue
			}

			go func() {
				defer atomic.StoreInt32(&s.running, 0)

				passCtx, txn := newrelic.ContextWithTxn(ctx, "dispatcher: Coordinator.RunPass()", s.nrApp)
				if err := s.coordinator.RunPass(passCtx); err != nil {
					log.Logger.WithError(err).Error("an unexpected error occurred during the dispatch pass")
					txn.NoticeError(err)
				}
				txn.End()
			}()
		}
	}
}
