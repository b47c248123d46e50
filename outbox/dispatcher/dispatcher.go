package dispatcher

import (
	"context"
	"os"
	"sync"
	"time"

	"peopleops/webhook-outbox-relay/config"
	"peopleops/webhook-outbox-relay/log"
	"peopleops/webhook-outbox-relay/notifier"
	"peopleops/webhook-outbox-relay/outbox"
	"peopleops/webhook-outbox-relay/prometheus"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type repository interface {
	ReleaseExpiredClaims(ctx context.Context, ttl time.Duration) (int64, error)
	FetchDue(ctx context.Context) ([]*outbox.Entry, error)
	Claim(ctx context.Context, e *outbox.Entry, workerId string) (bool, error)
	MarkCompleted(ctx context.Context, e *outbox.Entry) error
	Reschedule(ctx context.Context, e *outbox.Entry, nextAttemptAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, e *outbox.Entry, lastError string) error
	MoveToDeadLetter(ctx context.Context, e *outbox.Entry, lastError string) error
	GetPendingCount(ctx context.Context) (uint, error)
}

// Coordinator owns one dispatch pass: recover expired claims, select due
// entries, claim them one at a time with the conditional update guard, and
// fan the claimed subset out to a bounded worker pool. Multiple relay
// instances may run concurrently; the store-level claim is the only
// coordination between them.
type Coordinator struct {
	repo     repository
	notifier notifier.Notifier
	retry    *RetryPolicy
	cfg      *config.Config
	clock    outbox.Clock
	workerId string
}

func New(cfg *config.Config, repo repository, n notifier.Notifier, clock outbox.Clock) *Coordinator {
	return &Coordinator{
		repo:     repo,
		notifier: n,
		retry:    NewRetryPolicy(repo, cfg, clock),
		cfg:      cfg,
		clock:    clock,
		workerId: newWorkerId(),
	}
}

func newWorkerId() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "relay"
	}
	return host + "-" + uuid.New().String()
}

func (c *Coordinator) WorkerId() string {
	return c.workerId
}

// RunPass executes one full claim-and-dispatch cycle. The pending gauge is
// refreshed at the end of every pass, dispatched or not.
func (c *Coordinator) RunPass(ctx context.Context) error {
	defer c.updatePendingGauge(ctx)

	released, err := c.repo.ReleaseExpiredClaims(ctx, c.cfg.GetClaimTTL())
	if err != nil {
		log.Logger.WithError(err).Error("an error occurred releasing expired claims")
	} else if released > 0 {
		log.Logger.WithFields(logrus.Fields{"count": released}).Info("recovered entries from expired claims")
	}

	due, err := c.repo.FetchDue(ctx)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	claimed := c.claim(ctx, due)
	if len(claimed) == 0 {
		return nil
	}

	c.fanOut(ctx, claimed)

	return nil
}

// claim takes entries one at a time; a record another process claimed first
// yields zero affected rows and is skipped for this pass.
func (c *Coordinator) claim(ctx context.Context, due []*outbox.Entry) []*outbox.Entry {
	claimed := make([]*outbox.Entry, 0, len(due))
	for _, e := range due {
		ok, err := c.repo.Claim(ctx, e, c.workerId)
		if err != nil {
			log.Logger.WithError(err).WithFields(logrus.Fields{"entry_id": e.Id.String()}).Error("an error occurred claiming an entry")
			continue
		}
		if !ok {
			log.Logger.WithFields(logrus.Fields{"entry_id": e.Id.String()}).Debug("entry was claimed by another process, skipping")
			continue
		}
		claimed = append(claimed, e)
	}

	return claimed
}

// fanOut feeds claimed entries to the worker pool and waits for the pass to
// drain. A failure in one worker never aborts its siblings; every failure is
// absorbed by the retry policy against that entry alone.
func (c *Coordinator) fanOut(ctx context.Context, claimed []*outbox.Entry) {
	entries := make(chan *outbox.Entry)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.WorkerCount(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range entries {
				c.dispatchOne(ctx, e)
			}
		}()
	}

	for _, e := range claimed {
		entries <- e
	}
	close(entries)

	wg.Wait()
}

func (c *Coordinator) dispatchOne(ctx context.Context, e *outbox.Entry) {
	env, err := outbox.ParseEnvelope(e.Payload)
	if err != nil {
		// a poison payload is permanent; it must count toward the dead
		// letter transition instead of looping on the same bytes forever
		log.Logger.WithError(err).WithFields(logrus.Fields{"entry_id": e.Id.String()}).Error("entry payload could not be parsed")
		c.retry.HandleFailure(ctx, e, err)
		return
	}

	started := time.Now()
	if err = c.notifier.Dispatch(ctx, e, env); err != nil {
		log.Logger.WithError(err).WithFields(logrus.Fields{
			"entry_id":    e.Id.String(),
			"destination": e.Destination,
			"attempts":    e.Attempts,
		}).Warn("delivery attempt failed")
		c.retry.HandleFailure(ctx, e, err)
		return
	}

	prometheus.ObserveDispatchDuration(time.Since(started))

	if err = c.repo.MarkCompleted(ctx, e); err != nil {
		// the delivery happened but the completion update was lost; the
		// claim TTL will resurface the entry and the receiver sees a
		// duplicate, which at-least-once delivery permits
		log.Logger.WithError(err).WithFields(logrus.Fields{"entry_id": e.Id.String()}).Error("an error occurred completing a delivered entry")
		return
	}

	prometheus.IncDispatched()
}

func (c *Coordinator) updatePendingGauge(ctx context.Context) {
	count, err := c.repo.GetPendingCount(ctx)
	if err != nil {
		log.Logger.WithError(err).Error("an error occurred determining the pending size of the outbox")
		return
	}

	prometheus.SetPendingSize(count)
}
