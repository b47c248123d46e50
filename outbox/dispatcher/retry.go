package dispatcher

import (
	"context"
	"time"

	"peopleops/webhook-outbox-relay/config"
	"peopleops/webhook-outbox-relay/log"
	"peopleops/webhook-outbox-relay/outbox"
	"peopleops/webhook-outbox-relay/prometheus"

	"github.com/sirupsen/logrus"
)

const maxDelayShift = 62

type failureRepository interface {
	Reschedule(ctx context.Context, e *outbox.Entry, nextAttemptAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, e *outbox.Entry, lastError string) error
	MoveToDeadLetter(ctx context.Context, e *outbox.Entry, lastError string) error
}

// RetryPolicy decides what happens to an entry after a failed delivery
// attempt: reschedule with exponential backoff, or move to the dead letter
// store once the attempt budget is spent.
type RetryPolicy struct {
	repo        failureRepository
	maxAttempts int
	baseDelay   time.Duration
	clock       outbox.Clock
}

func NewRetryPolicy(repo failureRepository, cfg *config.Config, clock outbox.Clock) *RetryPolicy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &RetryPolicy{
		repo:        repo,
		maxAttempts: maxAttempts,
		baseDelay:   cfg.GetRetryBaseDelay(),
		clock:       clock,
	}
}

// HandleFailure applies the policy to one failed attempt. Every path records
// a failed metric; the terminal path additionally records the dead letter
// transition.
func (p *RetryPolicy) HandleFailure(ctx context.Context, e *outbox.Entry, cause error) {
	e.Attempts++
	prometheus.IncFailed()

	if e.Attempts >= p.maxAttempts {
		p.deadLetter(ctx, e, cause)
		return
	}

	next := p.clock.Now().Add(p.Delay(e.Attempts))
	if err := p.repo.Reschedule(ctx, e, next, cause.Error()); err != nil {
		log.Logger.WithError(err).WithFields(logrus.Fields{"entry_id": e.Id.String()}).Error("an error occurred rescheduling a failed entry")
		return
	}

	log.Logger.WithFields(logrus.Fields{
		"entry_id":        e.Id.String(),
		"destination":     e.Destination,
		"attempts":        e.Attempts,
		"next_attempt_at": next.String(),
	}).Debug("rescheduled failed entry")
}

func (p *RetryPolicy) deadLetter(ctx context.Context, e *outbox.Entry, cause error) {
	if err := p.repo.MoveToDeadLetter(ctx, e, cause.Error()); err != nil {
		// leave the entry parked as FAILED rather than losing it; the next
		// sweep or a manual replay can still reach it
		log.Logger.WithError(err).WithFields(logrus.Fields{"entry_id": e.Id.String()}).Error("an error occurred moving an exhausted entry to the dead letter store")
		if err = p.repo.MarkFailed(ctx, e, cause.Error()); err != nil {
			log.Logger.WithError(err).WithFields(logrus.Fields{"entry_id": e.Id.String()}).Error("an error occurred parking an exhausted entry as failed")
		}
		return
	}

	prometheus.IncDeadLettered()

	log.Logger.WithFields(logrus.Fields{
		"entry_id":    e.Id.String(),
		"destination": e.Destination,
		"attempts":    e.Attempts,
	}).Warn("entry exhausted its delivery attempts and was moved to the dead letter store")
}

// Delay computes the backoff before attempt n+1 as baseDelay * 2^(n-1),
// with no cap beyond shift overflow protection.
func (p *RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	shift := attempts - 1
	if shift > maxDelayShift {
		shift = maxDelayShift
	}

	return p.baseDelay << shift
}
