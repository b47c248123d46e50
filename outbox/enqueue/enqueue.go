package enqueue

import (
	"context"
	"database/sql"
	"time"

	"peopleops/webhook-outbox-relay/config"
	"peopleops/webhook-outbox-relay/log"
	"peopleops/webhook-outbox-relay/outbox"
	"peopleops/webhook-outbox-relay/prometheus"

	"github.com/sirupsen/logrus"
)

type inserter interface {
	CreatePending(ctx context.Context, tx *sql.Tx, e *outbox.Entry) error
}

// Service writes notification intents into the outbox through the caller's
// open business transaction. If every local attempt fails the last error is
// returned so the caller rolls the whole transaction back; a business
// mutation must never commit without its notification record.
type Service struct {
	repo        inserter
	maxAttempts int
	baseDelay   time.Duration
}

func NewService(repo inserter, cfg *config.Config) *Service {
	maxAttempts := cfg.EnqueueMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Service{
		repo:        repo,
		maxAttempts: maxAttempts,
		baseDelay:   cfg.GetEnqueueRetryDelay(),
	}
}

func (s *Service) Enqueue(ctx context.Context, tx *sql.Tx, tenantId, eventType, destination string, env outbox.Envelope) (*outbox.Entry, error) {
	payload, err := env.Encode()
	if err != nil {
		return nil, err
	}

	e := &outbox.Entry{
		TenantId:    tenantId,
		EventType:   eventType,
		Destination: destination,
		Payload:     payload,
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.repo.CreatePending(ctx, tx, e)
		if err == nil {
			prometheus.IncEnqueued()
			if attempt > 1 {
				prometheus.IncEnqueueRetrySuccess()
			}
			return e, nil
		}

		lastErr = err
		log.Logger.WithError(err).WithFields(logrus.Fields{
			"event_type":  eventType,
			"destination": destination,
			"attempt":     attempt,
		}).Warn("error writing notification to the outbox")

		if attempt < s.maxAttempts {
			if err = sleep(ctx, s.delay(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, lastErr
}

func (s *Service) delay(attempt int) time.Duration {
	return s.baseDelay << (attempt - 1)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
