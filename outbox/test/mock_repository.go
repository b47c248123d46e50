package test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"peopleops/webhook-outbox-relay/outbox"

	"github.com/google/uuid"
)

type MockRepository struct {
	sync.Mutex
	due                  []*outbox.Entry
	deniedClaims         map[uuid.UUID]bool
	claims               map[uuid.UUID]string
	completed            map[uuid.UUID]bool
	rescheduled          map[uuid.UUID]time.Time
	markedFailed         map[uuid.UUID]string
	deadLettered         map[uuid.UUID]string
	releasedClaims       int64
	fetchDueCallCount    int
	pendingCount         uint
	totalCount           uint
	deletedRowsCount     int64
	deleteOlderThan      time.Time
	returnError          bool
	failDeadLetterMove   bool
	failMarkCompleted    bool
	createdEntries       []*outbox.Entry
	failCreateTimes      int
	createAttempts       int
	pendingGaugeReadings int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		deniedClaims: map[uuid.UUID]bool{},
		claims:       map[uuid.UUID]string{},
		completed:    map[uuid.UUID]bool{},
		rescheduled:  map[uuid.UUID]time.Time{},
		markedFailed: map[uuid.UUID]string{},
		deadLettered: map[uuid.UUID]string{},
	}
}

func (mr *MockRepository) CreatePending(ctx context.Context, tx *sql.Tx, e *outbox.Entry) error {
	mr.Lock()
	defer mr.Unlock()

	mr.createAttempts++
	if mr.returnError {
		return errors.New("oops")
	}
	if mr.createAttempts <= mr.failCreateTimes {
		return errors.New("oops")
	}

	if e.Id == uuid.Nil {
		e.Id = uuid.New()
	}
	e.Status = outbox.StatusPending
	mr.createdEntries = append(mr.createdEntries, e)

	return nil
}

func (mr *MockRepository) ReleaseExpiredClaims(ctx context.Context, ttl time.Duration) (int64, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}
	return mr.releasedClaims, nil
}

func (mr *MockRepository) FetchDue(ctx context.Context) ([]*outbox.Entry, error) {
	mr.Lock()
	defer mr.Unlock()

	mr.fetchDueCallCount++
	if mr.returnError {
		return nil, errors.New("oops")
	}

	return mr.due, nil
}

func (mr *MockRepository) Claim(ctx context.Context, e *outbox.Entry, workerId string) (bool, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return false, errors.New("oops")
	}

	if mr.deniedClaims[e.Id] {
		return false, nil
	}

	mr.claims[e.Id] = workerId
	e.Status = outbox.StatusProcessing
	e.ClaimedAt = sql.NullTime{Time: time.Now(), Valid: true}
	e.ClaimedBy = sql.NullString{String: workerId, Valid: true}

	return true, nil
}

func (mr *MockRepository) MarkCompleted(ctx context.Context, e *outbox.Entry) error {
	mr.Lock()
	defer mr.Unlock()

	if mr.failMarkCompleted {
		return outbox.ErrEntryNotUpdated
	}

	mr.completed[e.Id] = true
	e.Status = outbox.StatusCompleted
	e.DeliveredAt = sql.NullTime{Time: time.Now(), Valid: true}
	e.ClaimedAt = sql.NullTime{}
	e.ClaimedBy = sql.NullString{}

	return nil
}

func (mr *MockRepository) Reschedule(ctx context.Context, e *outbox.Entry, nextAttemptAt time.Time, lastError string) error {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return errors.New("oops")
	}

	mr.rescheduled[e.Id] = nextAttemptAt
	e.Status = outbox.StatusPending
	e.NextAttemptAt = sql.NullTime{Time: nextAttemptAt, Valid: true}
	e.LastError = sql.NullString{String: lastError, Valid: true}
	e.ClaimedAt = sql.NullTime{}
	e.ClaimedBy = sql.NullString{}

	return nil
}

func (mr *MockRepository) MarkFailed(ctx context.Context, e *outbox.Entry, lastError string) error {
	mr.Lock()
	defer mr.Unlock()

	mr.markedFailed[e.Id] = lastError
	e.Status = outbox.StatusFailed

	return nil
}

func (mr *MockRepository) MoveToDeadLetter(ctx context.Context, e *outbox.Entry, lastError string) error {
	mr.Lock()
	defer mr.Unlock()

	if mr.failDeadLetterMove {
		return errors.New("oops")
	}

	mr.deadLettered[e.Id] = lastError

	return nil
}

func (mr *MockRepository) DeleteTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return 0, errors.New("oops")
	}

	mr.deleteOlderThan = olderThan

	return mr.deletedRowsCount, nil
}

func (mr *MockRepository) GetPendingCount(ctx context.Context) (uint, error) {
	mr.Lock()
	defer mr.Unlock()

	mr.pendingGaugeReadings++
	if mr.returnError {
		return 0, errors.New("oops")
	}

	return mr.pendingCount, nil
}

func (mr *MockRepository) GetTotalCount(ctx context.Context) (uint, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return 0, errors.New("oops")
	}

	return mr.totalCount, nil
}

func (mr *MockRepository) AddDue(entries ...*outbox.Entry) {
	mr.Lock()
	defer mr.Unlock()
	mr.due = append(mr.due, entries...)
}

func (mr *MockRepository) DenyClaim(id uuid.UUID) {
	mr.Lock()
	defer mr.Unlock()
	mr.deniedClaims[id] = true
}

func (mr *MockRepository) ClaimedBy(id uuid.UUID) string {
	mr.Lock()
	defer mr.Unlock()
	return mr.claims[id]
}

func (mr *MockRepository) WasCompleted(id uuid.UUID) bool {
	mr.Lock()
	defer mr.Unlock()
	return mr.completed[id]
}

func (mr *MockRepository) RescheduledFor(id uuid.UUID) (time.Time, bool) {
	mr.Lock()
	defer mr.Unlock()
	at, ok := mr.rescheduled[id]
	return at, ok
}

func (mr *MockRepository) WasDeadLettered(id uuid.UUID) bool {
	mr.Lock()
	defer mr.Unlock()
	_, ok := mr.deadLettered[id]
	return ok
}

func (mr *MockRepository) DeadLetterError(id uuid.UUID) string {
	mr.Lock()
	defer mr.Unlock()
	return mr.deadLettered[id]
}

func (mr *MockRepository) WasMarkedFailed(id uuid.UUID) bool {
	mr.Lock()
	defer mr.Unlock()
	_, ok := mr.markedFailed[id]
	return ok
}

func (mr *MockRepository) CreatedEntries() []*outbox.Entry {
	mr.Lock()
	defer mr.Unlock()
	return mr.createdEntries
}

func (mr *MockRepository) CreateAttempts() int {
	mr.Lock()
	defer mr.Unlock()
	return mr.createAttempts
}

func (mr *MockRepository) DeleteOlderThan() time.Time {
	mr.Lock()
	defer mr.Unlock()
	return mr.deleteOlderThan
}

func (mr *MockRepository) FetchDueCallCount() int {
	mr.Lock()
	defer mr.Unlock()
	return mr.fetchDueCallCount
}

func (mr *MockRepository) PendingCountReadings() int {
	mr.Lock()
	defer mr.Unlock()
	return mr.pendingGaugeReadings
}

func (mr *MockRepository) SetPendingCount(count uint) {
	mr.Lock()
	defer mr.Unlock()
	mr.pendingCount = count
}

func (mr *MockRepository) SetTotalCount(count uint) {
	mr.totalCount = count
}

func (mr *MockRepository) SetDeletedRowsCount(count int64) {
	mr.Lock()
	defer mr.Unlock()
	mr.deletedRowsCount = count
}

func (mr *MockRepository) SetReleasedClaims(count int64) {
	mr.releasedClaims = count
}

func (mr *MockRepository) FailCreateTimes(n int) {
	mr.Lock()
	defer mr.Unlock()
	mr.failCreateTimes = n
}

func (mr *MockRepository) FailDeadLetterMove() {
	mr.Lock()
	defer mr.Unlock()
	mr.failDeadLetterMove = true
}

func (mr *MockRepository) FailMarkCompleted() {
	mr.Lock()
	defer mr.Unlock()
	mr.failMarkCompleted = true
}

func (mr *MockRepository) ReturnErrors() {
	mr.Lock()
	defer mr.Unlock()
	mr.returnError = true
}
