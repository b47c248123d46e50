package outbox

import (
	"context"
	"database/sql"
	"time"

	"peopleops/webhook-outbox-relay/config"
	"peopleops/webhook-outbox-relay/log"
	s "peopleops/webhook-outbox-relay/outbox/data/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEntryNotUpdated signals that a single-row conditional update matched
	// nothing, which means another dispatcher got there first.
	ErrEntryNotUpdated = errors.New("outbox: entry was not updated, it is owned by another process")

	columns = []string{"id", "tenant_id", "event_type", "destination", "payload", "status", "attempts", "next_attempt_at", "claimed_at", "claimed_by", "last_error", "delivered_at", "created_at", "updated_at"}
)

type queryProvider interface {
	InsertEntrySql() string
	ReleaseExpiredClaimsSql() string
	FetchDueSql(batchSize int) string
	ClaimEntrySql() string
	MarkCompletedSql() string
	RescheduleSql() string
	MarkFailedSql() string
	InsertDeadLetterSql() string
	DeleteEntrySql() string
	DeleteTerminalSql() string
	PendingCountSql() string
	TotalCountSql() string
}

type Repository struct {
	db            *sql.DB
	cfg           *config.Config
	queryProvider queryProvider
	clock         Clock
}

func NewRepository(db *sql.DB, cfg *config.Config) Repository {
	return NewRepositoryWithQueryProvider(db, cfg, newQueryProvider(cfg.DBDriver, cfg.DBOutboxTable, cfg.DBDeadLetterTable, columns), SystemClock())
}

func NewRepositoryWithQueryProvider(db *sql.DB, cfg *config.Config, qp queryProvider, cl Clock) Repository {
	return Repository{
		db:            db,
		cfg:           cfg,
		queryProvider: qp,
		clock:         cl,
	}
}

// CreatePending inserts a new PENDING entry through the caller's open
// transaction, so the notification intent commits and rolls back with the
// business mutation that produced it.
func (r Repository) CreatePending(ctx context.Context, tx *sql.Tx, e *Entry) error {
	now := r.clock.Now()
	if e.Id == uuid.Nil {
		e.Id = uuid.New()
	}

	e.Status = StatusPending
	e.Attempts = 0
	if !e.NextAttemptAt.Valid {
		e.NextAttemptAt = sql.NullTime{Time: now, Valid: true}
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	q := r.queryProvider.InsertEntrySql()
	_, err := tx.ExecContext(ctx, q, e.Id, e.TenantId, e.EventType, e.Destination, e.Payload, e.Status.String(), e.Attempts, e.NextAttemptAt.Time, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return errors.Errorf("outbox: error inserting entry in repository: %s", err)
	}

	return nil
}

// ReleaseExpiredClaims resets PROCESSING rows whose claim is older than the
// TTL back to PENDING so a crashed worker's records become claimable again.
func (r Repository) ReleaseExpiredClaims(ctx context.Context, ttl time.Duration) (int64, error) {
	now := r.clock.Now()
	cutoff := now.Add(-ttl)

	q := r.queryProvider.ReleaseExpiredClaimsSql()
	res, err := r.db.ExecContext(ctx, q, StatusPending.String(), now, StatusProcessing.String(), cutoff)
	if err != nil {
		return 0, errors.Errorf("outbox: error releasing expired claims in repository: %s", err)
	}

	count, _ := res.RowsAffected()
	if count > 0 {
		log.Logger.WithFields(logrus.Fields{"count": count, "ttl": ttl.String()}).Warn("released expired claims from abandoned dispatch attempts")
	}

	return count, nil
}

// FetchDue reads up to the configured batch size of PENDING entries whose
// next attempt time has passed, ordered by due time. The order is a
// scheduling hint only; parallel workers may complete out of order.
func (r Repository) FetchDue(ctx context.Context) ([]*Entry, error) {
	q := r.queryProvider.FetchDueSql(r.cfg.BatchSize)

	rows, err := r.db.QueryContext(ctx, q, StatusPending.String(), r.clock.Now())
	if err != nil {
		return nil, errors.Errorf("outbox: error fetching due entries in repository: %s", err)
	}
	defer rows.Close()

	var due []*Entry
	for rows.Next() {
		e := &Entry{}
		var status string
		err = rows.Scan(&e.Id, &e.TenantId, &e.EventType, &e.Destination, &e.Payload, &status, &e.Attempts, &e.NextAttemptAt, &e.ClaimedAt, &e.ClaimedBy, &e.LastError, &e.DeliveredAt, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, errors.Errorf("outbox: error scanning entry into memory in repository: %s", err)
		}
		e.Status = Status(status)
		due = append(due, e)
	}

	return due, rows.Err()
}

// Claim attempts to take exclusive ownership of an entry for workerId with a
// single conditional update. Exactly one concurrent claimer can win; losing
// the race is a normal skip, reported as (false, nil).
func (r Repository) Claim(ctx context.Context, e *Entry, workerId string) (bool, error) {
	now := r.clock.Now()

	q := r.queryProvider.ClaimEntrySql()
	res, err := r.db.ExecContext(ctx, q, StatusProcessing.String(), now, workerId, now, e.Id, e.TenantId, e.Status.String())
	if err != nil {
		return false, errors.Errorf("outbox: error claiming entry %s in repository: %s", e.Id, err)
	}

	count, _ := res.RowsAffected()
	if count != 1 {
		return false, nil
	}

	e.Status = StatusProcessing
	e.ClaimedAt = sql.NullTime{Time: now, Valid: true}
	e.ClaimedBy = sql.NullString{String: workerId, Valid: true}
	e.UpdatedAt = now

	return true, nil
}

// MarkCompleted finalises a successfully delivered entry, clearing the claim
// and schedule fields. The update is scoped to the claiming worker; losing
// the row to a TTL expiry in the meantime surfaces as ErrEntryNotUpdated.
func (r Repository) MarkCompleted(ctx context.Context, e *Entry) error {
	now := r.clock.Now()

	q := r.queryProvider.MarkCompletedSql()
	res, err := r.db.ExecContext(ctx, q, StatusCompleted.String(), now, now, e.Id, e.TenantId, StatusProcessing.String(), e.ClaimedBy.String)
	if err != nil {
		return errors.Errorf("outbox: error completing entry %s in repository: %s", e.Id, err)
	}

	count, _ := res.RowsAffected()
	if count != 1 {
		return ErrEntryNotUpdated
	}

	e.Status = StatusCompleted
	e.DeliveredAt = sql.NullTime{Time: now, Valid: true}
	e.NextAttemptAt = sql.NullTime{}
	e.ClaimedAt = sql.NullTime{}
	e.ClaimedBy = sql.NullString{}
	e.UpdatedAt = now

	return nil
}

// Reschedule releases a failed entry back to PENDING with its incremented
// attempt count and computed next attempt time.
func (r Repository) Reschedule(ctx context.Context, e *Entry, nextAttemptAt time.Time, lastError string) error {
	now := r.clock.Now()

	q := r.queryProvider.RescheduleSql()
	res, err := r.db.ExecContext(ctx, q, StatusPending.String(), e.Attempts, nextAttemptAt, lastError, now, e.Id, e.TenantId, e.ClaimedBy.String)
	if err != nil {
		return errors.Errorf("outbox: error rescheduling entry %s in repository: %s", e.Id, err)
	}

	count, _ := res.RowsAffected()
	if count != 1 {
		return ErrEntryNotUpdated
	}

	e.Status = StatusPending
	e.NextAttemptAt = sql.NullTime{Time: nextAttemptAt, Valid: true}
	e.LastError = sql.NullString{String: lastError, Valid: true}
	e.ClaimedAt = sql.NullTime{}
	e.ClaimedBy = sql.NullString{}
	e.UpdatedAt = now

	return nil
}

// MarkFailed parks an entry as FAILED in place. It is the fallback when the
// dead letter move itself fails, so the record survives for the next sweep
// instead of being lost.
func (r Repository) MarkFailed(ctx context.Context, e *Entry, lastError string) error {
	now := r.clock.Now()

	q := r.queryProvider.MarkFailedSql()
	_, err := r.db.ExecContext(ctx, q, StatusFailed.String(), e.Attempts, lastError, now, e.Id, e.TenantId)
	if err != nil {
		return errors.Errorf("outbox: error marking entry %s as failed in repository: %s", e.Id, err)
	}

	e.Status = StatusFailed
	e.LastError = sql.NullString{String: lastError, Valid: true}
	e.ClaimedAt = sql.NullTime{}
	e.ClaimedBy = sql.NullString{}
	e.UpdatedAt = now

	return nil
}

// MoveToDeadLetter copies an exhausted entry into the dead letter table and
// removes it from the outbox in one transaction.
func (r Repository) MoveToDeadLetter(ctx context.Context, e *Entry, lastError string) error {
	now := r.clock.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("outbox: error starting dead letter transaction for entry %s: %s", e.Id, err)
	}

	_, err = tx.ExecContext(ctx, r.queryProvider.InsertDeadLetterSql(), e.Id, e.TenantId, e.EventType, e.Destination, e.Payload, e.Attempts, lastError, now)
	if err != nil {
		r.rollback(tx)
		return errors.Errorf("outbox: error inserting dead letter row for entry %s: %s", e.Id, err)
	}

	_, err = tx.ExecContext(ctx, r.queryProvider.DeleteEntrySql(), e.Id, e.TenantId)
	if err != nil {
		r.rollback(tx)
		return errors.Errorf("outbox: error deleting entry %s during dead letter move: %s", e.Id, err)
	}

	if err = tx.Commit(); err != nil {
		return errors.Errorf("outbox: error committing dead letter move for entry %s: %s", e.Id, err)
	}

	return nil
}

// DeleteTerminal purges COMPLETED and FAILED entries last touched before
// olderThan, returning the number of rows removed.
func (r Repository) DeleteTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	q := r.queryProvider.DeleteTerminalSql()
	res, err := r.db.ExecContext(ctx, q, StatusCompleted.String(), StatusFailed.String(), olderThan)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r Repository) GetPendingCount(ctx context.Context) (uint, error) {
	res := r.db.QueryRowContext(ctx, r.queryProvider.PendingCountSql(), StatusPending.String(), StatusProcessing.String())

	var count uint
	if err := res.Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

func (r Repository) GetTotalCount(ctx context.Context) (uint, error) {
	res := r.db.QueryRowContext(ctx, r.queryProvider.TotalCountSql())

	var count uint
	if err := res.Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

func (r Repository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		log.Logger.Errorf("error rolling back the DB transaction: %s", err)
	}
}

func newQueryProvider(d config.DbDriver, table, deadLetterTable string, columns []string) queryProvider {
	switch true {
	case d.Postgres():
		return &s.PostgresQueryProvider{
			Table:           table,
			DeadLetterTable: deadLetterTable,
			Columns:         columns,
		}
	case d.MySQL():
		return &s.MysqlQueryProvider{
			Table:           table,
			DeadLetterTable: deadLetterTable,
			Columns:         columns,
		}
	}

	return nil
}
