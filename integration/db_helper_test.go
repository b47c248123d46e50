//go:build integration
// +build integration

package integration

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"peopleops/webhook-outbox-relay/outbox"
)

func purgeOutboxTables() {
	for _, table := range []string{cfg.DBOutboxTable, cfg.DBDeadLetterTable} {
		_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s;", table))
		if err != nil {
			panic(fmt.Sprintf("an error occurred cleaning the %s table for tests: %s", table, err))
		}
	}
}

func insertOutboxEntries(entries []*outbox.Entry) {
	tx, err := db.Begin()
	if err != nil {
		panic(fmt.Sprintf("error creating a DB transaction: %s", err))
	}

	for _, e := range entries {
		if e.Id == uuid.Nil {
			e.Id = uuid.New()
		}
		if e.Status == "" {
			e.Status = outbox.StatusPending
		}
		if !e.NextAttemptAt.Valid && e.Status == outbox.StatusPending {
			e.NextAttemptAt = dueNow()
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = time.Now()
		}

		q := fmt.Sprintf(
			"INSERT INTO %s (id, tenant_id, event_type, destination, payload, status, attempts, next_attempt_at, claimed_at, claimed_by, last_error, delivered_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);",
			cfg.DBOutboxTable,
		)
		if cfg.DBDriver.Postgres() {
			q = postgresPlaceholders(q)
		}

		_, err = tx.Exec(q, e.Id, e.TenantId, e.EventType, e.Destination, e.Payload, e.Status, e.Attempts, e.NextAttemptAt, e.ClaimedAt, e.ClaimedBy, e.LastError, e.DeliveredAt, e.UpdatedAt)
		if err != nil {
			panic(fmt.Sprintf("failed to insert outbox entry: %s", err))
		}
	}

	if err = tx.Commit(); err != nil {
		panic(fmt.Sprintf("error committing DB transaction: %s", err))
	}
}

func getOutboxEntry(id uuid.UUID) *outbox.Entry {
	q := fmt.Sprintf(
		"SELECT id, tenant_id, event_type, destination, payload, status, attempts, next_attempt_at, claimed_at, claimed_by, last_error, delivered_at FROM %s WHERE id = ?",
		cfg.DBOutboxTable,
	)
	if cfg.DBDriver.Postgres() {
		q = postgresPlaceholders(q)
	}

	e := &outbox.Entry{}
	row := db.QueryRow(q, id)
	err := row.Scan(&e.Id, &e.TenantId, &e.EventType, &e.Destination, &e.Payload, &e.Status, &e.Attempts, &e.NextAttemptAt, &e.ClaimedAt, &e.ClaimedBy, &e.LastError, &e.DeliveredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		panic(fmt.Sprintf("failed to load outbox entry %s: %s", id, err))
	}

	return e
}

func outboxEntryExists(id uuid.UUID) bool {
	return getOutboxEntry(id) != nil
}

func deadLetterEntryExists(id uuid.UUID) bool {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", cfg.DBDeadLetterTable)
	if cfg.DBDriver.Postgres() {
		q = postgresPlaceholders(q)
	}

	var count int
	if err := db.QueryRow(q, id).Scan(&count); err != nil {
		panic(fmt.Sprintf("failed to count dead letter entries for %s: %s", id, err))
	}

	return count > 0
}

func makeEntryDue(id uuid.UUID) {
	q := fmt.Sprintf("UPDATE %s SET next_attempt_at = ? WHERE id = ?", cfg.DBOutboxTable)
	if cfg.DBDriver.Postgres() {
		q = postgresPlaceholders(q)
	}

	if _, err := db.Exec(q, dueNow(), id); err != nil {
		panic(fmt.Sprintf("failed to make outbox entry %s due: %s", id, err))
	}
}

func postgresPlaceholders(q string) string {
	for i := 1; strings.Contains(q, "?"); i++ {
		q = strings.Replace(q, "?", fmt.Sprintf("$%d", i), 1)
	}

	return q
}
