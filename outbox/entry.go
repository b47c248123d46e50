package outbox

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

type Status string

func (s Status) String() string {
	return string(s)
}

// Entry is one undelivered or in-flight notification. Rows only move
// PENDING -> PROCESSING -> {COMPLETED | PENDING | dead letter}, and the
// claim fields are set only while a row is PROCESSING.
type Entry struct {
	Id            uuid.UUID
	TenantId      string
	EventType     string
	Destination   string
	Payload       []byte
	Status        Status
	Attempts      int
	NextAttemptAt sql.NullTime
	ClaimedAt     sql.NullTime
	ClaimedBy     sql.NullString
	LastError     sql.NullString
	DeliveredAt   sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Claimed reports whether this in-memory copy of the entry holds a claim.
func (e *Entry) Claimed() bool {
	return e.ClaimedAt.Valid && e.ClaimedBy.Valid
}

// DeadLetterEntry is the terminal copy of an Entry that exhausted its
// delivery attempts. It is written once and never mutated.
type DeadLetterEntry struct {
	Id          uuid.UUID
	TenantId    string
	EventType   string
	Destination string
	Payload     []byte
	Attempts    int
	LastError   string
	FailedAt    time.Time
}
