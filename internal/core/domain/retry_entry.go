package domain

import (
	"encoding/json"
	"time"
)

// RetryQueueEntry is a durable record of a deferred send. Rows are created by
// enqueue, mutated only by the queue drain, and kept forever for audit.
type RetryQueueEntry struct {
	ID             string           `db:"id" json:"id"`
	RecipientPhone string           `db:"recipient_phone" json:"recipient_phone"`
	MessageType    MessageType      `db:"message_type" json:"message_type"`
	Payload        json.RawMessage  `db:"payload" json:"payload"`
	Context        string           `db:"context" json:"context"`
	Attempts       int              `db:"attempts" json:"attempts"`
	MaxAttempts    int              `db:"max_attempts" json:"max_attempts"`
	LastError      string           `db:"last_error" json:"last_error"`
	Status         RetryEntryStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	LastAttemptAt  *time.Time       `db:"last_attempt_at" json:"last_attempt_at"`
	ResolvedAt     *time.Time       `db:"resolved_at" json:"resolved_at"`
}

// RetryEntryStatus tracks the entry lifecycle. The only transitions are
// pending -> delivered and pending -> failed_permanent; both are terminal.
type RetryEntryStatus string

const (
	RetryEntryPending         RetryEntryStatus = "pending"
	RetryEntryDelivered       RetryEntryStatus = "delivered"
	RetryEntryFailedPermanent RetryEntryStatus = "failed_permanent"
)

const (
	// DefaultMaxAttempts bounds out-of-band retries for a queued send.
	DefaultMaxAttempts = 3

	// MaxContextLen and MaxErrorLen cap the diagnostic columns.
	MaxContextLen = 200
	MaxErrorLen   = 500
)
