// Package outbox defines the OutboxEntry data structure and the states it
// moves through on its way from Pending to a terminal status. It holds no
// storage logic; see internal/store for the Store contract and its
// implementations.
package outbox

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an OutboxEntry. Pending and Processing
// are live states; Completed and Failed are absorbing — no further
// transition ever leaves them.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is the durable queue row. AttemptBlockhash is the crux of the
// idempotent-retry design: it is pinned on first submission and carried
// across reschedules and zombie reclaims until either the blockhash
// expires or the entry reaches a terminal state.
type Entry struct {
	ID               string
	AggregateID      string
	Payload          json.RawMessage
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
	RetryCount       int
	NextRetryAt      *time.Time
	AttemptBlockhash *string
}

// Eligible reports whether the entry is claimable at the given instant:
// Pending and either never scheduled or past its retry time.
func (e Entry) Eligible(now time.Time) bool {
	if e.Status != StatusPending {
		return false
	}
	return e.NextRetryAt == nil || !e.NextRetryAt.After(now)
}

// New constructs a freshly-created entry in the state IntentWriter inserts:
// Pending, zero retries, no schedule, no pinned blockhash.
func New(id, aggregateID string, payload json.RawMessage, now time.Time) Entry {
	return Entry{
		ID:          id,
		AggregateID: aggregateID,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		RetryCount:  0,
	}
}
