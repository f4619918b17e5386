// Package store defines the storage contracts the dispatcher and write path
// depend on: IntentWriter for the atomic write path, and Store for the
// durable outbox queue (claim/complete/reschedule/fail/reclaim). Concrete
// implementations live in subpackages (postgres, memstore).
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ledgerbridge/outboxcore/internal/domain"
	"github.com/ledgerbridge/outboxcore/internal/outbox"
)

// Error kinds the core distinguishes. Callers classify failures with
// errors.Is against these sentinels rather than string matching.
var (
	// ErrStorage wraps any database connectivity or constraint failure.
	ErrStorage = errors.New("outboxcore: storage error")
	// ErrNotFound is returned by memstore when an operation targets a
	// missing entry; the Postgres store treats a missing entry as a no-op.
	ErrNotFound = errors.New("outboxcore: entry not found")
	// ErrRetryBudgetExhausted is raised by the dispatcher, not the store,
	// when retry_count has reached the configured maximum.
	ErrRetryBudgetExhausted = errors.New("outboxcore: retry budget exhausted")
)

// IntentWriter atomically persists a domain entity and its delivery intent.
// Implementations must insert both rows in a single transaction: either
// both are committed or neither is.
type IntentWriter interface {
	Write(ctx context.Context, entity domain.Entity, payload json.RawMessage) (entryID string, err error)
}

// Store is the durable outbox queue. Claim never blocks on a row another
// worker holds. Complete, Reschedule and Fail are no-ops on an entry that
// is already Completed or Failed (so a repeated Complete is idempotent);
// they do not check that the entry is currently Processing.
type Store interface {
	// Claim selects up to limit eligible entries, ordered by
	// (next_retry_at ASC NULLS FIRST, created_at ASC), and atomically
	// transitions them Pending -> Processing. Rows locked by a concurrent
	// claim are skipped, not waited on.
	Claim(ctx context.Context, limit int, now time.Time) ([]outbox.Entry, error)

	// Complete transitions Processing -> Completed, records the ledger
	// signature on the domain entity, and clears AttemptBlockhash.
	// Re-applying to an already-Completed entry is a no-op.
	Complete(ctx context.Context, entryID string, signature string) error

	// Reschedule transitions Processing -> Pending, increments
	// RetryCount, sets NextRetryAt = now+delay, and pins AttemptBlockhash
	// to whatever the caller classified (nil clears it).
	Reschedule(ctx context.Context, entryID string, now time.Time, delay time.Duration, pinnedBlockhash *string) error

	// Fail is terminal: Processing -> Failed, records reason on the
	// domain entity, clears AttemptBlockhash.
	Fail(ctx context.Context, entryID string, reason string) error

	// ReclaimZombies returns every entry stuck in Processing longer than
	// ageThreshold back to Pending, preserving RetryCount and
	// AttemptBlockhash. It never touches Completed or Failed entries and
	// does not consult the retry budget (see DESIGN.md Open Question
	// decisions).
	ReclaimZombies(ctx context.Context, ageThreshold time.Duration, now time.Time) (reclaimed int, err error)

	// CountByStatus is an admin/introspection helper, grounded on the
	// corpus's VerifyIntegrity-style queries.
	CountByStatus(ctx context.Context) (map[outbox.Status]int, error)

	// ListFailed returns up to limit entries in the terminal Failed
	// state, most recently updated first.
	ListFailed(ctx context.Context, limit int) ([]outbox.Entry, error)
}
