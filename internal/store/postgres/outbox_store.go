package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerbridge/outboxcore/internal/outbox"
	"github.com/ledgerbridge/outboxcore/internal/store"
)

// Store implements store.Store against Postgres. Claim uses
// "FOR UPDATE SKIP LOCKED" so concurrent dispatcher processes receive
// disjoint batches without blocking on each other; every other mutating
// method runs inside its own short transaction so a crash between claim
// and a terminal call leaves the entry in Processing for ReclaimZombies
// to recover.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store against pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

const selectClaimableSQL = `
SELECT id, aggregate_id, payload, retry_count, attempt_blockhash, created_at
FROM outbox_entries
WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
ORDER BY next_retry_at ASC NULLS FIRST, created_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`

const markProcessingSQL = `
UPDATE outbox_entries
SET status = 'processing', updated_at = $2
WHERE id = ANY($1)
`

// Claim implements store.Store.
func (s *Store) Claim(ctx context.Context, limit int, now time.Time) ([]outbox.Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "postgres: begin claim tx"), store.ErrStorage)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, selectClaimableSQL, now, limit)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "postgres: select claimable"), store.ErrStorage)
	}

	var entries []outbox.Entry
	var ids []string
	for rows.Next() {
		var e outbox.Entry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.Payload, &e.RetryCount, &e.AttemptBlockhash, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, errors.Mark(errors.Wrap(err, "postgres: scan claimable row"), store.ErrStorage)
		}
		e.Status = outbox.StatusProcessing
		e.UpdatedAt = now
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "postgres: iterate claimable rows"), store.ErrStorage)
	}

	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, markProcessingSQL, ids, now); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "postgres: mark processing"), store.ErrStorage)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "postgres: commit claim tx"), store.ErrStorage)
	}
	return entries, nil
}

const completeOutboxSQL = `
UPDATE outbox_entries
SET status = 'completed', attempt_blockhash = NULL, updated_at = $2
WHERE id = $1 AND status NOT IN ('completed', 'failed')
`

const completeEntitySQL = `
UPDATE domain_entities
SET ledger_status = 'confirmed', ledger_signature = $2, updated_at = $3
WHERE id = (SELECT aggregate_id FROM outbox_entries WHERE id = $1)
`

// Complete implements store.Store. Idempotent: the WHERE clause makes a
// repeat call on an already-completed entry a zero-row no-op.
func (s *Store) Complete(ctx context.Context, entryID string, signature string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		ct, err := tx.Exec(ctx, completeOutboxSQL, entryID, now)
		if err != nil {
			return errors.Wrapf(err, "postgres: complete entry %s", entryID)
		}
		if ct.RowsAffected() == 0 {
			return nil // already terminal or missing: idempotent no-op
		}
		if _, err := tx.Exec(ctx, completeEntitySQL, entryID, signature, now); err != nil {
			return errors.Wrapf(err, "postgres: record signature for entry %s", entryID)
		}
		return nil
	})
}

const rescheduleOutboxSQL = `
UPDATE outbox_entries
SET status = 'pending',
    retry_count = retry_count + 1,
    next_retry_at = $2,
    attempt_blockhash = $3,
    updated_at = $4
WHERE id = $1 AND status NOT IN ('completed', 'failed')
`

// Reschedule implements store.Store.
func (s *Store) Reschedule(ctx context.Context, entryID string, now time.Time, delay time.Duration, pinnedBlockhash *string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		next := now.Add(delay)
		_, err := tx.Exec(ctx, rescheduleOutboxSQL, entryID, next, pinnedBlockhash, now)
		if err != nil {
			return errors.Wrapf(err, "postgres: reschedule entry %s", entryID)
		}
		return nil
	})
}

const failOutboxSQL = `
UPDATE outbox_entries
SET status = 'failed', attempt_blockhash = NULL, updated_at = $2
WHERE id = $1 AND status NOT IN ('completed', 'failed')
`

const failEntitySQL = `
UPDATE domain_entities
SET ledger_status = 'failed', ledger_last_error = $2, updated_at = $3
WHERE id = (SELECT aggregate_id FROM outbox_entries WHERE id = $1)
`

// Fail implements store.Store. Terminal; clears the pinned blockhash since
// no further retry will ever reuse it.
func (s *Store) Fail(ctx context.Context, entryID string, reason string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		ct, err := tx.Exec(ctx, failOutboxSQL, entryID, now)
		if err != nil {
			return errors.Wrapf(err, "postgres: fail entry %s", entryID)
		}
		if ct.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, failEntitySQL, entryID, reason, now); err != nil {
			return errors.Wrapf(err, "postgres: record failure for entry %s", entryID)
		}
		return nil
	})
}

const reclaimZombiesSQL = `
UPDATE outbox_entries
SET status = 'pending', updated_at = $2
WHERE status = 'processing' AND updated_at < $1
`

// ReclaimZombies implements store.Store. Does not touch retry_count or
// attempt_blockhash — the sticky blockhash must survive a crash so a
// replayed submission can land idempotently.
func (s *Store) ReclaimZombies(ctx context.Context, ageThreshold time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-ageThreshold)
	var n int
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, reclaimZombiesSQL, cutoff, now)
		if err != nil {
			return errors.Wrap(err, "postgres: reclaim zombies")
		}
		n = int(ct.RowsAffected())
		return nil
	})
	return n, err
}

const countByStatusSQL = `SELECT status, count(*) FROM outbox_entries GROUP BY status`

// CountByStatus implements store.Store.
func (s *Store) CountByStatus(ctx context.Context) (map[outbox.Status]int, error) {
	rows, err := s.pool.Query(ctx, countByStatusSQL)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "postgres: count by status"), store.ErrStorage)
	}
	defer rows.Close()

	counts := make(map[outbox.Status]int)
	for rows.Next() {
		var status outbox.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "postgres: scan status count"), store.ErrStorage)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

const listFailedSQL = `
SELECT id, aggregate_id, payload, status, created_at, updated_at, retry_count, next_retry_at, attempt_blockhash
FROM outbox_entries
WHERE status = 'failed'
ORDER BY updated_at DESC
LIMIT $1
`

// ListFailed implements store.Store.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]outbox.Entry, error) {
	rows, err := s.pool.Query(ctx, listFailedSQL, limit)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "postgres: list failed"), store.ErrStorage)
	}
	defer rows.Close()

	var entries []outbox.Entry
	for rows.Next() {
		var e outbox.Entry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.Payload, &e.Status, &e.CreatedAt, &e.UpdatedAt, &e.RetryCount, &e.NextRetryAt, &e.AttemptBlockhash); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "postgres: scan failed row"), store.ErrStorage)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back otherwise, and marks any returned error as store.ErrStorage so
// callers can classify it with errors.Is.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "postgres: begin tx"), store.ErrStorage)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return errors.Mark(err, store.ErrStorage)
	}
	return errors.Mark(errors.Wrap(tx.Commit(ctx), "postgres: commit tx"), store.ErrStorage)
}
