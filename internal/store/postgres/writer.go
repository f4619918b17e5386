package postgres

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerbridge/outboxcore/internal/domain"
	"github.com/ledgerbridge/outboxcore/internal/store"
)

const insertDomainEntitySQL = `
INSERT INTO domain_entities (id, content_hash, payload_fields, ledger_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
`

const insertOutboxEntrySQL = `
INSERT INTO outbox_entries (id, aggregate_id, payload, status, created_at, updated_at, retry_count)
VALUES ($1, $2, $3, 'pending', now(), now(), 0)
`

// Writer implements store.IntentWriter: one Postgres transaction inserts
// both the domain entity and its outbox entry, or neither commits.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter constructs a Writer against pool.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

var _ store.IntentWriter = (*Writer)(nil)

// Write implements store.IntentWriter.
func (w *Writer) Write(ctx context.Context, entity domain.Entity, payload json.RawMessage) (string, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "postgres: begin write tx"), store.ErrStorage)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if _, err := tx.Exec(ctx, insertDomainEntitySQL,
		entity.ID, entity.ContentHash, entity.PayloadFields, domain.LedgerStatusPending,
	); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "postgres: insert domain entity %s", entity.ID), store.ErrStorage)
	}

	entryID := uuid.NewString()
	if _, err := tx.Exec(ctx, insertOutboxEntrySQL, entryID, entity.ID, payload); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "postgres: insert outbox entry %s", entryID), store.ErrStorage)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", errors.Mark(errors.Wrap(err, "postgres: commit write tx"), store.ErrStorage)
	}
	return entryID, nil
}
