package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbridge/outboxcore/internal/config"
	"github.com/ledgerbridge/outboxcore/internal/domain"
	"github.com/ledgerbridge/outboxcore/internal/migrate"
)

func entityFixture() domain.Entity {
	return domain.Entity{
		ContentHash:   "hash-1",
		PayloadFields: []byte(`{"k":"v"}`),
	}
}

// testPool connects to a real Postgres instance named by the
// OUTBOXCORE_TEST_DATABASE_URL env var, applies the migrations, and hands
// back a pool truncated before every test. Skips when the variable is
// unset so `go test ./...` stays hermetic in CI environments without a
// database, mirroring the corpus's DATABASE_URL-gated ACID tests.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("OUTBOXCORE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("OUTBOXCORE_TEST_DATABASE_URL not set; skipping postgres integration test")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, config.Config{DatabaseURL: dsn, MaxConnections: 5, AcquireTimeout: 3 * time.Second})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrate.Apply(ctx, pool, os.DirFS("../../../migrations")))

	_, err = pool.Exec(ctx, `TRUNCATE outbox_entries, domain_entities`)
	require.NoError(t, err)
	return pool
}

func TestStore_ClaimSkipsLockedRows(t *testing.T) {
	pool := testPool(t)
	writer := NewWriter(pool)
	s := New(pool)
	ctx := context.Background()

	_, err := writer.Write(ctx, entityFixture(), []byte(`{"amount":1}`))
	require.NoError(t, err)

	now := time.Now().UTC()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `SELECT id FROM outbox_entries WHERE status = 'pending' FOR UPDATE`)
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, 10, now)
	require.NoError(t, err)
	require.Empty(t, claimed, "a row locked by another transaction must be skipped, not waited on")
}

func TestStore_ClaimCompleteRoundTrip(t *testing.T) {
	pool := testPool(t)
	writer := NewWriter(pool)
	s := New(pool)
	ctx := context.Background()

	entryID, err := writer.Write(ctx, entityFixture(), []byte(`{"amount":1}`))
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, 10, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, entryID, claimed[0].ID)

	require.NoError(t, s.Complete(ctx, entryID, "sig-1"))
	require.NoError(t, s.Complete(ctx, entryID, "sig-2")) // idempotent

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts["completed"])
}

func TestStore_ReclaimZombiesPreservesRetryState(t *testing.T) {
	pool := testPool(t)
	writer := NewWriter(pool)
	s := New(pool)
	ctx := context.Background()

	entryID, err := writer.Write(ctx, entityFixture(), []byte(`{"amount":1}`))
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = s.Claim(ctx, 10, now)
	require.NoError(t, err)

	hash := "pinned-hash"
	_, err = pool.Exec(ctx, `UPDATE outbox_entries SET retry_count = 2, attempt_blockhash = $2, updated_at = $3 WHERE id = $1`,
		entryID, hash, now.Add(-10*time.Minute))
	require.NoError(t, err)

	n, err := s.ReclaimZombies(ctx, 5*time.Minute, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	failed, err := s.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, failed)

	var retryCount int
	var attemptBlockhash *string
	require.NoError(t, pool.QueryRow(ctx, `SELECT retry_count, attempt_blockhash FROM outbox_entries WHERE id = $1`, entryID).
		Scan(&retryCount, &attemptBlockhash))
	require.Equal(t, 2, retryCount)
	require.NotNil(t, attemptBlockhash)
	require.Equal(t, hash, *attemptBlockhash)
}
