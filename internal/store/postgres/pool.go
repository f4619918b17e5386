// Package postgres implements store.Store and store.IntentWriter against
// Postgres via jackc/pgx/v5 (grounded on LerianStudio/midaz's outbox
// adapter and mycelian-ai/mycelian-memory's outbox worker, both of which
// reach Postgres this way for the same claim/complete/reschedule shape).
package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerbridge/outboxcore/internal/config"
)

// Connect builds a connection pool of cfg.MaxConnections connections
// (which Validate keeps at or above the worker count) and pings it,
// bounding that ping by cfg.AcquireTimeout. The timeout applies only to
// the initial ping; later connection acquisitions are bounded only by the
// caller's context.
func Connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: parse dsn")
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: create pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}
	return pool, nil
}
