// Package migrate applies the versioned SQL files under migrations/ in
// lexical order, tracking what has already run in a schema_migrations
// table. Grounded on the corpus's habit of keeping outbox schema as plain
// .sql files (LerianStudio/midaz, mycelian-ai/mycelian-memory) rather than
// a generated-code migration framework.
package migrate

import (
	"context"
	"io/fs"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ensureTrackingTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

// Apply runs every *.sql file in dir (in lexical order) against pool that
// has not already been recorded in schema_migrations.
func Apply(ctx context.Context, pool *pgxpool.Pool, dir fs.FS) error {
	if _, err := pool.Exec(ctx, ensureTrackingTableSQL); err != nil {
		return errors.Wrap(err, "migrate: ensure tracking table")
	}

	entries, err := fs.ReadDir(dir, ".")
	if err != nil {
		return errors.Wrap(err, "migrate: read migrations dir")
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() || !isSQLFile(e.Name()) {
			continue
		}
		versions = append(versions, e.Name())
	}
	sort.Strings(versions)

	for _, version := range versions {
		applied, err := alreadyApplied(ctx, pool, version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		contents, err := fs.ReadFile(dir, version)
		if err != nil {
			return errors.Wrapf(err, "migrate: read %s", version)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return errors.Wrapf(err, "migrate: begin %s", version)
		}
		if _, err := tx.Exec(ctx, string(contents)); err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return errors.Wrapf(err, "migrate: apply %s", version)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return errors.Wrapf(err, "migrate: record %s", version)
		}
		if err := tx.Commit(ctx); err != nil {
			return errors.Wrapf(err, "migrate: commit %s", version)
		}
	}
	return nil
}

func alreadyApplied(ctx context.Context, pool *pgxpool.Pool, version string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "migrate: check %s", version)
	}
	return exists, nil
}

func isSQLFile(name string) bool {
	return len(name) > 4 && name[len(name)-4:] == ".sql"
}
