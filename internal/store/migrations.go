package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Bootstrap creates the documents table and the run-tracking tables used by
// the runner. All statements are idempotent.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			rev        BIGINT NOT NULL,
			body       JSONB NOT NULL,
			deleted    BOOLEAN NOT NULL DEFAULT false,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS migration_runs (
			id            UUID PRIMARY KEY,
			migration     TEXT NOT NULL,
			status        TEXT NOT NULL,
			rows_scanned  BIGINT NOT NULL DEFAULT 0,
			rows_migrated BIGINT NOT NULL DEFAULT 0,
			rows_failed   BIGINT NOT NULL DEFAULT 0,
			error         TEXT NOT NULL DEFAULT '',
			started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at   TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_migration_runs_migration
			ON migration_runs (migration, started_at DESC);

		CREATE TABLE IF NOT EXISTS migration_checkpoints (
			migration  TEXT PRIMARY KEY,
			cursor     TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return nil
}
