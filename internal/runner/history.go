package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunNotFound is returned when a run lookup finds no matching row.
var ErrRunNotFound = errors.New("run not found")

// PostgresRunStore implements RunStore backed by the migration_runs table.
type PostgresRunStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresRunStore creates a RunStore using the given connection pool.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresRunStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresRunStore {
	return &PostgresRunStore{pool: pool, queryTimeout: queryTimeout}
}

func (s *PostgresRunStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

func (s *PostgresRunStore) CreateRun(ctx context.Context, run *Run) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO migration_runs (id, migration, status, started_at)
		VALUES ($1, $2, $3, $4)
	`, run.ID, run.Migration, string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) FinishRun(ctx context.Context, run *Run) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE migration_runs
		SET status = $2, rows_scanned = $3, rows_migrated = $4,
		    rows_failed = $5, error = $6, finished_at = $7
		WHERE id = $1
	`, run.ID, string(run.Status), run.RowsScanned, run.RowsMigrated,
		run.RowsFailed, run.Error, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *PostgresRunStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	run, err := scanRun(s.pool.QueryRow(ctx, `
		SELECT id, migration, status, rows_scanned, rows_migrated,
		       rows_failed, error, started_at, finished_at
		FROM migration_runs
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *PostgresRunStore) ListRuns(ctx context.Context, migration string) ([]*Run, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, migration, status, rows_scanned, rows_migrated,
		       rows_failed, error, started_at, finished_at
		FROM migration_runs
		WHERE migration = $1
		ORDER BY started_at DESC
	`, migration)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	var status string
	err := row.Scan(&r.ID, &r.Migration, &status, &r.RowsScanned, &r.RowsMigrated,
		&r.RowsFailed, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.Status = RunStatus(status)
	return &r, nil
}
