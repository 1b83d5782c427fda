package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-docshift/internal/store"
)

// PostgresCheckpointStore implements CheckpointStore using the
// migration_checkpoints table. Cursors are stored in their encoded form.
type PostgresCheckpointStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCheckpointStore creates a CheckpointStore.
func NewPostgresCheckpointStore(pool *pgxpool.Pool) *PostgresCheckpointStore {
	return &PostgresCheckpointStore{pool: pool}
}

func (s *PostgresCheckpointStore) Load(ctx context.Context, migration string) (store.Cursor, bool, error) {
	var encoded string
	err := s.pool.QueryRow(ctx,
		`SELECT cursor FROM migration_checkpoints WHERE migration = $1`,
		migration,
	).Scan(&encoded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Cursor{}, false, nil
		}
		return store.Cursor{}, false, fmt.Errorf("load checkpoint %q: %w", migration, err)
	}

	cur, err := store.DecodeCursor(encoded)
	if err != nil {
		return store.Cursor{}, false, fmt.Errorf("load checkpoint %q: %w", migration, err)
	}
	return cur, true, nil
}

func (s *PostgresCheckpointStore) Save(ctx context.Context, migration string, cur store.Cursor) error {
	encoded, err := cur.Encode()
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", migration, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO migration_checkpoints (migration, cursor, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (migration)
		DO UPDATE SET cursor = $2, updated_at = now()
	`, migration, encoded)
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", migration, err)
	}
	return nil
}

func (s *PostgresCheckpointStore) Clear(ctx context.Context, migration string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM migration_checkpoints WHERE migration = $1`, migration)
	if err != nil {
		return fmt.Errorf("clear checkpoint %q: %w", migration, err)
	}
	return nil
}
