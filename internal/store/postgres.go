package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-docshift/internal/document"
)

// PostgresStore implements DocStore on top of a documents table with
// integer revisions and per-view materialized row tables.
type PostgresStore struct {
	pool         *pgxpool.Pool
	views        *ViewRegistry
	queryTimeout time.Duration
}

// NewPostgresStore creates a DocStore backed by the given pool.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresStore(pool *pgxpool.Pool, views *ViewRegistry, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		views:        views,
		queryTimeout: queryTimeout,
	}
}

// withTimeout derives a child context with the configured query timeout.
// If queryTimeout is zero, the parent context is returned unchanged.
func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

func (s *PostgresStore) QueryView(ctx context.Context, q ViewQuery) (*ViewPage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, ok := s.views.Get(q.View); !ok {
		return nil, fmt.Errorf("query view %q: %w", q.View, ErrUnknownView)
	}

	query := fmt.Sprintf(`
		SELECT key, doc_id, value
		FROM %s
		WHERE (key, doc_id) >= ($1, $2)
		ORDER BY key ASC, doc_id ASC
		LIMIT $3
	`, ViewTable(q.View))

	rows, err := s.pool.Query(ctx, query, q.StartKey, q.StartDocID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query view %q: %w", q.View, err)
	}
	defer rows.Close()

	page := &ViewPage{}
	for rows.Next() {
		var r ViewRow
		if err := rows.Scan(&r.Key, &r.DocID, &r.Value); err != nil {
			return nil, fmt.Errorf("query view %q scan: %w", q.View, err)
		}
		page.Rows = append(page.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query view %q rows: %w", q.View, err)
	}
	return page, nil
}

func (s *PostgresStore) MultiGet(ctx context.Context, ids []string) ([]*document.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// LEFT JOIN against the requested ID list keeps one output row per
	// requested ID, in request order, with NULLs for missing documents.
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.rev, d.body, d.deleted, d.updated_at
		FROM unnest($1::text[]) WITH ORDINALITY AS req(id, ord)
		LEFT JOIN documents d ON d.id = req.id
		ORDER BY req.ord ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("multi get: %w", err)
	}
	defer rows.Close()

	docs := make([]*document.Document, 0, len(ids))
	for rows.Next() {
		var (
			id        *string
			rev       *int64
			body      []byte
			deleted   *bool
			updatedAt *time.Time
		)
		if err := rows.Scan(&id, &rev, &body, &deleted, &updatedAt); err != nil {
			return nil, fmt.Errorf("multi get scan: %w", err)
		}
		if id == nil {
			docs = append(docs, nil)
			continue
		}
		docs = append(docs, &document.Document{
			ID:        *id,
			Rev:       *rev,
			Body:      body,
			Deleted:   *deleted,
			UpdatedAt: *updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("multi get rows: %w", err)
	}
	if len(docs) != len(ids) {
		return nil, fmt.Errorf("multi get: requested %d documents, got %d", len(ids), len(docs))
	}
	return docs, nil
}

// Get returns a single document by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*document.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var d document.Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, rev, body, deleted, updated_at
		FROM documents
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Rev, &d.Body, &d.Deleted, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) BulkWrite(ctx context.Context, changes []document.Change) ([]document.WriteResult, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, ch := range changes {
		if ch.Rev == 0 {
			// Create: loses the race to a concurrent writer via DO NOTHING,
			// which surfaces as zero returned rows.
			batch.Queue(`
				INSERT INTO documents (id, rev, body, deleted)
				VALUES ($1, 1, $2, $3)
				ON CONFLICT (id) DO NOTHING
				RETURNING rev
			`, ch.ID, ch.Body, ch.Deleted)
		} else {
			batch.Queue(`
				UPDATE documents
				SET rev = rev + 1, body = $2, deleted = $3, updated_at = now()
				WHERE id = $1 AND rev = $4
				RETURNING rev
			`, ch.ID, ch.Body, ch.Deleted, ch.Rev)
		}
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	results := make([]document.WriteResult, len(changes))
	for i, ch := range changes {
		var rev int64
		err := br.QueryRow().Scan(&rev)
		switch {
		case err == nil:
			results[i] = document.WriteResult{ID: ch.ID, Rev: rev}
		case errors.Is(err, pgx.ErrNoRows):
			results[i] = document.WriteResult{ID: ch.ID, Err: ErrWriteConflict}
		default:
			return nil, fmt.Errorf("bulk write %q: %w", ch.ID, err)
		}
	}
	return results, nil
}
