package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ryanbastic/go-docshift/internal/document"
	"github.com/ryanbastic/go-docshift/internal/store"
)

const (
	// DefaultBatchSize is the page and sub-batch size when Config.BatchSize
	// is left zero.
	DefaultBatchSize = 20

	// DefaultRetryConflicts is the conflict retry ceiling when
	// Config.RetryConflicts is left zero.
	DefaultRetryConflicts = 2

	// NoRetries disables conflict retrying entirely.
	NoRetries = -1
)

// FetchKeysFunc names the extra documents a row's transform needs. It runs
// once per row, in row order.
type FetchKeysFunc func(row store.ViewRow) ([]string, error)

// ChangesFunc derives document mutations for one row. docs holds the
// fetched documents positionally aligned with the keys FetchKeysFunc
// returned for the row; missing documents are nil. Returning no changes is
// a valid outcome.
type ChangesFunc func(row store.ViewRow, docs []*document.Document) ([]document.Change, error)

// FilterFunc decides whether a row enters the pipeline. An error excludes
// the row and reports it as failed without aborting the migration.
type FilterFunc func(row store.ViewRow) (bool, error)

// CheckpointFunc persists a resume position after a page is fully resolved.
type CheckpointFunc func(ctx context.Context, next store.Cursor) error

// Config describes one migration over a view.
type Config struct {
	Store store.DocStore
	View  string

	// Start is the view position to resume from; the zero Cursor starts at
	// the beginning.
	Start store.Cursor

	// BatchSize bounds both the view page size and the bulk-write sub-batch
	// size. Zero means DefaultBatchSize.
	BatchSize int

	// Limit caps the total number of rows entering the pipeline. Zero means
	// unlimited.
	Limit int

	// RetryConflicts is the number of additional attempts for rows whose
	// writes were rejected with a conflict. Zero means
	// DefaultRetryConflicts; NoRetries disables retrying.
	RetryConflicts int

	FetchKeys FetchKeysFunc // optional
	Changes   ChangesFunc   // required
	Filter    FilterFunc    // optional

	Progress   Progress       // optional; defaults to LogProgress
	Checkpoint CheckpointFunc // optional
	Logger     *slog.Logger   // optional
}

// Summary reports what a finished (or aborted) migration run did.
type Summary struct {
	Pages    int // view pages processed
	Rows     int // rows that entered the pipeline
	Migrated int // rows whose changes were all written
	Skipped  int // rows excluded by the filter
	Failed   int // filter errors plus permanently failed rows
}

// Migration drives one view scan through enrichment, change generation,
// bulk writes and conflict retries. Exactly one store operation is in
// flight at any time; a Migration must not be shared across goroutines.
type Migration struct {
	store          store.DocStore
	view           string
	start          store.Cursor
	batchSize      int
	limit          int
	retryConflicts int
	fetchKeys      FetchKeysFunc
	changes        ChangesFunc
	filter         FilterFunc
	progress       Progress
	checkpoint     CheckpointFunc
	logger         *slog.Logger
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Migration, error) {
	if cfg.Store == nil {
		return nil, errors.New("migrate: Store is required")
	}
	if cfg.View == "" {
		return nil, errors.New("migrate: View is required")
	}
	if cfg.Changes == nil {
		return nil, errors.New("migrate: Changes is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	retries := cfg.RetryConflicts
	if retries == 0 {
		retries = DefaultRetryConflicts
	} else if retries < 0 {
		retries = 0
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	progress := cfg.Progress
	if progress == nil {
		progress = &LogProgress{Logger: logger}
	}

	return &Migration{
		store:          cfg.Store,
		view:           cfg.View,
		start:          cfg.Start,
		batchSize:      batchSize,
		limit:          cfg.Limit,
		retryConflicts: retries,
		fetchKeys:      cfg.FetchKeys,
		changes:        cfg.Changes,
		filter:         cfg.Filter,
		progress:       progress,
		checkpoint:     cfg.Checkpoint,
		logger:         logger,
	}, nil
}

// Run scans the view page by page and drives every page's sub-batches
// through the full pipeline before fetching the next page. It returns the
// summary accumulated so far together with the first fatal error, if any.
// Per-row failures are reported through Progress and never abort the run.
func (m *Migration) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	sc := newScanner(m.store, m.view, m.batchSize, m.start)
	remaining := m.limit

	for {
		rows, err := sc.next(ctx)
		if err != nil {
			return sum, err
		}
		if len(rows) == 0 {
			break
		}

		if m.limit > 0 && len(rows) >= remaining {
			rows = rows[:remaining]
			sc.stop()
		}
		if m.limit > 0 {
			remaining -= len(rows)
		}

		sum.Pages++
		sum.Rows += len(rows)
		rows = m.filterPage(rows, sum)

		batchDone := 0
		for _, sub := range chunk(rows, m.batchSize) {
			if err := m.processSubBatch(ctx, sub, sum, &batchDone); err != nil {
				return sum, err
			}
		}

		if m.checkpoint != nil && !sc.finished() {
			if err := m.checkpoint(ctx, sc.position()); err != nil {
				return sum, fmt.Errorf("checkpoint: %w", err)
			}
		}
		if sc.finished() {
			break
		}
	}

	m.logger.Info("migration finished",
		"view", m.view,
		"pages", sum.Pages,
		"rows", sum.Rows,
		"migrated", sum.Migrated,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
	return sum, nil
}

// filterPage applies the optional row filter. A filter error excludes the
// row and reports it as failed; it is terminal for that row only.
func (m *Migration) filterPage(rows []store.ViewRow, sum *Summary) []store.ViewRow {
	if m.filter == nil {
		return rows
	}

	kept := make([]store.ViewRow, 0, len(rows))
	for _, row := range rows {
		ok, err := m.filter(row)
		if err != nil {
			sum.Failed++
			m.progress.RowFailed(row, fmt.Errorf("filter: %w", err))
			continue
		}
		if !ok {
			sum.Skipped++
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// rowState carries one row and its enriched documents across retry
// attempts. Changes are re-derived from scratch on every attempt; the
// enriched documents are fetched once and reused.
type rowState struct {
	row  store.ViewRow
	docs []*document.Document
}

func (m *Migration) processSubBatch(ctx context.Context, rows []store.ViewRow, sum *Summary, batchDone *int) error {
	pending, err := m.enrich(ctx, rows)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		flat, counts, err := m.deriveChanges(pending)
		if err != nil {
			return err
		}

		var results []document.WriteResult
		if len(flat) > 0 {
			results, err = m.store.BulkWrite(ctx, flat)
			if err != nil {
				return fmt.Errorf("bulk write: %w", err)
			}
			if len(results) != len(flat) {
				return fmt.Errorf("bulk write returned %d results for %d changes", len(results), len(flat))
			}
		}

		groups, err := regroup(results, counts)
		if err != nil {
			return err
		}

		var retry []rowState
		for i, st := range pending {
			outcome := resolveRow(groups[i])
			switch {
			case outcome == nil:
				sum.Migrated++
				*batchDone++
			case errors.Is(outcome, store.ErrWriteConflict):
				retry = append(retry, st)
			default:
				sum.Failed++
				m.progress.RowFailed(st.row, outcome)
			}
		}
		m.progress.BatchProgress(*batchDone, sum.Migrated)

		if len(retry) == 0 {
			return nil
		}
		if attempt >= m.retryConflicts {
			for _, st := range retry {
				sum.Failed++
				m.progress.RowFailed(st.row, store.ErrWriteConflict)
			}
			return nil
		}
		m.progress.ConflictRetry(len(retry), attempt+1)
		pending = retry
	}
}

// enrich asks FetchKeys for every row in order, fetches all requested
// documents in a single multi-get, and hands each row its own documents
// back, aligned with the keys it asked for. The multi-get is skipped
// entirely when no row requested anything.
func (m *Migration) enrich(ctx context.Context, rows []store.ViewRow) ([]rowState, error) {
	states := make([]rowState, len(rows))
	for i := range rows {
		states[i].row = rows[i]
	}
	if m.fetchKeys == nil {
		return states, nil
	}

	counts := make([]int, len(rows))
	var keys []string
	for i, row := range rows {
		rowKeys, err := m.fetchKeys(row)
		if err != nil {
			return nil, fmt.Errorf("fetch keys for row %q: %w", row.DocID, err)
		}
		counts[i] = len(rowKeys)
		keys = append(keys, rowKeys...)
	}
	if len(keys) == 0 {
		return states, nil
	}

	docs, err := m.store.MultiGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("multi get: %w", err)
	}
	if len(docs) != len(keys) {
		return nil, fmt.Errorf("multi get returned %d documents for %d keys", len(docs), len(keys))
	}

	groups, err := regroup(docs, counts)
	if err != nil {
		return nil, err
	}
	for i := range states {
		states[i].docs = groups[i]
	}
	return states, nil
}

// deriveChanges invokes the Changes callback sequentially across the
// sub-batch, flattening every row's changes into one submission list and
// recording per-row counts for regrouping the write results.
func (m *Migration) deriveChanges(pending []rowState) ([]document.Change, []int, error) {
	counts := make([]int, len(pending))
	var flat []document.Change
	for i, st := range pending {
		changes, err := m.changes(st.row, st.docs)
		if err != nil {
			return nil, nil, fmt.Errorf("changes for row %q: %w", st.row.DocID, err)
		}
		counts[i] = len(changes)
		flat = append(flat, changes...)
	}
	return flat, counts, nil
}

// resolveRow reduces a row's write results to a single outcome. A conflict
// anywhere in the group wins so the row is retried as a whole; a row with
// no changes resolves as success.
func resolveRow(results []document.WriteResult) error {
	var firstErr error
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if errors.Is(r.Err, store.ErrWriteConflict) {
			return store.ErrWriteConflict
		}
		if firstErr == nil {
			firstErr = r.Err
		}
	}
	return firstErr
}
