package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-docshift/internal/metrics"
	"github.com/ryanbastic/go-docshift/internal/migrate"
	"github.com/ryanbastic/go-docshift/internal/store"
)

// ErrUnknownMigration is returned when starting an unregistered migration.
var ErrUnknownMigration = errors.New("unknown migration")

// ErrAlreadyRunning is returned when a migration already has a run in flight.
var ErrAlreadyRunning = errors.New("migration already running")

// Runner executes registered migrations, at most one run per migration at
// a time. It records run history and persists a page cursor per migration
// so an interrupted run resumes from its last fully resolved page.
type Runner struct {
	registry    *Registry
	docs        store.DocStore
	runs        RunStore
	checkpoints CheckpointStore
	logger      *slog.Logger

	// baseCtx bounds background run goroutines; the ctx passed to Start
	// only covers the bookkeeping done before the run goroutine launches.
	baseCtx context.Context
	wg      sync.WaitGroup

	mu     sync.Mutex
	active map[string]uuid.UUID
}

// NewRunner creates a Runner.
func NewRunner(
	baseCtx context.Context,
	registry *Registry,
	docs store.DocStore,
	runs RunStore,
	checkpoints CheckpointStore,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		registry:    registry,
		docs:        docs,
		runs:        runs,
		checkpoints: checkpoints,
		logger:      logger,
		baseCtx:     baseCtx,
		active:      make(map[string]uuid.UUID),
	}
}

// Running reports the in-flight run ID for a migration, if any.
func (r *Runner) Running(name string) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[name]
	return id, ok
}

// Start launches a run of the named migration in the background and
// returns its run record immediately.
func (r *Runner) Start(ctx context.Context, name string) (*Run, error) {
	def, ok := r.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMigration, name)
	}

	start, resumed, err := r.checkpoints.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.New(),
		Migration: name,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	if _, busy := r.active[name]; busy {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	r.active[name] = run.ID
	r.mu.Unlock()

	if err := r.runs.CreateRun(ctx, run); err != nil {
		r.release(name)
		return nil, err
	}

	if resumed {
		r.logger.Info("resuming migration from checkpoint",
			"migration", name, "run_id", run.ID, "key", start.Key, "doc_id", start.DocID)
	}

	r.wg.Add(1)
	go r.execute(run, def, start)

	return run, nil
}

// Wait blocks until all in-flight runs have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) release(name string) {
	r.mu.Lock()
	delete(r.active, name)
	r.mu.Unlock()
}

func (r *Runner) execute(run *Run, def *Definition, start store.Cursor) {
	defer r.wg.Done()
	defer r.release(def.Name)

	ctx := r.baseCtx
	logger := r.logger.With("migration", def.Name, "run_id", run.ID)

	mig, err := migrate.New(migrate.Config{
		Store:          r.docs,
		View:           def.View,
		Start:          start,
		BatchSize:      def.BatchSize,
		Limit:          def.Limit,
		RetryConflicts: def.RetryConflicts,
		FetchKeys:      def.FetchKeys,
		Changes:        def.Changes,
		Filter:         def.Filter,
		Logger:         logger,
		Progress: migrate.MultiProgress{
			metrics.NewMigrationProgress(def.Name),
			&migrate.LogProgress{Logger: logger},
		},
		Checkpoint: func(ctx context.Context, next store.Cursor) error {
			return r.checkpoints.Save(ctx, def.Name, next)
		},
	})
	if err != nil {
		r.finish(run, nil, err, logger)
		return
	}

	summary, err := mig.Run(ctx)
	r.finish(run, summary, err, logger)
}

func (r *Runner) finish(run *Run, summary *migrate.Summary, runErr error, logger *slog.Logger) {
	// Shutdown cancels baseCtx to abort runs; the final bookkeeping still
	// has to land.
	ctx := context.WithoutCancel(r.baseCtx)

	now := time.Now().UTC()
	run.FinishedAt = &now
	if summary != nil {
		run.RowsScanned = int64(summary.Rows)
		run.RowsMigrated = int64(summary.Migrated)
		run.RowsFailed = int64(summary.Failed)
	}

	if runErr != nil {
		run.Status = RunStatusFailed
		run.Error = runErr.Error()
		logger.Error("migration run failed", "error", runErr)
	} else {
		run.Status = RunStatusSucceeded
		if err := r.checkpoints.Clear(ctx, run.Migration); err != nil {
			logger.Error("failed to clear checkpoint", "error", err)
		}
	}

	if err := r.runs.FinishRun(ctx, run); err != nil {
		logger.Error("failed to record run result", "error", err)
	}
}
