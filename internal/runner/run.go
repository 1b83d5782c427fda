package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-docshift/internal/store"
)

// RunStatus is the lifecycle state of one migration run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run records one execution of a registered migration.
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Migration    string     `json:"migration"`
	Status       RunStatus  `json:"status"`
	RowsScanned  int64      `json:"rows_scanned"`
	RowsMigrated int64      `json:"rows_migrated"`
	RowsFailed   int64      `json:"rows_failed"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// RunStore persists run history.
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, migration string) ([]*Run, error)
}

// CheckpointStore persists the resume cursor for an interrupted migration.
type CheckpointStore interface {
	Load(ctx context.Context, migration string) (store.Cursor, bool, error)
	Save(ctx context.Context, migration string, cur store.Cursor) error
	Clear(ctx context.Context, migration string) error
}
