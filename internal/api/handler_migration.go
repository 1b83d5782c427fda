package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/ryanbastic/go-docshift/internal/runner"
)

// --- Huma Input/Output types ---

type MigrationResponse struct {
	Name           string `json:"name" doc:"Migration name"`
	View           string `json:"view" doc:"View the migration scans"`
	BatchSize      int    `json:"batch_size" doc:"Rows fetched and written per batch"`
	Limit          int    `json:"limit,omitempty" doc:"Total row budget, 0 means unbounded"`
	RetryConflicts int    `json:"retry_conflicts" doc:"Conflict retry ceiling"`
	Running        bool   `json:"running" doc:"Whether a run is currently in flight"`
}

type ListMigrationsInput struct{}

type ListMigrationsOutput struct {
	Body []MigrationResponse
}

type StartRunInput struct {
	Name string `path:"name" doc:"Migration name" minLength:"1"`
}

type RunResponse struct {
	ID           uuid.UUID  `json:"id" doc:"Run UUID"`
	Migration    string     `json:"migration" doc:"Migration name"`
	Status       string     `json:"status" doc:"Run status" example:"running"`
	RowsScanned  int64      `json:"rows_scanned" doc:"Rows read from the view"`
	RowsMigrated int64      `json:"rows_migrated" doc:"Rows successfully written"`
	RowsFailed   int64      `json:"rows_failed" doc:"Rows that permanently failed"`
	Error        string     `json:"error,omitempty" doc:"Failure message, if any"`
	StartedAt    time.Time  `json:"started_at" doc:"Run start timestamp"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" doc:"Run finish timestamp"`
}

type StartRunOutput struct {
	Body RunResponse
}

type GetRunInput struct {
	RunID string `path:"run_id" doc:"Run UUID" format:"uuid"`
}

type GetRunOutput struct {
	Body RunResponse
}

type ListRunsInput struct {
	Name string `path:"name" doc:"Migration name" minLength:"1"`
}

type ListRunsOutput struct {
	Body []RunResponse
}

// --- Handler ---

type MigrationHandler struct {
	runner   *runner.Runner
	registry *runner.Registry
	runs     runner.RunStore
	logger   *slog.Logger
}

func NewMigrationHandler(r *runner.Runner, registry *runner.Registry, runs runner.RunStore, logger *slog.Logger) *MigrationHandler {
	return &MigrationHandler{runner: r, registry: registry, runs: runs, logger: logger}
}

func registerMigrationRoutes(api huma.API, h *MigrationHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-migrations",
		Method:      http.MethodGet,
		Path:        "/v1/migrations",
		Summary:     "List registered migrations",
		Tags:        []string{"migrations"},
	}, h.ListMigrations)

	huma.Register(api, huma.Operation{
		OperationID:   "start-run",
		Method:        http.MethodPost,
		Path:          "/v1/migrations/{name}/runs",
		Summary:       "Start a migration run",
		Tags:          []string{"migrations"},
		DefaultStatus: http.StatusAccepted,
	}, h.StartRun)

	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/v1/migrations/{name}/runs",
		Summary:     "List runs of a migration",
		Tags:        []string{"migrations"},
	}, h.ListRuns)

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/v1/runs/{run_id}",
		Summary:     "Get a run by ID",
		Tags:        []string{"migrations"},
	}, h.GetRun)
}

func (h *MigrationHandler) ListMigrations(ctx context.Context, input *ListMigrationsInput) (*ListMigrationsOutput, error) {
	defs := h.registry.List()
	resp := make([]MigrationResponse, len(defs))
	for i, def := range defs {
		_, running := h.runner.Running(def.Name)
		resp[i] = MigrationResponse{
			Name:           def.Name,
			View:           def.View,
			BatchSize:      def.BatchSize,
			Limit:          def.Limit,
			RetryConflicts: def.RetryConflicts,
			Running:        running,
		}
	}
	return &ListMigrationsOutput{Body: resp}, nil
}

func (h *MigrationHandler) StartRun(ctx context.Context, input *StartRunInput) (*StartRunOutput, error) {
	run, err := h.runner.Start(ctx, input.Name)
	if err != nil {
		switch {
		case errors.Is(err, runner.ErrUnknownMigration):
			return nil, huma.Error404NotFound("migration not found")
		case errors.Is(err, runner.ErrAlreadyRunning):
			return nil, huma.Error409Conflict("migration already running")
		default:
			h.logger.Error("failed to start run", "migration", input.Name, "error", err)
			return nil, huma.Error500InternalServerError("failed to start run")
		}
	}

	h.logger.Info("run started", "migration", input.Name, "run_id", run.ID)

	return &StartRunOutput{Body: runToResponse(run)}, nil
}

func (h *MigrationHandler) GetRun(ctx context.Context, input *GetRunInput) (*GetRunOutput, error) {
	id, err := uuid.Parse(input.RunID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid run_id")
	}

	run, err := h.runs.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, runner.ErrRunNotFound) {
			return nil, huma.Error404NotFound("run not found")
		}
		h.logger.Error("failed to get run", "run_id", id, "error", err)
		return nil, huma.Error500InternalServerError("failed to get run")
	}

	return &GetRunOutput{Body: runToResponse(run)}, nil
}

func (h *MigrationHandler) ListRuns(ctx context.Context, input *ListRunsInput) (*ListRunsOutput, error) {
	if _, ok := h.registry.Get(input.Name); !ok {
		return nil, huma.Error404NotFound("migration not found")
	}

	runs, err := h.runs.ListRuns(ctx, input.Name)
	if err != nil {
		h.logger.Error("failed to list runs", "migration", input.Name, "error", err)
		return nil, huma.Error500InternalServerError("failed to list runs")
	}

	resp := make([]RunResponse, len(runs))
	for i, run := range runs {
		resp[i] = runToResponse(run)
	}
	return &ListRunsOutput{Body: resp}, nil
}

func runToResponse(run *runner.Run) RunResponse {
	return RunResponse{
		ID:           run.ID,
		Migration:    run.Migration,
		Status:       string(run.Status),
		RowsScanned:  run.RowsScanned,
		RowsMigrated: run.RowsMigrated,
		RowsFailed:   run.RowsFailed,
		Error:        run.Error,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
	}
}
