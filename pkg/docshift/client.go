// Package docshift is a small HTTP client for the docshift migration API.
package docshift

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Migration describes a registered migration.
type Migration struct {
	Name           string `json:"name"`
	View           string `json:"view"`
	BatchSize      int    `json:"batch_size"`
	Limit          int    `json:"limit,omitempty"`
	RetryConflicts int    `json:"retry_conflicts"`
	Running        bool   `json:"running"`
}

// Run describes one execution of a migration.
type Run struct {
	ID           string     `json:"id"`
	Migration    string     `json:"migration"`
	Status       string     `json:"status"`
	RowsScanned  int64      `json:"rows_scanned"`
	RowsMigrated int64      `json:"rows_migrated"`
	RowsFailed   int64      `json:"rows_failed"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Run status values.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("docshift: %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("docshift: unexpected status %d", e.StatusCode)
}

// Client talks to a docshift server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a Client for the given base URL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListMigrations returns all registered migrations.
func (c *Client) ListMigrations(ctx context.Context) ([]Migration, error) {
	var out []Migration
	if err := c.do(ctx, http.MethodGet, "/v1/migrations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartRun starts a run of the named migration and returns it immediately;
// the run completes in the background.
func (c *Client) StartRun(ctx context.Context, name string) (*Run, error) {
	path := "/v1/migrations/" + url.PathEscape(name) + "/runs"
	var out Run
	if err := c.do(ctx, http.MethodPost, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun fetches a run by ID.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	var out Run
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(runID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns returns all runs of the named migration, newest first.
func (c *Client) ListRuns(ctx context.Context, name string) ([]Run, error) {
	path := "/v1/migrations/" + url.PathEscape(name) + "/runs"
	var out []Run
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WaitForRun polls GetRun until the run leaves the running state or ctx is
// cancelled.
func (c *Client) WaitForRun(ctx context.Context, runID string, pollInterval time.Duration) (*Run, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status != RunStatusRunning {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("docshift: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("docshift: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("docshift: decode response: %w", err)
		}
	}
	return nil
}

func parseError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	// The server emits RFC 7807 problem documents with a "detail" field;
	// plain handlers use {"error": ...}.
	var parsed struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Detail != "" {
			apiErr.Detail = parsed.Detail
		} else {
			apiErr.Detail = parsed.Error
		}
	}
	return apiErr
}
