package migrate

import (
	"log/slog"

	"github.com/ryanbastic/go-docshift/internal/store"
)

// Progress receives engine progress reports. The engine reports from a
// single goroutine, so implementations need no locking of their own.
type Progress interface {
	// BatchProgress is invoked after every sub-batch attempt with the number
	// of rows resolved within the current page and the cumulative count of
	// successfully migrated rows.
	BatchProgress(batchDone, migrated int)

	// ConflictRetry is invoked before changes are re-derived for conflicted
	// rows. attempt is 1 for the first retry.
	ConflictRetry(rows, attempt int)

	// RowFailed is invoked exactly once per permanently failed row.
	RowFailed(row store.ViewRow, err error)
}

// LogProgress reports progress through a slog logger.
type LogProgress struct {
	Logger *slog.Logger
}

func (p *LogProgress) BatchProgress(batchDone, migrated int) {
	p.Logger.Info("migration progress", "batch_rows", batchDone, "migrated", migrated)
}

func (p *LogProgress) ConflictRetry(rows, attempt int) {
	p.Logger.Warn("retrying conflicted rows", "rows", rows, "attempt", attempt)
}

func (p *LogProgress) RowFailed(row store.ViewRow, err error) {
	p.Logger.Error("row failed", "doc_id", row.DocID, "key", row.Key, "error", err)
}

// MultiProgress fans every report out to all receivers in order.
type MultiProgress []Progress

func (m MultiProgress) BatchProgress(batchDone, migrated int) {
	for _, p := range m {
		p.BatchProgress(batchDone, migrated)
	}
}

func (m MultiProgress) ConflictRetry(rows, attempt int) {
	for _, p := range m {
		p.ConflictRetry(rows, attempt)
	}
}

func (m MultiProgress) RowFailed(row store.ViewRow, err error) {
	for _, p := range m {
		p.RowFailed(row, err)
	}
}
