package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ryanbastic/go-docshift/internal/store"
)

func TestMigrationProgress_BatchProgressAddsDelta(t *testing.T) {
	p := NewMigrationProgress("test_delta")

	p.BatchProgress(2, 2)
	p.BatchProgress(5, 5)

	got := testutil.ToFloat64(rowsMigrated.WithLabelValues("test_delta"))
	if got != 5 {
		t.Errorf("rows_migrated_total: got %f, want 5", got)
	}
	if batch := testutil.ToFloat64(batchRows.WithLabelValues("test_delta")); batch != 5 {
		t.Errorf("batch_rows: got %f, want 5", batch)
	}
}

func TestMigrationProgress_RepeatedCumulativeReport(t *testing.T) {
	p := NewMigrationProgress("test_repeat")

	p.BatchProgress(3, 3)
	p.BatchProgress(3, 3)

	got := testutil.ToFloat64(rowsMigrated.WithLabelValues("test_repeat"))
	if got != 3 {
		t.Errorf("rows_migrated_total: got %f, want 3", got)
	}
}

func TestMigrationProgress_ConflictRetry(t *testing.T) {
	p := NewMigrationProgress("test_conflict")

	p.ConflictRetry(2, 1)
	p.ConflictRetry(1, 2)

	got := testutil.ToFloat64(conflictRetries.WithLabelValues("test_conflict"))
	if got != 3 {
		t.Errorf("conflict_retries_total: got %f, want 3", got)
	}
}

func TestMigrationProgress_RowFailed(t *testing.T) {
	p := NewMigrationProgress("test_failed")

	p.RowFailed(store.ViewRow{DocID: "a"}, errors.New("boom"))

	got := testutil.ToFloat64(rowsFailed.WithLabelValues("test_failed"))
	if got != 1 {
		t.Errorf("rows_failed_total: got %f, want 1", got)
	}
}
