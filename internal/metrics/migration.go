package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ryanbastic/go-docshift/internal/store"
)

var (
	rowsMigrated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docshift",
			Name:      "rows_migrated_total",
			Help:      "Total number of rows successfully migrated.",
		},
		[]string{"migration"},
	)

	rowsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docshift",
			Name:      "rows_failed_total",
			Help:      "Total number of rows that permanently failed.",
		},
		[]string{"migration"},
	)

	conflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docshift",
			Name:      "conflict_retries_total",
			Help:      "Total number of conflicted rows sent back for retry.",
		},
		[]string{"migration"},
	)

	batchRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docshift",
			Name:      "batch_rows",
			Help:      "Rows resolved within the page batch currently being processed.",
		},
		[]string{"migration"},
	)
)

// MigrationProgress exports engine progress reports as Prometheus metrics.
// It implements migrate.Progress. The engine reports cumulative success
// counts, so the counter is advanced by the delta since the last report.
type MigrationProgress struct {
	name         string
	lastMigrated int
}

// NewMigrationProgress creates a progress reporter for one named migration.
func NewMigrationProgress(name string) *MigrationProgress {
	return &MigrationProgress{name: name}
}

func (p *MigrationProgress) BatchProgress(batchDone, migrated int) {
	if d := migrated - p.lastMigrated; d > 0 {
		rowsMigrated.WithLabelValues(p.name).Add(float64(d))
		p.lastMigrated = migrated
	}
	batchRows.WithLabelValues(p.name).Set(float64(batchDone))
}

func (p *MigrationProgress) ConflictRetry(rows, attempt int) {
	conflictRetries.WithLabelValues(p.name).Add(float64(rows))
}

func (p *MigrationProgress) RowFailed(row store.ViewRow, err error) {
	rowsFailed.WithLabelValues(p.name).Inc()
}
