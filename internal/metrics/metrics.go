// Package metrics collects per-run counters for the price sync job. The job
// is not a server, so metrics are exported through a node-exporter textfile
// rather than a scrape endpoint.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns a private registry. All methods are safe on a nil receiver so
// packages can record unconditionally.
type Recorder struct {
	registry *prometheus.Registry

	RecordsParsed   *prometheus.CounterVec
	RecordsCreated  *prometheus.CounterVec
	RecordsDeleted  *prometheus.CounterVec
	RecordsSkipped  *prometheus.CounterVec
	RecordsArchived *prometheus.CounterVec
	RetryAttempts   *prometheus.CounterVec
	BackupFiles     *prometheus.CounterVec
	CatalogCodes    prometheus.Gauge
	RunDuration     *prometheus.HistogramVec
	RunSuccess      *prometheus.GaugeVec
}

// New registers every metric under namespace.
func New(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		RecordsParsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Price file lines parsed",
		}, []string{"load_type"}),
		RecordsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Supplier-info records created",
		}, []string{"load_type"}),
		RecordsDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_deleted_total",
			Help:      "Supplier-info records deleted after backup",
		}, []string{"load_type"}),
		RecordsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Price file lines skipped",
		}, []string{"load_type", "reason"}),
		RecordsArchived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_archived_total",
			Help:      "Rows written to backup workbooks",
		}, []string{"load_type"}),
		RetryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries after rate-limit faults",
		}, []string{"operation"}),
		BackupFiles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_files_total",
			Help:      "Backup workbooks uploaded",
		}, []string{"load_type"}),
		CatalogCodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_codes",
			Help:      "Distinct product codes in the catalog index",
		}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a price file run",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"load_type"}),
		RunSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last run of the load type succeeded",
		}, []string{"load_type"}),
	}
}

// Parsed counts parsed lines.
func (r *Recorder) Parsed(loadType string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.RecordsParsed.WithLabelValues(loadType).Add(float64(n))
}

// Created counts created records.
func (r *Recorder) Created(loadType string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.RecordsCreated.WithLabelValues(loadType).Add(float64(n))
}

// Deleted counts deleted records.
func (r *Recorder) Deleted(loadType string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.RecordsDeleted.WithLabelValues(loadType).Add(float64(n))
}

// Skipped counts a skipped line.
func (r *Recorder) Skipped(loadType, reason string) {
	if r == nil {
		return
	}
	r.RecordsSkipped.WithLabelValues(loadType, reason).Inc()
}

// Archived counts backup rows and files.
func (r *Recorder) Archived(loadType string, rows, files int) {
	if r == nil {
		return
	}
	r.RecordsArchived.WithLabelValues(loadType).Add(float64(rows))
	r.BackupFiles.WithLabelValues(loadType).Add(float64(files))
}

// Retry counts one retry of operation.
func (r *Recorder) Retry(operation string) {
	if r == nil {
		return
	}
	r.RetryAttempts.WithLabelValues(operation).Inc()
}

// Catalog records the index size.
func (r *Recorder) Catalog(codes int) {
	if r == nil {
		return
	}
	r.CatalogCodes.Set(float64(codes))
}

// Run records a finished run.
func (r *Recorder) Run(loadType string, d time.Duration, success bool) {
	if r == nil {
		return
	}
	r.RunDuration.WithLabelValues(loadType).Observe(d.Seconds())
	v := 0.0
	if success {
		v = 1
	}
	r.RunSuccess.WithLabelValues(loadType).Set(v)
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
