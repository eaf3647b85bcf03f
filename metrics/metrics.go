package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts anonymous submissions by outcome code ("success" or an error code).
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "securevoice",
		Subsystem: "anonymous",
		Name:      "submissions_total",
		Help:      "Total number of anonymous report submissions, labeled by outcome.",
	}, []string{"outcome"})

	// SubmissionDurationSeconds is the time spent in the intake pipeline.
	SubmissionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "securevoice",
		Subsystem: "anonymous",
		Name:      "submission_duration_seconds",
		Help:      "Time to process an anonymous report submission.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	// EvidenceFilesTotal counts evidence files stored with accepted reports.
	EvidenceFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "securevoice",
		Subsystem: "anonymous",
		Name:      "evidence_files_total",
		Help:      "Total number of evidence files stored, labeled by file type.",
	}, []string{"file_type"})

	GeocodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "securevoice",
		Subsystem: "anonymous",
		Name:      "geocode_failures_total",
		Help:      "Total number of failed best-effort geocoding lookups.",
	})

	PublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "securevoice",
		Subsystem: "anonymous",
		Name:      "publish_errors_total",
		Help:      "Total number of report events that could not be published.",
	})

	// PurgedRowsTotal counts expired abuse-mitigation rows removed by housekeeping.
	PurgedRowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "securevoice",
		Subsystem: "anonymous",
		Name:      "purged_rows_total",
		Help:      "Total number of expired rate-limit and fingerprint rows purged.",
	})
)

// Register registers the service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			SubmissionDurationSeconds,
			EvidenceFilesTotal,
			GeocodeFailuresTotal,
			PublishErrorsTotal,
			PurgedRowsTotal,
		)
	})
}
