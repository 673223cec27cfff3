package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ChecksTotal counts completed check executions by trigger and outcome.
	ChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Subsystem: "pipeline",
		Name:      "checks_total",
		Help:      "Total number of check executions, labeled by trigger and result.",
	}, []string{"trigger", "result"})

	// CheckDurationSeconds is end-to-end time per check execution.
	CheckDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "monitoring",
		Subsystem: "pipeline",
		Name:      "check_duration_seconds",
		Help:      "End-to-end time to execute one monitoring check.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	})

	// ResultsCapturedTotal counts newly stored results by platform.
	ResultsCapturedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Subsystem: "pipeline",
		Name:      "results_captured_total",
		Help:      "Total number of new content items captured, labeled by platform.",
	}, []string{"platform"})

	// FetchErrorsTotal counts failed source fetches by platform.
	FetchErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Subsystem: "pipeline",
		Name:      "fetch_errors_total",
		Help:      "Total number of failed platform fetches, labeled by platform.",
	}, []string{"platform"})

	// AnalysesTotal counts AI analyses by provider and outcome.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Subsystem: "pipeline",
		Name:      "ai_analyses_total",
		Help:      "Total number of AI analyses, labeled by provider and result.",
	}, []string{"provider", "result"})

	// AlertsGeneratedTotal counts results that crossed the alert threshold.
	AlertsGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "monitoring",
		Subsystem: "pipeline",
		Name:      "alerts_generated_total",
		Help:      "Total number of results flagged as alerts.",
	})

	// MediaDownloadedBytes counts evidence bytes written to disk.
	MediaDownloadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "monitoring",
		Subsystem: "pipeline",
		Name:      "media_downloaded_bytes_total",
		Help:      "Total bytes of media evidence downloaded.",
	})

	// QueueConnected is 1 when the check-job consumer considers itself connected.
	QueueConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "monitoring",
		Subsystem: "pipeline",
		Name:      "queue_connected",
		Help:      "Whether the check-job queue consumer is currently connected (best-effort).",
	})

	// DueTasksGauge is the number of due tasks seen on the last scheduler tick.
	DueTasksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "monitoring",
		Subsystem: "pipeline",
		Name:      "due_tasks",
		Help:      "Number of tasks due for a check on the last scheduler poll.",
	})
)

// Register registers pipeline metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ChecksTotal,
			CheckDurationSeconds,
			ResultsCapturedTotal,
			FetchErrorsTotal,
			AnalysesTotal,
			AlertsGeneratedTotal,
			MediaDownloadedBytes,
			QueueConnected,
			DueTasksGauge,
		)
	})
}
