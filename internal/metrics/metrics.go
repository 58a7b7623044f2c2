// Package metrics holds the Prometheus collectors for report executions,
// scheduling and delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// executionsTotal counts finished executions.
	// Labels: status (succeeded, failed), kind (empty on success, else the error kind)
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reports",
		Subsystem: "execution",
		Name:      "total",
		Help:      "Report executions by terminal status and error kind",
	}, []string{"status", "kind"})

	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reports",
		Subsystem: "execution",
		Name:      "duration_seconds",
		Help:      "Report execution wall time in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"export"})

	previewsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reports",
		Subsystem: "execution",
		Name:      "previews_total",
		Help:      "Report previews served",
	})

	// scheduleRuns counts scheduler dispatch outcomes.
	// Labels: outcome (started, conflict, saturated, failed)
	scheduleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reports",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Scheduled runs by dispatch outcome",
	}, []string{"outcome"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reports",
		Subsystem: "delivery",
		Name:      "total",
		Help:      "Report email deliveries by status",
	}, []string{"status"})
)

func ObserveExecution(status, kind string, export bool, took time.Duration) {
	executionsTotal.WithLabelValues(status, kind).Inc()
	label := "none"
	if export {
		label = "file"
	}
	executionDuration.WithLabelValues(label).Observe(took.Seconds())
}

func ObservePreview() {
	previewsTotal.Inc()
}

func ObserveScheduleRun(outcome string) {
	scheduleRuns.WithLabelValues(outcome).Inc()
}

func ObserveDelivery(status string) {
	deliveriesTotal.WithLabelValues(status).Inc()
}
