package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shiftkeeper_reconciliation_duration_seconds",
			Help:    "Duration of a full reconciliation tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationPassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiftkeeper_reconciliation_pass_duration_seconds",
			Help:    "Duration of a single reconciliation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pass"},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shiftkeeper_reconciliation_cycles_total",
			Help: "Total number of reconciliation ticks run",
		},
	)

	ReconciliationErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shiftkeeper_reconciliation_errors_total",
			Help: "Total number of reconciliation ticks aborted by an error",
		},
	)

	LastTickTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shiftkeeper_reconciliation_last_success_timestamp_seconds",
			Help: "Unix time of the last reconciliation tick that completed without error",
		},
	)

	// Ledger metrics
	AttendanceWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftkeeper_attendance_writes_total",
			Help: "Attendance rows created or updated by pass and outcome",
		},
		[]string{"pass", "outcome"},
	)

	OccurrencesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftkeeper_occurrences_skipped_total",
			Help: "Occurrences skipped because of inconsistent roster data",
		},
		[]string{"reason"},
	)

	AttendancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shiftkeeper_attendances_total",
			Help: "Attendance rows in the ledger by status",
		},
		[]string{"status"},
	)

	ActiveStaffingSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shiftkeeper_active_staffing_sessions",
			Help: "Staffing sessions currently tapped in",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftkeeper_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiftkeeper_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationPassDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationErrorsTotal)
	prometheus.MustRegister(LastTickTimestamp)
	prometheus.MustRegister(AttendanceWritesTotal)
	prometheus.MustRegister(OccurrencesSkippedTotal)
	prometheus.MustRegister(AttendancesTotal)
	prometheus.MustRegister(ActiveStaffingSessions)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
