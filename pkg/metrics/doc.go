/*
Package metrics exposes shiftkeeper's Prometheus metrics and health endpoints.

All metrics are registered on the default registry at init and served by
Handler. The reconciler records tick and pass durations with Timer, counts
ticks, aborted ticks, row writes per pass and skipped occurrences. Collector
refreshes the ledger gauges (rows per status, active staffing sessions) on a
fixed interval.

# Metrics

	shiftkeeper_reconciliation_duration_seconds          histogram
	shiftkeeper_reconciliation_pass_duration_seconds     histogram {pass}
	shiftkeeper_reconciliation_cycles_total              counter
	shiftkeeper_reconciliation_errors_total              counter
	shiftkeeper_reconciliation_last_success_timestamp_seconds gauge
	shiftkeeper_attendance_writes_total                  counter {pass, outcome}
	shiftkeeper_occurrences_skipped_total                counter {reason}
	shiftkeeper_attendances_total                        gauge {status}
	shiftkeeper_active_staffing_sessions                 gauge
	shiftkeeper_api_requests_total                       counter {method, status}
	shiftkeeper_api_request_duration_seconds             histogram {route}

# Health

Components report themselves with RegisterComponent and UpdateComponent.
/health is unhealthy if any component is. /ready additionally requires the
storage and reconciler components to be registered and healthy. /live always
answers 200 while the process runs.

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)
*/
package metrics
