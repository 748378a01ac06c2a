// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_records_submitted_total",
		Help: "Attendance records confirmed and stored.",
	})

	SubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_submissions_rejected_total",
		Help: "Draft submissions refused before review, by reason.",
	}, []string{"reason"})

	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_admin_login_attempts_total",
		Help: "Admin passcode checks, by result.",
	}, []string{"result"})

	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_store_persist_failures_total",
		Help: "Writes to the key-value backend that failed and left the value in memory only.",
	}, []string{"key"})

	Exports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_exports_total",
		Help: "Spreadsheet exports served.",
	})

	SnapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_snapshots_written_total",
		Help: "Export workbooks regenerated by the snapshot worker.",
	})

	ActiveSessions = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "attendance_active_sessions",
		Help: "Browser sessions currently held in memory.",
	}, func() float64 { return float64(sessionCount()) })
)

var sessionCount = func() int { return 0 }

// TrackSessions makes ActiveSessions report the value of count.
func TrackSessions(count func() int) { sessionCount = count }

// PersistFailed is a store.WithPersistErrorHook callback.
func PersistFailed(key string, _ error) {
	PersistFailures.WithLabelValues(key).Inc()
}
