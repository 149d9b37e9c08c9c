package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serviceMetrics struct {
	documentsSigned     prometheus.Counter
	duplicateSignatures prometheus.Counter
	memberTransitions   *prometheus.CounterVec
	checkinTransitions  *prometheus.CounterVec
	auditEntries        prometheus.Counter
	attendanceRecompute prometheus.Counter
	attendanceDrift     prometheus.Counter
}

// newServiceMetrics builds the collectors; a nil registerer leaves them
// unregistered.
func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	f := promauto.With(reg)
	return &serviceMetrics{
		documentsSigned: f.NewCounter(prometheus.CounterOpts{
			Name: "ranchportal_documents_signed_total",
			Help: "number of documents signed",
		}),
		duplicateSignatures: f.NewCounter(prometheus.CounterOpts{
			Name: "ranchportal_duplicate_signatures_total",
			Help: "number of refused attempts to re-sign a document",
		}),
		memberTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ranchportal_member_transitions_total",
			Help: "member status transitions by action and outcome",
		}, []string{"action", "outcome"}),
		checkinTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ranchportal_checkin_transitions_total",
			Help: "check-in transitions by action and outcome",
		}, []string{"action", "outcome"}),
		auditEntries: f.NewCounter(prometheus.CounterOpts{
			Name: "ranchportal_audit_entries_total",
			Help: "number of audit log entries committed",
		}),
		attendanceRecompute: f.NewCounter(prometheus.CounterOpts{
			Name: "ranchportal_attendance_recomputed_total",
			Help: "number of member attendance recomputations",
		}),
		attendanceDrift: f.NewCounter(prometheus.CounterOpts{
			Name: "ranchportal_attendance_drift_total",
			Help: "number of recomputations that corrected cached counters",
		}),
	}
}
