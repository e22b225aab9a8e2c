package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "kycflow/pkg/platform/audit"
)

// PromMetrics is the Prometheus implementation of Metrics.
type PromMetrics struct {
	Recorded        *prometheus.CounterVec
	PersistFailures prometheus.Counter
}

func NewMetrics() *PromMetrics {
	return &PromMetrics{
		Recorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_audit_entries_total",
			Help: "Total number of audit entries appended, by action type",
		}, []string{"action"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_audit_persist_failures_total",
			Help: "Total number of audit entries that failed to persist",
		}),
	}
}

func (m *PromMetrics) IncRecorded(action audit.ActionType) {
	if m == nil {
		return
	}
	m.Recorded.WithLabelValues(string(action)).Inc()
}

func (m *PromMetrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}
