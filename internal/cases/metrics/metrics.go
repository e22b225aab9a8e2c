package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kycflow/internal/cases/models"
)

// Metrics provides observability for case processing: submissions, state
// transitions, stage latency, validation path, agent calls and conflicts.
// Every method is safe on a nil receiver.
type Metrics struct {
	CasesSubmitted       prometheus.Counter
	CaseTransitions      *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	ValidationPath       *prometheus.CounterVec
	AgentInvocations     *prometheus.CounterVec
	AgentDuration        *prometheus.HistogramVec
	ConcurrencyConflicts prometheus.Counter
	Notifications        *prometheus.CounterVec
}

var stageBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// New registers the case metrics on reg (the default registry when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		CasesSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "kyc_cases_submitted_total",
			Help: "Total number of KYC cases submitted",
		}),
		CaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_case_transitions_total",
			Help: "Case status transitions",
		}, []string{"from", "to"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_stage_duration_seconds",
			Help:    "Duration of pipeline stages including the automatic retry",
			Buckets: stageBuckets,
		}, []string{"stage", "status"}),
		ValidationPath: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_validation_path_total",
			Help: "Document validations by the path that produced the verdict",
		}, []string{"path"}),
		AgentInvocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_agent_invocations_total",
			Help: "Agent gateway invocations by outcome",
		}, []string{"agent", "outcome"}),
		AgentDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_agent_invocation_duration_seconds",
			Help:    "Agent gateway invocation latency",
			Buckets: stageBuckets,
		}, []string{"agent"}),
		ConcurrencyConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "kyc_concurrency_conflicts_total",
			Help: "Requests refused because a pipeline run held the case lock",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_notifications_total",
			Help: "Customer notifications by template and delivery outcome",
		}, []string{"template", "outcome"}),
	}
}

func (m *Metrics) IncCaseSubmitted() {
	if m == nil {
		return
	}
	m.CasesSubmitted.Inc()
}

func (m *Metrics) ObserveTransition(from, to models.Status) {
	if m == nil || from == to {
		return
	}
	m.CaseTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) ObserveStage(stage models.AgentType, status models.StepStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(string(stage), string(status)).Observe(d.Seconds())
}

func (m *Metrics) IncValidationPath(path string) {
	if m == nil {
		return
	}
	m.ValidationPath.WithLabelValues(path).Inc()
}

func (m *Metrics) ObserveAgentInvocation(agent models.AgentType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AgentInvocations.WithLabelValues(string(agent), outcome).Inc()
	m.AgentDuration.WithLabelValues(string(agent)).Observe(d.Seconds())
}

func (m *Metrics) IncConcurrencyConflict() {
	if m == nil {
		return
	}
	m.ConcurrencyConflicts.Inc()
}

func (m *Metrics) IncNotification(template, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(template, outcome).Inc()
}
