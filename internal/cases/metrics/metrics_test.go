package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"kycflow/internal/cases/models"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncCaseSubmitted()
	m.ObserveTransition(models.StatusPending, models.StatusApproved)
	m.ObserveTransition(models.StatusPending, models.StatusPending)
	m.IncValidationPath("rules")
	m.IncValidationPath("rules")
	m.ObserveAgentInvocation(models.AgentRiskAnalysis, "success", 20*time.Millisecond)
	m.IncConcurrencyConflict()
	m.IncNotification("approval", "sent")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CasesSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CaseTransitions.WithLabelValues("pending", "approved")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CaseTransitions.WithLabelValues("pending", "pending")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ValidationPath.WithLabelValues("rules")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentInvocations.WithLabelValues("risk_analysis", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConcurrencyConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("approval", "sent")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncCaseSubmitted()
		m.ObserveTransition(models.StatusPending, models.StatusApproved)
		m.ObserveStage(models.AgentRiskAnalysis, models.StepSuccess, time.Second)
		m.IncValidationPath("agent")
		m.ObserveAgentInvocation(models.AgentRiskAnalysis, "timeout", time.Second)
		m.IncConcurrencyConflict()
		m.IncNotification("approval", "failed")
	})
}
