package models

import (
	"encoding/json"
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// ProcessingStep is one dispatched stage instance. It is immutable once its
// status leaves pending.
type ProcessingStep struct {
	ID           id.StepID       `json:"step_id"`
	CaseID       id.CaseID       `json:"case_id"`
	AgentType    AgentType       `json:"agent_type"`
	AgentID      string          `json:"agent_id,omitempty"`
	Status       StepStatus      `json:"status"`
	Outcome      StageOutcome    `json:"outcome,omitempty"`
	Attempts     int             `json:"attempts"`
	StartedAt    time.Time       `json:"started_at"`
	Duration     time.Duration   `json:"duration"`
	Response     json.RawMessage `json:"response_payload,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// NewStep opens a pending step.
func NewStep(caseID id.CaseID, agent AgentType, startedAt time.Time) *ProcessingStep {
	return &ProcessingStep{
		ID:        id.NewStepID(),
		CaseID:    caseID,
		AgentType: agent,
		Status:    StepPending,
		StartedAt: startedAt,
	}
}

// Complete seals the step as successful.
func (s *ProcessingStep) Complete(outcome StageOutcome, payload json.RawMessage, attempts int, finishedAt time.Time) error {
	if s.Status != StepPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "processing step already sealed")
	}
	s.Status = StepSuccess
	s.Outcome = outcome
	s.Response = payload
	s.Attempts = attempts
	s.Duration = finishedAt.Sub(s.StartedAt)
	return nil
}

// Fail seals the step as errored.
func (s *ProcessingStep) Fail(message string, attempts int, finishedAt time.Time) error {
	if s.Status != StepPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "processing step already sealed")
	}
	s.Status = StepError
	s.Outcome = OutcomeError
	s.ErrorMessage = message
	s.Attempts = attempts
	s.Duration = finishedAt.Sub(s.StartedAt)
	return nil
}

// Settled reports whether the step can be reused on a resumed run. Errors,
// ambiguous verdicts and rejections are re-dispatched.
func (s ProcessingStep) Settled() bool {
	if s.Status != StepSuccess {
		return false
	}
	return s.Outcome == OutcomeClean || s.Outcome == OutcomeSkipped
}
