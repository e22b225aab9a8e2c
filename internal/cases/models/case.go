package models

import (
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// Case is one customer's KYC application.
//
// Invariants:
//   - Status changes only through the state machine (see statemachine.Evaluate)
//   - RiskLevel never decreases during automated processing; only a human
//     override carrying a note may lower it (OverrideRisk)
//   - at most one automated pipeline run is in flight (enforced by the lock)
//   - Steps are ordered by StartedAt
type Case struct {
	ID                 id.CaseID           `json:"case_id"`
	CustomerID         id.CustomerID       `json:"customer_id"`
	Customer           CustomerData        `json:"customer"`
	Status             Status              `json:"status"`
	RiskLevel          RiskLevel           `json:"risk_level"`
	PEPFlag            bool                `json:"pep_flag"`
	CustomerType       string              `json:"customer_type,omitempty"`
	EstimatedRiskLevel RiskLevel           `json:"estimated_risk_level,omitempty"`
	CurrentStage       AgentType           `json:"current_stage,omitempty"`
	Steps              []ProcessingStep    `json:"processing_steps"`
	DocumentIDs        []id.DocumentID     `json:"document_ids"`
	ValidationSummary  string              `json:"validation_summary,omitempty"`
	Warnings           []ValidationWarning `json:"validation_warnings,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	// Version increments on every save; stores use it for optimistic checks.
	Version int64 `json:"version"`
}

// NewCase creates a case in the submitted state.
func NewCase(customerID id.CustomerID, customer CustomerData, documentIDs []id.DocumentID, now time.Time) (*Case, error) {
	if customer.Name == "" {
		return nil, dErrors.NewField(dErrors.CodeValidation, "customer_data.name", "is required")
	}
	if len(documentIDs) == 0 {
		return nil, dErrors.NewField(dErrors.CodeValidation, "document_ids", "at least one document is required")
	}
	return &Case{
		ID:          id.NewCaseID(),
		CustomerID:  customerID,
		Customer:    customer,
		Status:      StatusSubmitted,
		RiskLevel:   RiskUnset,
		Steps:       []ProcessingStep{},
		DocumentIDs: documentIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ApplyStatus moves the case to an already validated status.
func (c *Case) ApplyStatus(to Status, now time.Time) {
	c.Status = to
	c.UpdatedAt = now
	switch to {
	case StatusApproved, StatusRejected:
		t := now
		c.CompletedAt = &t
	case StatusPending, StatusManualReview:
		c.CompletedAt = nil
	}
}

// EscalateRisk raises the risk level; lower levels are ignored. Returns true
// when the level changed.
func (c *Case) EscalateRisk(level RiskLevel) bool {
	next := c.RiskLevel.Max(level)
	if next == c.RiskLevel {
		return false
	}
	c.RiskLevel = next
	return true
}

// OverrideRisk sets the risk level unconditionally. Human-only; callers must
// have validated the justification note.
func (c *Case) OverrideRisk(level RiskLevel) {
	c.RiskLevel = level
}

// AppendStep adds a sealed step to the execution history.
func (c *Case) AppendStep(step ProcessingStep) {
	c.Steps = append(c.Steps, step)
	c.CurrentStage = step.AgentType
}

// LatestStep returns the most recent step for agent.
func (c *Case) LatestStep(agent AgentType) (ProcessingStep, bool) {
	for i := len(c.Steps) - 1; i >= 0; i-- {
		if c.Steps[i].AgentType == agent {
			return c.Steps[i], true
		}
	}
	return ProcessingStep{}, false
}

// ClearErrorSteps drops errored steps ahead of a retry. Their record stays in
// the audit log.
func (c *Case) ClearErrorSteps() int {
	kept := c.Steps[:0]
	removed := 0
	for _, s := range c.Steps {
		if s.Status == StepError {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	c.Steps = kept
	return removed
}

// HasUnresolvedWarnings reports whether pre-submission validation warnings
// still block automated processing.
func (c *Case) HasUnresolvedWarnings() bool {
	return len(c.Warnings) > 0
}

// AcceptWarnings clears pre-submission warnings after a human override.
func (c *Case) AcceptWarnings() {
	c.Warnings = nil
}

// ArchiveEligible reports whether the case has reached a decision and can be
// archived without interrupting processing.
func (c *Case) ArchiveEligible() bool {
	return c.Status == StatusApproved || c.Status == StatusRejected
}

// ReplaceDocument swaps a document reference, keeping order.
func (c *Case) ReplaceDocument(oldID, newID id.DocumentID) bool {
	for i, d := range c.DocumentIDs {
		if d == oldID {
			c.DocumentIDs[i] = newID
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to mutate independently.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Steps = append([]ProcessingStep(nil), c.Steps...)
	cp.DocumentIDs = append([]id.DocumentID(nil), c.DocumentIDs...)
	cp.Warnings = append([]ValidationWarning(nil), c.Warnings...)
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
