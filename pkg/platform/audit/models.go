package audit

import (
	"context"
	"time"

	id "kycflow/pkg/domain"
)

// ActionType names what happened to a case.
type ActionType string

const (
	ActionCaseSubmitted      ActionType = "case_submitted"
	ActionCaseUpdated        ActionType = "case_updated"
	ActionCaseArchived       ActionType = "case_archived"
	ActionEmailSent          ActionType = "email_sent"
	ActionManualReview       ActionType = "manual_review"
	ActionDocumentValidation ActionType = "document_validation"
	ActionStageExecuted      ActionType = "stage_executed"
	ActionRetryRequested     ActionType = "retry_requested"
)

// IsHumanAction reports whether the action type is only ever human-initiated.
// Human actions must carry a note.
func (a ActionType) IsHumanAction() bool {
	switch a {
	case ActionCaseArchived, ActionManualReview, ActionCaseUpdated, ActionEmailSent:
		return true
	}
	return false
}

// Entry is one append-only fact about a case. Entries are never updated or
// deleted and outlive case archival.
type Entry struct {
	LogID         id.LogID       `json:"log_id"`
	CaseID        id.CaseID      `json:"case_id"`
	Action        ActionType     `json:"action_type"`
	PerformedBy   string         `json:"performed_by"`
	Timestamp     time.Time      `json:"timestamp"`
	Details       map[string]any `json:"details"`
	IPAddress     string         `json:"ip_address,omitempty"`
	ClientContext string         `json:"client_context,omitempty"`
	RequestID     string         `json:"request_id,omitempty"`
}

// Query bounds a history read. Callers page forward by passing the timestamp
// of the last entry they saw as Since.
type Query struct {
	Since time.Time
	Limit int
}

// Store persists entries. Append joins the caller's transaction when one is
// present in ctx.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	History(ctx context.Context, caseID id.CaseID, q Query) ([]Entry, error)
}
