package models

import (
	"strings"

	dErrors "kycflow/pkg/domain-errors"
)

// Status is the case lifecycle state.
type Status string

const (
	StatusSubmitted    Status = "submitted"
	StatusPending      Status = "pending"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusManualReview Status = "manual_review"
	StatusArchived     Status = "archived"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusSubmitted, StatusPending, StatusManualReview,
	StatusApproved, StatusRejected, StatusArchived,
}

func (s Status) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusPending, StatusApproved, StatusRejected, StatusManualReview, StatusArchived:
		return true
	}
	return false
}

// IsTerminal reports whether automated processing has finished. Approved and
// rejected cases stay open to retry and human override; archived is absorbing.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusArchived
}

func (s Status) String() string { return string(s) }

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.NewField(dErrors.CodeValidation, "status", "unknown status")
	}
	return st, nil
}

// RiskLevel orders as unset < low < medium < high.
type RiskLevel string

const (
	RiskUnset  RiskLevel = "unset"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// Max returns the higher of two levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.Rank() > r.Rank() {
		return other
	}
	if r == "" {
		return RiskUnset
	}
	return r
}

func (r RiskLevel) String() string { return string(r) }

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, nil
	case RiskMedium:
		return RiskMedium, nil
	case RiskHigh:
		return RiskHigh, nil
	case RiskUnset, "":
		return RiskUnset, nil
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "risk_level", "must be one of low, medium, high")
}

// AgentType names a pipeline stage kind.
type AgentType string

const (
	AgentDocumentValidation AgentType = "document_validation"
	AgentRiskAnalysis       AgentType = "risk_analysis"
	AgentSanctionScreening  AgentType = "sanction_screening"
	AgentComplianceCheck    AgentType = "compliance_check"
	AgentDecisionSynthesis  AgentType = "decision_synthesis"
)

// StageOrder is the fixed dispatch order of the pipeline.
var StageOrder = []AgentType{
	AgentDocumentValidation,
	AgentRiskAnalysis,
	AgentSanctionScreening,
	AgentComplianceCheck,
	AgentDecisionSynthesis,
}

func (a AgentType) String() string { return string(a) }

// StepStatus is the ProcessingStep state.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// StageOutcome classifies what a completed step means for the decision.
type StageOutcome string

const (
	OutcomeClean     StageOutcome = "clean"
	OutcomeAmbiguous StageOutcome = "ambiguous"
	OutcomeReject    StageOutcome = "reject"
	OutcomeSkipped   StageOutcome = "skipped"
	OutcomeError     StageOutcome = "error"
)

// DocumentType is the kind of uploaded artifact.
type DocumentType string

const (
	DocumentIDProof         DocumentType = "id_proof"
	DocumentAddressProof    DocumentType = "address_proof"
	DocumentEmploymentProof DocumentType = "employment_proof"
)

// RequiredDocuments is the full document set for a standard application.
var RequiredDocuments = []DocumentType{DocumentIDProof, DocumentAddressProof, DocumentEmploymentProof}

func ParseDocumentType(s string) (DocumentType, error) {
	switch DocumentType(strings.ToLower(strings.TrimSpace(s))) {
	case DocumentIDProof:
		return DocumentIDProof, nil
	case DocumentAddressProof:
		return DocumentAddressProof, nil
	case DocumentEmploymentProof:
		return DocumentEmploymentProof, nil
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "document_type", "must be one of id_proof, address_proof, employment_proof")
}

// DocumentStatus is the document validation state.
type DocumentStatus string

const (
	DocumentPending DocumentStatus = "pending"
	DocumentValid   DocumentStatus = "valid"
	DocumentInvalid DocumentStatus = "invalid"
)

func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch DocumentStatus(strings.ToLower(strings.TrimSpace(s))) {
	case DocumentValid:
		return DocumentValid, nil
	case DocumentInvalid:
		return DocumentInvalid, nil
	case DocumentPending:
		return DocumentPending, nil
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "validation_status", "must be valid or invalid")
}

// Severity grades a discrepancy.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityHigh:
		return SeverityHigh
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}
