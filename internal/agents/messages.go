package agents

import (
	"kycflow/internal/cases/models"
)

// Wire contracts exchanged with stage agents. Agents may add fields; unknown
// fields are ignored.

// DocumentRef summarises a case document for stage agents.
type DocumentRef struct {
	DocumentID       string                `json:"document_id"`
	Type             models.DocumentType   `json:"document_type"`
	ValidationStatus models.DocumentStatus `json:"validation_status"`
	ExtractedData    map[string]string     `json:"extracted_data,omitempty"`
}

// CaseRequest is the payload sent to risk, sanction and compliance agents.
type CaseRequest struct {
	CaseID     string              `json:"case_id"`
	CustomerID string              `json:"customer_id"`
	Customer   models.CustomerData `json:"customer"`
	Documents  []DocumentRef       `json:"documents"`
	RiskLevel  models.RiskLevel    `json:"risk_level"`
	PEPFlag    bool                `json:"pep_flag"`
}

// RiskAnalysisResponse is the risk agent answer.
type RiskAnalysisResponse struct {
	RiskLevel    string   `json:"risk_level"`
	RiskScore    float64  `json:"risk_score,omitempty"`
	CustomerType string   `json:"customer_type,omitempty"`
	Factors      []string `json:"factors,omitempty"`
}

// WatchlistMatch is one screening hit.
type WatchlistMatch struct {
	Name   string  `json:"name"`
	List   string  `json:"list"`
	Score  float64 `json:"score,omitempty"`
	IsPEP  bool    `json:"is_pep,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// SanctionScreeningResponse is the screening agent answer.
type SanctionScreeningResponse struct {
	SanctionHit bool             `json:"sanction_hit"`
	PEPMatch    bool             `json:"pep_match"`
	Matches     []WatchlistMatch `json:"matches,omitempty"`
}

// Compliance decisions.
const (
	ComplianceClear  = "clear"
	ComplianceReview = "review"
	ComplianceReject = "reject"
)

// ComplianceResponse is the compliance agent answer.
type ComplianceResponse struct {
	Compliant bool     `json:"compliant"`
	Decision  string   `json:"decision,omitempty"`
	Issues    []string `json:"issues,omitempty"`
}

// DocumentValidationRequest asks the reasoning agent to compare one document.
type DocumentValidationRequest struct {
	DocumentType  models.DocumentType `json:"document_type"`
	ExtractedData map[string]string   `json:"extracted_data"`
	UserData      map[string]string   `json:"user_data"`
	Threshold     int                 `json:"threshold"`
	Instructions  string              `json:"instructions"`
}
