package models

import (
	"strings"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	pkgstrings "kycflow/pkg/platform/strings"
)

// SubmitCaseRequest is a customer application.
type SubmitCaseRequest struct {
	CustomerID   string       `json:"customer_id,omitempty"`
	CustomerData CustomerData `json:"customer_data"`
	DocumentIDs  []string     `json:"document_ids"`
}

func (r *SubmitCaseRequest) Normalize() {
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.CustomerData.Name = strings.TrimSpace(r.CustomerData.Name)
	r.CustomerData.Email = strings.TrimSpace(r.CustomerData.Email)
	r.DocumentIDs = pkgstrings.DedupeAndTrim(r.DocumentIDs)
}

func (r *SubmitCaseRequest) Validate() error {
	r.Normalize()
	if r.CustomerData.Name == "" {
		return dErrors.NewField(dErrors.CodeValidation, "customer_data.name", "is required")
	}
	if len(r.DocumentIDs) == 0 {
		return dErrors.NewField(dErrors.CodeValidation, "document_ids", "at least one document is required")
	}
	if _, err := r.ParsedDocumentIDs(); err != nil {
		return err
	}
	if r.CustomerID != "" {
		if _, err := id.ParseCustomerID(r.CustomerID); err != nil {
			return err
		}
	}
	return nil
}

func (r *SubmitCaseRequest) ParsedDocumentIDs() ([]id.DocumentID, error) {
	return parseDocumentIDs(r.DocumentIDs)
}

// ParsedCustomerID returns the supplied customer id or a fresh one.
func (r *SubmitCaseRequest) ParsedCustomerID() id.CustomerID {
	if cid, err := id.ParseCustomerID(r.CustomerID); err == nil {
		return cid
	}
	return id.NewCustomerID()
}

// ReviewAction is a reviewer decision on a case.
type ReviewAction string

const (
	ReviewApprove     ReviewAction = "approve"
	ReviewReject      ReviewAction = "reject"
	ReviewRequestInfo ReviewAction = "request_info"
)

// ManualReviewRequest records a reviewer decision.
type ManualReviewRequest struct {
	Action            ReviewAction `json:"action"`
	Notes             string       `json:"notes"`
	RequiredDocuments []string     `json:"required_documents,omitempty"`
}

func (r *ManualReviewRequest) Validate() error {
	r.Action = ReviewAction(strings.ToLower(strings.TrimSpace(string(r.Action))))
	r.Notes = strings.TrimSpace(r.Notes)
	r.RequiredDocuments = pkgstrings.DedupeAndTrimLower(r.RequiredDocuments)
	switch r.Action {
	case ReviewApprove, ReviewReject, ReviewRequestInfo:
	default:
		return dErrors.NewField(dErrors.CodeValidation, "action", "must be one of approve, reject, request_info")
	}
	if r.Notes == "" {
		return dErrors.NewField(dErrors.CodeValidation, "notes", "a justification note is required")
	}
	return nil
}

// NoteRequest carries the justification for actions without other inputs.
type NoteRequest struct {
	Notes string `json:"notes"`
}

func (r *NoteRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	if r.Notes == "" {
		return dErrors.NewField(dErrors.CodeValidation, "notes", "a justification note is required")
	}
	return nil
}

// UpdateCaseRequest is a human override. Nil fields are left unchanged.
type UpdateCaseRequest struct {
	RiskLevel      *string `json:"risk_level,omitempty"`
	PEPFlag        *bool   `json:"pep_flag,omitempty"`
	Status         *string `json:"status,omitempty"`
	AcceptWarnings bool    `json:"accept_warnings,omitempty"`
	Notes          string  `json:"notes"`
}

func (r *UpdateCaseRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	if r.Notes == "" {
		return dErrors.NewField(dErrors.CodeValidation, "notes", "a justification note is required")
	}
	if r.RiskLevel == nil && r.PEPFlag == nil && r.Status == nil && !r.AcceptWarnings {
		return dErrors.New(dErrors.CodeValidation, "at least one field must be updated")
	}
	if r.RiskLevel != nil {
		level, err := ParseRiskLevel(*r.RiskLevel)
		if err != nil || level == RiskUnset {
			return dErrors.NewField(dErrors.CodeValidation, "risk_level", "must be one of low, medium, high")
		}
	}
	if r.Status != nil {
		st, err := ParseStatus(*r.Status)
		if err != nil {
			return err
		}
		if st == StatusArchived {
			return dErrors.NewField(dErrors.CodeValidation, "status", "use the archive action to archive a case")
		}
	}
	return nil
}

// ParsedRiskLevel is only meaningful after Validate.
func (r *UpdateCaseRequest) ParsedRiskLevel() (RiskLevel, bool) {
	if r.RiskLevel == nil {
		return "", false
	}
	level, _ := ParseRiskLevel(*r.RiskLevel)
	return level, true
}

// ParsedStatus is only meaningful after Validate.
func (r *UpdateCaseRequest) ParsedStatus() (Status, bool) {
	if r.Status == nil {
		return "", false
	}
	st, _ := ParseStatus(*r.Status)
	return st, true
}

// SendEmailRequest asks for a customer email from a template.
type SendEmailRequest struct {
	Template          string   `json:"template_type"`
	Subject           string   `json:"subject,omitempty"`
	Message           string   `json:"message,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	RequiredDocuments []string `json:"required_documents,omitempty"`
	AdditionalNotes   string   `json:"additional_notes,omitempty"`
	Notes             string   `json:"notes"`
}

func (r *SendEmailRequest) Validate() error {
	r.Template = strings.ToLower(strings.TrimSpace(r.Template))
	r.Subject = strings.TrimSpace(r.Subject)
	r.Notes = strings.TrimSpace(r.Notes)
	r.RequiredDocuments = pkgstrings.DedupeAndTrimLower(r.RequiredDocuments)
	if r.Template == "" {
		return dErrors.NewField(dErrors.CodeValidation, "template_type", "is required")
	}
	if r.Notes == "" {
		return dErrors.NewField(dErrors.CodeValidation, "notes", "a justification note is required")
	}
	return nil
}

// RegisterDocumentRequest records upload metadata. The file itself stays with
// the storage collaborator behind Locator.
type RegisterDocumentRequest struct {
	DocumentType  string            `json:"document_type"`
	Filename      string            `json:"filename"`
	Locator       string            `json:"locator,omitempty"`
	ExtractedData map[string]string `json:"extracted_data,omitempty"`
}

func (r *RegisterDocumentRequest) Validate() error {
	r.Filename = strings.TrimSpace(r.Filename)
	r.Locator = strings.TrimSpace(r.Locator)
	if _, err := ParseDocumentType(r.DocumentType); err != nil {
		return err
	}
	if r.Filename == "" {
		return dErrors.NewField(dErrors.CodeValidation, "filename", "is required")
	}
	return nil
}

// ParsedType is only meaningful after Validate.
func (r *RegisterDocumentRequest) ParsedType() DocumentType {
	t, _ := ParseDocumentType(r.DocumentType)
	return t
}

// ReplaceDocumentRequest supersedes a case document with a re-upload.
type ReplaceDocumentRequest struct {
	OldDocumentID string                  `json:"old_document_id"`
	Document      RegisterDocumentRequest `json:"document"`
	Notes         string                  `json:"notes"`
}

func (r *ReplaceDocumentRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	if _, err := id.ParseDocumentID(strings.TrimSpace(r.OldDocumentID)); err != nil {
		return dErrors.NewField(dErrors.CodeValidation, "old_document_id", "must be a UUID")
	}
	if err := r.Document.Validate(); err != nil {
		return err
	}
	if r.Notes == "" {
		return dErrors.NewField(dErrors.CodeValidation, "notes", "a justification note is required")
	}
	return nil
}

// ParsedOldDocumentID is only meaningful after Validate.
func (r *ReplaceDocumentRequest) ParsedOldDocumentID() id.DocumentID {
	docID, _ := id.ParseDocumentID(strings.TrimSpace(r.OldDocumentID))
	return docID
}

// MarkDocumentRequest is an explicit human validation decision.
type MarkDocumentRequest struct {
	ValidationStatus string `json:"validation_status"`
	Notes            string `json:"notes"`
}

func (r *MarkDocumentRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	st, err := ParseDocumentStatus(r.ValidationStatus)
	if err != nil {
		return err
	}
	if st == DocumentPending {
		return dErrors.NewField(dErrors.CodeValidation, "validation_status", "must be valid or invalid")
	}
	if r.Notes == "" {
		return dErrors.NewField(dErrors.CodeValidation, "notes", "a justification note is required")
	}
	return nil
}

// ParsedStatus is only meaningful after Validate.
func (r *MarkDocumentRequest) ParsedStatus() DocumentStatus {
	st, _ := ParseDocumentStatus(r.ValidationStatus)
	return st
}

// ValidateDataRequest is an ad hoc comparison outside any case.
type ValidateDataRequest struct {
	DocumentType  string            `json:"document_type"`
	ExtractedData map[string]string `json:"extracted_data"`
	UserData      map[string]string `json:"user_data"`
}

func (r *ValidateDataRequest) Validate() error {
	if _, err := ParseDocumentType(r.DocumentType); err != nil {
		return err
	}
	if len(r.ExtractedData) == 0 {
		return dErrors.NewField(dErrors.CodeValidation, "extracted_data", "is required")
	}
	if len(r.UserData) == 0 {
		return dErrors.NewField(dErrors.CodeValidation, "user_data", "is required")
	}
	return nil
}

// ParsedType is only meaningful after Validate.
func (r *ValidateDataRequest) ParsedType() DocumentType {
	t, _ := ParseDocumentType(r.DocumentType)
	return t
}

func parseDocumentIDs(raw []string) ([]id.DocumentID, error) {
	out := make([]id.DocumentID, 0, len(raw))
	for _, s := range raw {
		docID, err := id.ParseDocumentID(s)
		if err != nil {
			return nil, dErrors.NewField(dErrors.CodeValidation, "document_ids", "invalid document id "+s)
		}
		out = append(out, docID)
	}
	return out, nil
}
