package models

import (
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// Document is one uploaded artifact. The raw file belongs to the storage
// collaborator; only its Locator is held here.
//
// Invariants:
//   - never deleted, only superseded by a re-upload with a new ID
//   - ValidationStatus changes only through the validation engine or an
//     explicit human validation action
type Document struct {
	ID               id.DocumentID     `json:"document_id"`
	CaseID           id.CaseID         `json:"case_id"`
	Type             DocumentType      `json:"document_type"`
	Filename         string            `json:"filename,omitempty"`
	Locator          string            `json:"locator,omitempty"`
	ValidationStatus DocumentStatus    `json:"validation_status"`
	ValidatedBy      string            `json:"validated_by,omitempty"`
	ExtractedData    map[string]string `json:"extracted_data,omitempty"`
	SupersededBy     *id.DocumentID    `json:"superseded_by,omitempty"`
	UploadedAt       time.Time         `json:"upload_time"`
}

func NewDocument(docType DocumentType, filename, locator string, extracted map[string]string, now time.Time) *Document {
	if extracted == nil {
		extracted = map[string]string{}
	}
	return &Document{
		ID:               id.NewDocumentID(),
		Type:             docType,
		Filename:         filename,
		Locator:          locator,
		ValidationStatus: DocumentPending,
		ExtractedData:    extracted,
		UploadedAt:       now,
	}
}

func (d *Document) IsSuperseded() bool {
	return d.SupersededBy != nil
}

// IsAttached reports whether the document already belongs to a case.
func (d *Document) IsAttached() bool {
	return !d.CaseID.IsNil()
}

// HumanValidated reports whether a reviewer set the status explicitly.
func (d *Document) HumanValidated() bool {
	return d.ValidatedBy != "" && d.ValidationStatus != DocumentPending
}

// CanAttach checks the document can be bound to caseID.
func (d *Document) CanAttach(caseID id.CaseID) error {
	if d.IsSuperseded() {
		return dErrors.NewField(dErrors.CodeValidation, "document_ids", "document "+d.ID.String()+" has been superseded")
	}
	if d.IsAttached() && d.CaseID != caseID {
		return dErrors.NewField(dErrors.CodeConflict, "document_ids", "document "+d.ID.String()+" belongs to another case")
	}
	return nil
}

// ApplyAutomatedValidation records the engine verdict. Human decisions are
// never overwritten by automation.
func (d *Document) ApplyAutomatedValidation(result ValidationResult) {
	if d.HumanValidated() {
		return
	}
	if result.OverallMatch {
		d.ValidationStatus = DocumentValid
	} else {
		d.ValidationStatus = DocumentInvalid
	}
}

// ApplyHumanValidation records an explicit reviewer decision.
func (d *Document) ApplyHumanValidation(status DocumentStatus, actor string) {
	d.ValidationStatus = status
	d.ValidatedBy = actor
}
