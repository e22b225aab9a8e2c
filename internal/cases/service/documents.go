package service

import (
	"context"
	"slices"

	"kycflow/internal/cases/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/requestcontext"
)

// RegisterDocument records upload metadata and extracted fields for a
// document that a later submission will reference.
func (s *Service) RegisterDocument(ctx context.Context, req *models.RegisterDocumentRequest) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	d := models.NewDocument(req.ParsedType(), req.Filename, req.Locator, req.ExtractedData, s.now(ctx))
	if err := s.documents.Create(ctx, d); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register document")
	}
	s.logger.InfoContext(ctx, "document registered",
		"document_id", d.ID,
		"document_type", d.Type,
	)
	return d, nil
}

// ReplaceDocument supersedes a case document with a re-upload. The old
// document is kept and points at its replacement; validation runs again on
// the next pipeline pass because the new document is pending.
func (s *Service) ReplaceDocument(ctx context.Context, caseID id.CaseID, req *models.ReplaceDocumentRequest) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	oldID := req.ParsedOldDocumentID()

	var replacement *models.Document
	err := s.withCaseLock(ctx, caseID, func() error {
		c, err := s.loadCase(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status == models.StatusArchived {
			return dErrors.NewField(dErrors.CodeStateTransition, "status", "case is archived")
		}
		if !slices.Contains(c.DocumentIDs, oldID) {
			return dErrors.NewField(dErrors.CodeNotFound, "old_document_id", "document is not part of this case")
		}
		old, err := s.loadDocument(ctx, oldID)
		if err != nil {
			return err
		}
		if old.IsSuperseded() {
			return dErrors.NewField(dErrors.CodeConflict, "old_document_id", "document has already been replaced")
		}

		now := s.now(ctx)
		doc := req.Document
		replacement = models.NewDocument(doc.ParsedType(), doc.Filename, doc.Locator, doc.ExtractedData, now)
		replacement.CaseID = c.ID
		old.SupersededBy = &replacement.ID
		c.ReplaceDocument(oldID, replacement.ID)
		c.UpdatedAt = now

		return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.documents.Create(txCtx, replacement); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store replacement document")
			}
			if err := s.documents.Save(txCtx, old); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede document")
			}
			if err := s.cases.Save(txCtx, c); err != nil {
				return translateSave(err)
			}
			_, err := s.audit.Record(txCtx, c.ID, audit.ActionCaseUpdated, map[string]any{
				"note":          req.Notes,
				"document_type": string(replacement.Type),
				"changes": map[string]any{
					"document_ids": change(oldID.String(), replacement.ID.String()),
				},
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "document replaced",
		"case_id", caseID,
		"old_document_id", oldID,
		"document_id", replacement.ID,
	)
	return replacement, nil
}

// MarkDocument records a reviewer's validity decision on a case document.
// Automated validation never overrides it. A pending case without open
// warnings is re-evaluated under the same lock.
func (s *Service) MarkDocument(ctx context.Context, docID id.DocumentID, req *models.MarkDocumentRequest) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	d, err := s.loadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !d.IsAttached() {
		return nil, dErrors.NewField(dErrors.CodeValidation, "document_id", "document is not attached to a case")
	}
	caseID := d.CaseID

	err = s.withCaseLock(ctx, caseID, func() error {
		c, err := s.loadCase(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status == models.StatusArchived {
			return dErrors.NewField(dErrors.CodeStateTransition, "status", "case is archived")
		}
		// re-read under the lock
		if d, err = s.loadDocument(ctx, docID); err != nil {
			return err
		}
		if d.IsSuperseded() {
			return dErrors.NewField(dErrors.CodeValidation, "document_id", "document has been superseded")
		}
		old := d.ValidationStatus
		d.ApplyHumanValidation(req.ParsedStatus(), requestcontext.Actor(ctx))

		err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.documents.Save(txCtx, d); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save document")
			}
			_, err := s.audit.Record(txCtx, caseID, audit.ActionDocumentValidation, map[string]any{
				"note":              req.Notes,
				"document_id":       d.ID.String(),
				"document_type":     string(d.Type),
				"validation_status": change(string(old), string(d.ValidationStatus)),
			})
			return err
		})
		if err != nil {
			return err
		}
		if c.Status == models.StatusPending && !c.HasUnresolvedWarnings() && s.autoAdvance {
			s.advanceLocked(ctx, caseID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "document validated by reviewer",
		"case_id", caseID,
		"document_id", docID,
		"validation_status", d.ValidationStatus,
	)
	return d, nil
}

// ValidateDocument compares one stored document against user data without
// touching the case. Attached documents default to the case's declared data.
func (s *Service) ValidateDocument(ctx context.Context, docID id.DocumentID, user map[string]string) (models.ValidationResult, error) {
	d, err := s.loadDocument(ctx, docID)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if len(user) == 0 {
		if !d.IsAttached() {
			return models.ValidationResult{}, dErrors.NewField(dErrors.CodeValidation, "user_data", "is required for documents not attached to a case")
		}
		c, err := s.loadCase(ctx, d.CaseID)
		if err != nil {
			return models.ValidationResult{}, err
		}
		user = c.Customer.Fields()
	}
	return s.validator.Validate(ctx, d.ExtractedData, user, d.Type), nil
}

// ValidateData compares ad hoc extracted data against user data.
func (s *Service) ValidateData(ctx context.Context, req *models.ValidateDataRequest) (models.ValidationResult, error) {
	if err := req.Validate(); err != nil {
		return models.ValidationResult{}, err
	}
	return s.validator.Validate(ctx, req.ExtractedData, req.UserData, req.ParsedType()), nil
}
