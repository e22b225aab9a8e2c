package service

import (
	"context"
	"errors"

	"kycflow/internal/cases/models"
	"kycflow/internal/cases/profile"
	"kycflow/internal/cases/statemachine"
	"kycflow/internal/validation"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/email"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/sentinel"
)

// SubmitResult is the created case plus any unresolved pre-submission
// validation warnings.
type SubmitResult struct {
	Case      *models.Case               `json:"case"`
	Documents []*models.Document         `json:"documents"`
	Warnings  []models.ValidationWarning `json:"validation_warnings,omitempty"`
}

// Submit creates a case from a customer application and moves it to pending.
// Documents that fail pre-submission validation are reported as warnings and
// hold the case in pending until a reviewer accepts them; otherwise the
// pipeline runs immediately.
func (s *Service) Submit(ctx context.Context, req *models.SubmitCaseRequest) (*SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	declared := req.CustomerData
	if declared.Email != "" {
		normalized, err := email.Normalize(declared.Email)
		if err != nil {
			return nil, err
		}
		declared.Email = normalized
	}
	docIDs, err := req.ParsedDocumentIDs()
	if err != nil {
		return nil, err
	}
	docs, err := s.documents.FindByIDs(ctx, docIDs)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewField(dErrors.CodeNotFound, "document_ids", "one or more documents were not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load documents")
	}

	now := s.now(ctx)
	customer := profile.Enrich(declared, docs)
	c, err := models.NewCase(req.ParsedCustomerID(), customer, docIDs, now)
	if err != nil {
		return nil, err
	}
	types := make([]models.DocumentType, 0, len(docs))
	for _, d := range docs {
		if err := d.CanAttach(c.ID); err != nil {
			return nil, err
		}
		types = append(types, d.Type)
	}
	prof := profile.Classify(customer, false, types)
	c.CustomerType = prof.CustomerType
	c.EstimatedRiskLevel = prof.EstimatedRisk
	c.Warnings = s.preSubmissionWarnings(ctx, docs, declared)

	to, err := statemachine.Evaluate(c.Status, statemachine.TriggerDocumentsReceived, false)
	if err != nil {
		return nil, err
	}
	c.ApplyStatus(to, now)

	details := map[string]any{
		"customer_id":          c.CustomerID.String(),
		"document_ids":         documentIDStrings(docs),
		"customer_type":        c.CustomerType,
		"estimated_risk_level": string(c.EstimatedRiskLevel),
		"risk_factors":         prof.Factors,
		"status":               change(string(models.StatusSubmitted), string(to)),
	}
	if len(c.Warnings) > 0 {
		details["validation_warnings"] = len(c.Warnings)
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, d := range docs {
			d.CaseID = c.ID
			if err := s.documents.Save(txCtx, d); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach document")
			}
		}
		if err := s.cases.Create(txCtx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create case")
		}
		_, err := s.audit.Record(txCtx, c.ID, audit.ActionCaseSubmitted, details)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncCaseSubmitted()
	s.metrics.ObserveTransition(models.StatusSubmitted, to)
	s.logger.InfoContext(ctx, "case submitted",
		"case_id", c.ID,
		"customer_id", c.CustomerID,
		"documents", len(docs),
		"warnings", len(c.Warnings),
		"estimated_risk_level", c.EstimatedRiskLevel,
	)

	if s.autoAdvance && !c.HasUnresolvedWarnings() {
		s.advanceAfterSubmit(ctx, c)
	}
	return s.result(ctx, c)
}

// advanceAfterSubmit runs the pipeline for a fresh case. Failures leave the
// case pending for a later process call and are only logged.
func (s *Service) advanceAfterSubmit(ctx context.Context, c *models.Case) {
	status, err := s.pipeline.Advance(ctx, c.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "pipeline did not complete after submission",
			"case_id", c.ID,
			"error", err,
		)
		return
	}
	s.logger.InfoContext(ctx, "pipeline completed after submission",
		"case_id", c.ID,
		"status", status,
	)
}

func (s *Service) preSubmissionWarnings(ctx context.Context, docs []*models.Document, declared models.CustomerData) []models.ValidationWarning {
	var items []validation.Item
	for _, d := range docs {
		if len(d.ExtractedData) == 0 {
			continue
		}
		items = append(items, validation.Item{DocumentID: d.ID.String(), Type: d.Type, Extracted: d.ExtractedData})
	}
	if len(items) == 0 {
		return nil
	}
	results := s.validator.ValidateAll(ctx, items, declared.Fields())
	var warnings []models.ValidationWarning
	for i, res := range results {
		if res.OverallMatch {
			continue
		}
		warnings = append(warnings, models.ValidationWarning{
			DocumentType:    items[i].Type,
			DocumentID:      items[i].DocumentID,
			ConfidenceScore: res.ConfidenceScore,
			Discrepancies:   res.Discrepancies,
			Warnings:        res.Warnings,
		})
	}
	return warnings
}

func (s *Service) result(ctx context.Context, c *models.Case) (*SubmitResult, error) {
	latest, err := s.loadCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByCase(ctx, c.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load documents")
	}
	return &SubmitResult{Case: latest, Documents: docs, Warnings: latest.Warnings}, nil
}

func documentIDStrings(docs []*models.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID.String())
	}
	return out
}
