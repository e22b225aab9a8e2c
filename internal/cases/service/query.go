package service

import (
	"context"
	"errors"
	"time"

	"kycflow/internal/cases/models"
	casestore "kycflow/internal/cases/store/cases"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/sentinel"
)

const maxListLimit = 500

// CaseDetails is a case snapshot with its documents, superseded ones included.
type CaseDetails struct {
	Case      *models.Case       `json:"case"`
	Documents []*models.Document `json:"documents"`
}

// Summary is the dashboard headline.
type Summary struct {
	Total    int                   `json:"total"`
	ByStatus map[models.Status]int `json:"by_status"`
}

func (s *Service) GetCase(ctx context.Context, caseID id.CaseID) (*CaseDetails, error) {
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByCase(ctx, caseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load documents")
	}
	return &CaseDetails{Case: c, Documents: docs}, nil
}

// ListCases returns cases newest first, optionally filtered by status.
func (s *Service) ListCases(ctx context.Context, status string, limit int) ([]*models.Case, error) {
	f := casestore.Filter{Limit: min(limit, maxListLimit)}
	if status != "" {
		st, err := models.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	out, err := s.cases.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cases")
	}
	return out, nil
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	counts, err := s.cases.CountByStatus(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count cases")
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &Summary{Total: total, ByStatus: counts}, nil
}

// CustomerStatus returns the customer's most recent case.
func (s *Service) CustomerStatus(ctx context.Context, customerID id.CustomerID) (*models.Case, error) {
	c, err := s.cases.LatestForCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewField(dErrors.CodeNotFound, "customer_id", "no case found for customer")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load customer case")
	}
	return c, nil
}

// AuditLogs returns a case's audit trail in append order. Callers page by
// passing the timestamp of the last entry they saw as since.
func (s *Service) AuditLogs(ctx context.Context, caseID id.CaseID, since time.Time, limit int) ([]audit.Entry, error) {
	if _, err := s.loadCase(ctx, caseID); err != nil {
		return nil, err
	}
	entries, err := s.audit.History(ctx, caseID, audit.Query{Since: since, Limit: limit})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
	}
	return entries, nil
}
