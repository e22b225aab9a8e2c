//go:build integration

package cases_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycflow/internal/cases/models"
	"kycflow/internal/cases/store/cases"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/platform/tx"
	"kycflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *cases.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = cases.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "processing_steps", "cases")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newCase(customer string) *models.Case {
	now := time.Now().UTC().Truncate(time.Microsecond)
	c, err := models.NewCase(id.CustomerID(customer), models.CustomerData{
		Name:         "Jane Doe",
		AnnualIncome: 85000,
	}, []id.DocumentID{id.NewDocumentID(), id.NewDocumentID()}, now)
	s.Require().NoError(err)
	return c
}

// TestRoundTripWithSteps verifies steps and JSON columns survive persistence
// in dispatch order.
func (s *PostgresStoreSuite) TestRoundTripWithSteps() {
	ctx := context.Background()
	c := s.newCase("CUST-1")
	s.Require().NoError(s.store.Create(ctx, c))

	step := models.NewStep(c.ID, models.AgentDocumentValidation, c.CreatedAt)
	s.Require().NoError(step.Complete(models.OutcomeAmbiguous, json.RawMessage(`{"confidence_score":60}`), 1, c.CreatedAt.Add(1500*time.Millisecond)))
	c.AppendStep(*step)
	risk := models.NewStep(c.ID, models.AgentRiskAnalysis, c.CreatedAt.Add(2*time.Second))
	s.Require().NoError(risk.Fail("agent call timed out", 2, c.CreatedAt.Add(3*time.Second)))
	c.AppendStep(*risk)
	c.Status = models.StatusManualReview
	c.Warnings = []models.ValidationWarning{{DocumentType: models.DocumentIDProof, ConfidenceScore: 60}}
	s.Require().NoError(s.store.Save(ctx, c))

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusManualReview, found.Status)
	s.Equal(c.DocumentIDs, found.DocumentIDs)
	s.Equal(85000.0, found.Customer.AnnualIncome)
	s.Require().Len(found.Steps, 2)
	s.Equal(models.AgentDocumentValidation, found.Steps[0].AgentType)
	s.Equal(1500*time.Millisecond, found.Steps[0].Duration)
	s.JSONEq(`{"confidence_score":60}`, string(found.Steps[0].Response))
	s.Equal(models.StepError, found.Steps[1].Status)
	s.Require().Len(found.Warnings, 1)
	s.Equal(int64(2), found.Version)
}

// TestRetryKeepsSealedStepsAndDropsClearedErrors verifies saves append new
// steps after the stored ones and only delete the error steps a retry cleared.
func (s *PostgresStoreSuite) TestRetryKeepsSealedStepsAndDropsClearedErrors() {
	ctx := context.Background()
	c := s.newCase("CUST-1")
	s.Require().NoError(s.store.Create(ctx, c))

	validation := models.NewStep(c.ID, models.AgentDocumentValidation, c.CreatedAt)
	s.Require().NoError(validation.Complete(models.OutcomeClean, json.RawMessage(`{"documents":[]}`), 1, c.CreatedAt.Add(time.Second)))
	c.AppendStep(*validation)
	failed := models.NewStep(c.ID, models.AgentRiskAnalysis, c.CreatedAt.Add(2*time.Second))
	s.Require().NoError(failed.Fail("connection refused", 2, c.CreatedAt.Add(3*time.Second)))
	c.AppendStep(*failed)
	s.Require().NoError(s.store.Save(ctx, c))

	s.Equal(1, c.ClearErrorSteps())
	// in-memory edits to a sealed step never reach the stored row
	c.Steps[0].Response = json.RawMessage(`{"rewritten":true}`)
	risk := models.NewStep(c.ID, models.AgentRiskAnalysis, c.CreatedAt.Add(4*time.Second))
	s.Require().NoError(risk.Complete(models.OutcomeClean, json.RawMessage(`{"risk_level":"low"}`), 1, c.CreatedAt.Add(5*time.Second)))
	c.AppendStep(*risk)
	s.Require().NoError(s.store.Save(ctx, c))

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Require().Len(found.Steps, 2)
	s.Equal(validation.ID, found.Steps[0].ID)
	s.JSONEq(`{"documents":[]}`, string(found.Steps[0].Response))
	s.Equal(risk.ID, found.Steps[1].ID)
	s.Equal(models.StepSuccess, found.Steps[1].Status)

	var stored int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processing_steps WHERE case_id = $1`, c.ID.String()).Scan(&stored))
	s.Equal(2, stored)
}

func (s *PostgresStoreSuite) TestStaleSaveConflicts() {
	ctx := context.Background()
	c := s.newCase("CUST-1")
	s.Require().NoError(s.store.Create(ctx, c))

	stale, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)

	c.RiskLevel = models.RiskHigh
	s.Require().NoError(s.store.Save(ctx, c))

	stale.RiskLevel = models.RiskLow
	s.ErrorIs(s.store.Save(ctx, stale), sentinel.ErrConflict)

	missing := s.newCase("CUST-2")
	s.ErrorIs(s.store.Save(ctx, missing), sentinel.ErrNotFound)
}

// TestRolledBackTransactionLeavesNoCase verifies stores join the context tx.
func (s *PostgresStoreSuite) TestRolledBackTransactionLeavesNoCase() {
	ctx := context.Background()
	c := s.newCase("CUST-1")
	runner := tx.NewPostgres(s.postgres.DB)

	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, c); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	})
	s.ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.store.FindByID(ctx, c.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListAndCounts() {
	ctx := context.Background()
	a := s.newCase("CUST-1")
	s.Require().NoError(s.store.Create(ctx, a))
	b := s.newCase("CUST-1")
	b.CreatedAt = a.CreatedAt.Add(time.Minute)
	b.Status = models.StatusApproved
	s.Require().NoError(s.store.Create(ctx, b))

	latest, err := s.store.LatestForCustomer(ctx, "CUST-1")
	s.Require().NoError(err)
	s.Equal(b.ID, latest.ID)

	approved, err := s.store.List(ctx, cases.Filter{Status: models.StatusApproved})
	s.Require().NoError(err)
	s.Require().Len(approved, 1)
	s.Equal(b.ID, approved[0].ID)

	counts, err := s.store.CountByStatus(ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[models.StatusSubmitted])
	s.Equal(1, counts[models.StatusApproved])
}
