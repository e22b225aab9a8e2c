package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycflow/internal/cases/handler"
	"kycflow/internal/cases/handler/mocks"
	"kycflow/internal/cases/lock"
	"kycflow/internal/cases/models"
	"kycflow/internal/cases/service"
	"kycflow/internal/notify"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/requestcontext"
	"kycflow/pkg/testutil"
)

// =============================================================================
// Case Handler Test Suite
// =============================================================================
// Justification for unit tests: the handler owns route parameter parsing,
// body validation before the service is reached, and the mapping of domain
// error codes to HTTP statuses. The service is mocked; its behaviour is
// covered by the service suite.

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	h := handler.New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.RegisterPortal(s.router)
	h.RegisterStaff(s.router)
}

func (s *HandlerSuite) serve(req *http.Request) int {
	rr := testutil.Serve(s.router, req)
	return rr.Code
}

func sampleCase(status models.Status) *models.Case {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c, _ := models.NewCase("CUST-0000ABCD", models.CustomerData{Name: "John Smith"}, []id.DocumentID{id.NewDocumentID()}, now)
	c.Status = status
	return c
}

// =============================================================================
// Portal endpoints
// =============================================================================

func (s *HandlerSuite) TestSubmit() {
	s.Run("created with identifiers and warnings", func() {
		c := sampleCase(models.StatusPending)
		warning := models.ValidationWarning{DocumentType: models.DocumentIDProof, ConfidenceScore: 40}
		s.service.EXPECT().
			Submit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *models.SubmitCaseRequest) (*service.SubmitResult, error) {
				s.Equal("John Smith", req.CustomerData.Name)
				return &service.SubmitResult{Case: c, Warnings: []models.ValidationWarning{warning}}, nil
			})

		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/cases", map[string]any{
			"customer_data": map[string]any{"name": "John Smith", "email": "john@example.com"},
			"document_ids":  []string{c.DocumentIDs[0].String()},
		}))
		s.Equal(http.StatusCreated, rr.Code)
		resp := testutil.DecodeJSON[handler.SubmitResponse](s.T(), rr)
		s.Equal(c.ID.String(), resp.CaseID)
		s.Equal(models.StatusPending, resp.Status)
		s.Len(resp.Warnings, 1)
	})

	s.Run("validation fails before the service", func() {
		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/cases", map[string]any{
			"customer_data": map[string]any{"name": "John Smith"},
		}))
		body := testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
		s.Equal("document_ids", body.Field)
	})

	s.Run("malformed JSON", func() {
		rr := testutil.Serve(s.router, testutil.NewRawRequest(http.MethodPost, "/cases", "{"))
		testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("empty body", func() {
		rr := testutil.Serve(s.router, testutil.NewRawRequest(http.MethodPost, "/cases", ""))
		body := testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
		s.Equal("request body is required", body.Description)
	})
}

func (s *HandlerSuite) TestCustomerStatus() {
	c := sampleCase(models.StatusApproved)
	s.service.EXPECT().CustomerStatus(gomock.Any(), id.CustomerID("CUST-0000ABCD")).Return(c, nil)

	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/customers/CUST-0000ABCD/status", nil))
	s.Equal(http.StatusOK, rr.Code)
	resp := testutil.DecodeJSON[handler.CustomerStatusResponse](s.T(), rr)
	s.Equal(models.StatusApproved, resp.Status)

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/customers/bad.id/status", nil))
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *HandlerSuite) TestRegisterDocument() {
	s.service.EXPECT().RegisterDocument(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *models.RegisterDocumentRequest) (*models.Document, error) {
			return models.NewDocument(req.ParsedType(), req.Filename, req.Locator, req.ExtractedData, time.Now()), nil
		})

	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents", map[string]any{
		"document_type":  "id_proof",
		"filename":       "passport.png",
		"extracted_data": map[string]string{"first_name": "John"},
	}))
	s.Equal(http.StatusCreated, rr.Code)
	doc := testutil.DecodeJSON[map[string]any](s.T(), rr)
	s.Equal("id_proof", doc["document_type"])
	s.Equal("pending", doc["validation_status"])

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents", map[string]any{
		"document_type": "selfie",
		"filename":      "me.png",
	}))
	s.Equal(http.StatusBadRequest, rr.Code)
}

// =============================================================================
// Staff endpoints
// =============================================================================

func (s *HandlerSuite) TestManualReview() {
	c := sampleCase(models.StatusManualReview)
	path := "/cases/" + c.ID.String() + "/review"

	s.Run("actor flows through to the service", func() {
		approved := sampleCase(models.StatusApproved)
		s.service.EXPECT().ManualReview(gomock.Any(), c.ID, gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ id.CaseID, req *models.ManualReviewRequest) (*models.Case, error) {
				s.Equal("reviewer@bank.test", requestcontext.Actor(ctx))
				s.Equal(models.ReviewApprove, req.Action)
				return approved, nil
			})

		req := testutil.AsReviewer(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{
			"action": "approve",
			"notes":  "verified",
		}), "reviewer@bank.test")
		s.Equal(http.StatusOK, s.serve(req))
	})

	s.Run("missing notes", func() {
		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{"action": "reject"}))
		body := testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
		s.Equal("notes", body.Field)
	})

	s.Run("pipeline in flight is a retryable conflict", func() {
		s.service.EXPECT().ManualReview(gomock.Any(), c.ID, gomock.Any()).Return(nil, lock.ErrInProgress(c.ID))

		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{
			"action": "approve",
			"notes":  "verified",
		}))
		testutil.AssertError(s.T(), rr, http.StatusConflict, string(dErrors.CodeProcessing))
		s.Equal("1", rr.Header().Get("Retry-After"))
	})

	s.Run("illegal transition", func() {
		s.service.EXPECT().ManualReview(gomock.Any(), c.ID, gomock.Any()).
			Return(nil, dErrors.NewField(dErrors.CodeStateTransition, "status", "case is archived"))

		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{
			"action": "reject",
			"notes":  "fraud",
		}))
		testutil.AssertError(s.T(), rr, http.StatusConflict, string(dErrors.CodeStateTransition))
	})
}

func (s *HandlerSuite) TestCaseIDMustBeUUID() {
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/cases/not-a-uuid/retry", nil))
	body := testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	s.Equal("case_id", body.Field)
}

func (s *HandlerSuite) TestGetCase() {
	c := sampleCase(models.StatusPending)
	s.service.EXPECT().GetCase(gomock.Any(), c.ID).Return(&service.CaseDetails{Case: c}, nil)

	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/cases/"+c.ID.String(), nil))
	s.Equal(http.StatusOK, rr.Code)

	missing := id.NewCaseID()
	s.service.EXPECT().GetCase(gomock.Any(), missing).
		Return(nil, dErrors.NewField(dErrors.CodeNotFound, "case_id", "case not found"))
	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/cases/"+missing.String(), nil))
	testutil.AssertError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func (s *HandlerSuite) TestListAndSummary() {
	s.service.EXPECT().ListCases(gomock.Any(), "approved", 50).Return([]*models.Case{sampleCase(models.StatusApproved)}, nil)
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/cases?status=approved", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.Equal(float64(1), testutil.DecodeJSON[map[string]any](s.T(), rr)["count"])

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/cases?limit=-1", nil))
	body := testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	s.Equal("limit", body.Field)

	s.service.EXPECT().Summary(gomock.Any()).Return(&service.Summary{Total: 2, ByStatus: map[models.Status]int{models.StatusPending: 2}}, nil)
	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/cases/summary", nil))
	s.Equal(http.StatusOK, rr.Code)
	summary := testutil.DecodeJSON[service.Summary](s.T(), rr)
	s.Equal(2, summary.Total)
}

func (s *HandlerSuite) TestAuditLogs() {
	c := sampleCase(models.StatusPending)
	since := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.service.EXPECT().AuditLogs(gomock.Any(), c.ID, since, 20).Return([]audit.Entry{
		{CaseID: c.ID, Action: audit.ActionCaseSubmitted, PerformedBy: "system"},
	}, nil)

	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet,
		"/cases/"+c.ID.String()+"/audit-logs?since=2025-03-01T09:00:00Z&limit=20", nil))
	s.Equal(http.StatusOK, rr.Code)

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet,
		"/cases/"+c.ID.String()+"/audit-logs?since=yesterday", nil))
	body := testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	s.Equal("since", body.Field)
}

func (s *HandlerSuite) TestUpdateCase() {
	c := sampleCase(models.StatusApproved)
	path := "/cases/" + c.ID.String()

	s.service.EXPECT().UpdateCase(gomock.Any(), c.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.CaseID, req *models.UpdateCaseRequest) (*models.Case, error) {
			level, ok := req.ParsedRiskLevel()
			s.True(ok)
			s.Equal(models.RiskLow, level)
			return c, nil
		})
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, path, map[string]any{
		"risk_level": "low",
		"notes":      "false positive",
	}))
	s.Equal(http.StatusOK, rr.Code)

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, path, map[string]any{"notes": "nothing"}))
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *HandlerSuite) TestSendEmail() {
	c := sampleCase(models.StatusManualReview)
	s.service.EXPECT().SendEmail(gomock.Any(), c.ID, gomock.Any()).Return(&notify.Message{
		To:       "john@example.com",
		Template: notify.TemplateDocumentRequest,
		Subject:  "Additional Documents Required",
	}, nil)

	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/cases/"+c.ID.String()+"/emails", map[string]any{
		"template_type":      "document_request",
		"required_documents": []string{"address_proof"},
		"notes":              "bill too old",
	}))
	s.Equal(http.StatusAccepted, rr.Code)
	resp := testutil.DecodeJSON[handler.EmailResponse](s.T(), rr)
	s.Equal("john@example.com", resp.To)
}

func (s *HandlerSuite) TestValidateDocument() {
	docID := id.NewDocumentID()
	path := "/documents/" + docID.String() + "/validate"
	result := models.ValidationResult{OverallMatch: true, ConfidenceScore: 88, Method: "rules"}

	s.service.EXPECT().ValidateDocument(gomock.Any(), docID, gomock.Nil()).Return(result, nil)
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, nil))
	s.Equal(http.StatusOK, rr.Code)

	s.service.EXPECT().ValidateDocument(gomock.Any(), docID, map[string]string{"name": "John Smith"}).Return(result, nil)
	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
		"user_data": map[string]string{"name": " John Smith "},
	}))
	s.Equal(http.StatusOK, rr.Code)
	s.Equal(88, testutil.DecodeJSON[models.ValidationResult](s.T(), rr).ConfidenceScore)
}

func (s *HandlerSuite) TestInternalErrorsHideDetail() {
	c := sampleCase(models.StatusRejected)
	s.service.EXPECT().Retry(gomock.Any(), c.ID).
		Return(nil, dErrors.Wrap(io.ErrUnexpectedEOF, dErrors.CodeInternal, "failed to save case"))

	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/cases/"+c.ID.String()+"/retry", nil))
	body := testutil.AssertError(s.T(), rr, http.StatusInternalServerError, string(dErrors.CodeInternal))
	s.Empty(body.Description)
}

func TestTransitionsEndpoint(t *testing.T) {
	h := handler.New(mocks.NewMockService(gomock.NewController(t)), slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterStaff(r)

	testutil.Given(t, "the workflow table", func(t *testing.T) {
		rr := testutil.Serve(r, testutil.NewJSONRequest(t, http.MethodGet, "/workflow/transitions", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		body := testutil.DecodeJSON[map[string][]map[string]any](t, rr)

		testutil.Then(t, "archive is reachable from every open state and human only", func(t *testing.T) {
			froms := map[string]bool{}
			for _, e := range body["transitions"] {
				if e["trigger"] == "archive" {
					assert.Equal(t, true, e["human_only"])
					froms[e["from"].(string)] = true
				}
			}
			assert.Len(t, froms, 5)
			assert.False(t, froms["archived"])
		})
	})
}
