package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/cases/models"
	"kycflow/internal/cases/service"
	"kycflow/internal/cases/statemachine"
	"kycflow/internal/notify"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
)

const defaultListLimit = 50

// Service is the case API the handler exposes.
type Service interface {
	Submit(ctx context.Context, req *models.SubmitCaseRequest) (*service.SubmitResult, error)
	GetCase(ctx context.Context, caseID id.CaseID) (*service.CaseDetails, error)
	ListCases(ctx context.Context, status string, limit int) ([]*models.Case, error)
	Summary(ctx context.Context) (*service.Summary, error)
	CustomerStatus(ctx context.Context, customerID id.CustomerID) (*models.Case, error)
	AuditLogs(ctx context.Context, caseID id.CaseID, since time.Time, limit int) ([]audit.Entry, error)
	Process(ctx context.Context, caseID id.CaseID) (*models.Case, error)
	ManualReview(ctx context.Context, caseID id.CaseID, req *models.ManualReviewRequest) (*models.Case, error)
	Retry(ctx context.Context, caseID id.CaseID) (*models.Case, error)
	Archive(ctx context.Context, caseID id.CaseID, req *models.NoteRequest) (*models.Case, error)
	UpdateCase(ctx context.Context, caseID id.CaseID, req *models.UpdateCaseRequest) (*models.Case, error)
	SendEmail(ctx context.Context, caseID id.CaseID, req *models.SendEmailRequest) (*notify.Message, error)
	RegisterDocument(ctx context.Context, req *models.RegisterDocumentRequest) (*models.Document, error)
	ReplaceDocument(ctx context.Context, caseID id.CaseID, req *models.ReplaceDocumentRequest) (*models.Document, error)
	MarkDocument(ctx context.Context, docID id.DocumentID, req *models.MarkDocumentRequest) (*models.Document, error)
	ValidateDocument(ctx context.Context, docID id.DocumentID, user map[string]string) (models.ValidationResult, error)
	ValidateData(ctx context.Context, req *models.ValidateDataRequest) (models.ValidationResult, error)
}

// Handler wires case endpoints to the case service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterPortal mounts the customer-portal endpoints.
func (h *Handler) RegisterPortal(r chi.Router) {
	r.Post("/documents", h.HandleRegisterDocument)
	r.Post("/validate-data", h.HandleValidateData)
	r.Post("/cases", h.HandleSubmit)
	r.Get("/customers/{customer_id}/status", h.HandleCustomerStatus)
}

// RegisterStaff mounts the staff endpoints. Callers wrap r with
// authentication; every mutation carries the caller as performed_by.
func (h *Handler) RegisterStaff(r chi.Router) {
	r.Get("/cases", h.HandleListCases)
	r.Get("/cases/summary", h.HandleSummary)
	r.Get("/cases/{case_id}", h.HandleGetCase)
	r.Patch("/cases/{case_id}", h.HandleUpdateCase)
	r.Post("/cases/{case_id}/process", h.HandleProcess)
	r.Post("/cases/{case_id}/review", h.HandleManualReview)
	r.Post("/cases/{case_id}/retry", h.HandleRetry)
	r.Post("/cases/{case_id}/archive", h.HandleArchive)
	r.Post("/cases/{case_id}/emails", h.HandleSendEmail)
	r.Post("/cases/{case_id}/documents/replace", h.HandleReplaceDocument)
	r.Get("/cases/{case_id}/audit-logs", h.HandleAuditLogs)
	r.Post("/documents/{document_id}/validate", h.HandleValidateDocument)
	r.Post("/documents/{document_id}/validation", h.HandleMarkDocument)
	r.Get("/workflow/transitions", h.HandleTransitions)
}

// HandleSubmit handles POST /cases.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[models.SubmitCaseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Submit(ctx, req)
	if err != nil {
		h.fail(ctx, w, "case submission failed", err)
		return
	}
	h.logger.InfoContext(ctx, "case submitted",
		"request_id", requestID,
		"case_id", res.Case.ID,
		"status", res.Case.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, toSubmitResponse(res))
}

// HandleGetCase handles GET /cases/{case_id}.
func (h *Handler) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	details, err := h.service.GetCase(ctx, caseID)
	if err != nil {
		h.fail(ctx, w, "get case failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, details)
}

// HandleListCases handles GET /cases?status=&limit=.
func (h *Handler) HandleListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cases, err := h.service.ListCases(ctx, r.URL.Query().Get("status"), limit)
	if err != nil {
		h.fail(ctx, w, "list cases failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

// HandleSummary handles GET /cases/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.service.Summary(ctx)
	if err != nil {
		h.fail(ctx, w, "case summary failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// HandleCustomerStatus handles GET /customers/{customer_id}/status.
func (h *Handler) HandleCustomerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, err := id.ParseCustomerID(chi.URLParam(r, "customer_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.CustomerStatus(ctx, customerID)
	if err != nil {
		h.fail(ctx, w, "customer status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCustomerStatus(c))
}

// HandleAuditLogs handles GET /cases/{case_id}/audit-logs?since=&limit=.
func (h *Handler) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		if since, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			httputil.WriteError(w, dErrors.NewField(dErrors.CodeBadRequest, "since", "must be an RFC 3339 timestamp"))
			return
		}
	}
	entries, err := h.service.AuditLogs(ctx, caseID, since, limit)
	if err != nil {
		h.fail(ctx, w, "audit log read failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"case_id": caseID,
		"entries": entries,
	})
}

// HandleProcess handles POST /cases/{case_id}/process.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	start := time.Now()
	c, err := h.service.Process(ctx, caseID)
	if err != nil {
		h.fail(ctx, w, "case processing failed", err)
		return
	}
	h.logger.InfoContext(ctx, "case processed",
		"request_id", requestcontext.RequestID(ctx),
		"case_id", caseID,
		"status", c.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleManualReview handles POST /cases/{case_id}/review.
func (h *Handler) HandleManualReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.ManualReviewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.ManualReview(ctx, caseID, req)
	if err != nil {
		h.fail(ctx, w, "manual review failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleRetry handles POST /cases/{case_id}/retry.
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	c, err := h.service.Retry(ctx, caseID)
	if err != nil {
		h.fail(ctx, w, "retry failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleArchive handles POST /cases/{case_id}/archive.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.NoteRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.Archive(ctx, caseID, req)
	if err != nil {
		h.fail(ctx, w, "archive failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleUpdateCase handles PATCH /cases/{case_id}.
func (h *Handler) HandleUpdateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateCaseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.UpdateCase(ctx, caseID, req)
	if err != nil {
		h.fail(ctx, w, "case update failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleSendEmail handles POST /cases/{case_id}/emails.
func (h *Handler) HandleSendEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.SendEmailRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	msg, err := h.service.SendEmail(ctx, caseID, req)
	if err != nil {
		h.fail(ctx, w, "send email failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toEmailResponse(msg))
}

// HandleRegisterDocument handles POST /documents.
func (h *Handler) HandleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.RegisterDocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.RegisterDocument(ctx, req)
	if err != nil {
		h.fail(ctx, w, "document registration failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

// HandleReplaceDocument handles POST /cases/{case_id}/documents/replace.
func (h *Handler) HandleReplaceDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.ReplaceDocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.ReplaceDocument(ctx, caseID, req)
	if err != nil {
		h.fail(ctx, w, "document replacement failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

// HandleMarkDocument handles POST /documents/{document_id}/validation.
func (h *Handler) HandleMarkDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.MarkDocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.MarkDocument(ctx, docID, req)
	if err != nil {
		h.fail(ctx, w, "document validation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

// HandleValidateDocument handles POST /documents/{document_id}/validate. The
// body is optional; without user_data an attached document is compared with
// its case's declared data.
func (h *Handler) HandleValidateDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	var user map[string]string
	if r.ContentLength > 0 {
		req, ok := httputil.DecodeAndPrepare[ValidateDocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		user = req.UserData
	}
	res, err := h.service.ValidateDocument(ctx, docID, user)
	if err != nil {
		h.fail(ctx, w, "document validation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleValidateData handles POST /validate-data.
func (h *Handler) HandleValidateData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.ValidateDataRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.ValidateData(ctx, req)
	if err != nil {
		h.fail(ctx, w, "data validation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleTransitions handles GET /workflow/transitions.
func (h *Handler) HandleTransitions(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transitions": statemachine.Edges()})
}

// fail logs at ERROR for internal failures and INFO for caller mistakes,
// then writes the error response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"actor", requestcontext.Actor(ctx),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.InfoContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func caseIDParam(w http.ResponseWriter, r *http.Request) (id.CaseID, bool) {
	caseID, err := id.ParseCaseID(chi.URLParam(r, "case_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.CaseID{}, false
	}
	return caseID, true
}

func documentIDParam(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "document_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DocumentID{}, false
	}
	return docID, true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.NewField(dErrors.CodeBadRequest, name, "must be a non-negative integer")
	}
	return n, nil
}
