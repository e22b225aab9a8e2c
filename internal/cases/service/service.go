package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks CaseStore,DocumentStore,Validator,Pipeline,AuditRecorder,Notifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kycflow/internal/cases/lock"
	casemetrics "kycflow/internal/cases/metrics"
	"kycflow/internal/cases/models"
	casestore "kycflow/internal/cases/store/cases"
	"kycflow/internal/notify"
	"kycflow/internal/validation"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/platform/tx"
	"kycflow/pkg/requestcontext"
)

type CaseStore interface {
	Create(ctx context.Context, c *models.Case) error
	FindByID(ctx context.Context, caseID id.CaseID) (*models.Case, error)
	Save(ctx context.Context, c *models.Case) error
	List(ctx context.Context, f casestore.Filter) ([]*models.Case, error)
	LatestForCustomer(ctx context.Context, customerID id.CustomerID) (*models.Case, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}

type DocumentStore interface {
	Create(ctx context.Context, d *models.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	FindByIDs(ctx context.Context, ids []id.DocumentID) ([]*models.Document, error)
	ListByCase(ctx context.Context, caseID id.CaseID) ([]*models.Document, error)
	Save(ctx context.Context, d *models.Document) error
}

type Validator interface {
	Validate(ctx context.Context, extracted, user map[string]string, docType models.DocumentType) models.ValidationResult
	ValidateAll(ctx context.Context, items []validation.Item, user map[string]string) []models.ValidationResult
}

// Pipeline is the coordinator that drives a pending case through its stages.
type Pipeline interface {
	Advance(ctx context.Context, caseID id.CaseID) (models.Status, error)
	AdvanceLocked(ctx context.Context, caseID id.CaseID) (models.Status, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, caseID id.CaseID, action audit.ActionType, details map[string]any) (audit.Entry, error)
	History(ctx context.Context, caseID id.CaseID, q audit.Query) ([]audit.Entry, error)
}

type Notifier interface {
	OnTransition(ctx context.Context, c *models.Case, tr notify.Transition, d notify.Details) (notify.Message, bool)
	Compose(ctx context.Context, c *models.Case) notify.Params
	Send(ctx context.Context, c *models.Case, tmpl notify.Template, p notify.Params) (notify.Message, error)
}

// Service is the case API exposed to staff and customer portals. Every human
// mutation holds the case lock and writes exactly one audit entry in the
// same transaction as the change.
type Service struct {
	cases     CaseStore
	documents DocumentStore
	validator Validator
	pipeline  Pipeline
	locker    lock.Locker
	audit     AuditRecorder
	tx        tx.Runner
	notifier  Notifier
	metrics   *casemetrics.Metrics
	logger    *slog.Logger

	autoAdvance bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *casemetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTx(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithAutoAdvance controls whether submission and retry run the pipeline
// before returning. Enabled by default.
func WithAutoAdvance(enabled bool) Option {
	return func(s *Service) {
		s.autoAdvance = enabled
	}
}

func New(
	cases CaseStore,
	documents DocumentStore,
	validator Validator,
	pipeline Pipeline,
	locker lock.Locker,
	recorder AuditRecorder,
	opts ...Option,
) (*Service, error) {
	if cases == nil {
		return nil, errors.New("case store is required")
	}
	if documents == nil {
		return nil, errors.New("document store is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if locker == nil {
		return nil, errors.New("case locker is required")
	}
	if recorder == nil {
		return nil, errors.New("audit recorder is required")
	}
	s := &Service{
		cases:       cases,
		documents:   documents,
		validator:   validator,
		pipeline:    pipeline,
		locker:      locker,
		audit:       recorder,
		tx:          tx.NewMemory(),
		logger:      slog.Default(),
		autoAdvance: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) loadCase(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	c, err := s.cases.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewField(dErrors.CodeNotFound, "case_id", "case not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	return c, nil
}

func (s *Service) loadDocument(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	d, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewField(dErrors.CodeNotFound, "document_id", "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return d, nil
}

// withCaseLock runs fn while holding the case lock. A pipeline run in flight
// makes the mutation fail with a processing conflict.
func (s *Service) withCaseLock(ctx context.Context, caseID id.CaseID, fn func() error) error {
	release, err := s.locker.TryAcquire(ctx, caseID)
	if err != nil {
		if lock.IsConflict(err) {
			s.metrics.IncConcurrencyConflict()
		}
		return err
	}
	defer release()
	return fn()
}

// commit saves c and appends its audit entry in one transaction.
func (s *Service) commit(ctx context.Context, c *models.Case, action audit.ActionType, details map[string]any) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.cases.Save(txCtx, c); err != nil {
			return translateSave(err)
		}
		_, err := s.audit.Record(txCtx, c.ID, action, details)
		return err
	})
}

func translateSave(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "case was modified concurrently")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NewField(dErrors.CodeNotFound, "case_id", "case not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save case")
}

func change[T any](old, new T) map[string]any {
	return map[string]any{"old": old, "new": new}
}

func (s *Service) notifyTransition(ctx context.Context, c *models.Case, tr notify.Transition, d notify.Details) {
	if s.notifier == nil {
		return
	}
	s.notifier.OnTransition(ctx, c, tr, d)
}

func (s *Service) now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx)
}
