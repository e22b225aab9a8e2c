package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycflow/internal/agents"
	"kycflow/internal/cases/lock"
	casemetrics "kycflow/internal/cases/metrics"
	"kycflow/internal/cases/models"
	"kycflow/internal/cases/statemachine"
	"kycflow/internal/notify"
	"kycflow/internal/validation"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/platform/tx"
	"kycflow/pkg/requestcontext"
)

const tracerName = "kycflow/pipeline"

// CaseStore loads and saves cases.
type CaseStore interface {
	FindByID(ctx context.Context, caseID id.CaseID) (*models.Case, error)
	Save(ctx context.Context, c *models.Case) error
}

// DocumentStore loads and saves the documents a case references.
type DocumentStore interface {
	FindByIDs(ctx context.Context, ids []id.DocumentID) ([]*models.Document, error)
	Save(ctx context.Context, d *models.Document) error
}

// Invoker is the agent gateway.
type Invoker interface {
	Invoke(ctx context.Context, agentType models.AgentType, payload any) (*agents.Result, error)
}

// Validator compares documents against declared data.
type Validator interface {
	ValidateAll(ctx context.Context, items []validation.Item, user map[string]string) []models.ValidationResult
}

// AuditRecorder appends audit entries inside the caller's transaction.
type AuditRecorder interface {
	Record(ctx context.Context, caseID id.CaseID, action audit.ActionType, details map[string]any) (audit.Entry, error)
}

// Notifier reacts to status transitions.
type Notifier interface {
	OnTransition(ctx context.Context, c *models.Case, tr notify.Transition, d notify.Details) (notify.Message, bool)
}

// Coordinator drives cases through the stage sequence.
type Coordinator struct {
	cases     CaseStore
	documents DocumentStore
	gateway   Invoker
	validator Validator
	locker    lock.Locker
	audit     AuditRecorder
	tx        tx.Runner
	notifier  Notifier
	metrics   *casemetrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	screenLevels map[models.RiskLevel]bool
	rejectBelow  int
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *casemetrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithTx(runner tx.Runner) Option {
	return func(c *Coordinator) {
		c.tx = runner
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithScreeningLevels sets the risk levels that trigger sanction screening.
func WithScreeningLevels(levels ...models.RiskLevel) Option {
	return func(c *Coordinator) {
		c.screenLevels = make(map[models.RiskLevel]bool, len(levels))
		for _, l := range levels {
			c.screenLevels[l] = true
		}
	}
}

// WithRejectBelow sets the confidence under which a high-severity mismatch on
// a retried validation becomes a hard reject.
func WithRejectBelow(score int) Option {
	return func(c *Coordinator) {
		c.rejectBelow = score
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func New(
	cases CaseStore,
	documents DocumentStore,
	gateway Invoker,
	validator Validator,
	locker lock.Locker,
	recorder AuditRecorder,
	opts ...Option,
) (*Coordinator, error) {
	if cases == nil || documents == nil {
		return nil, errors.New("case and document stores are required")
	}
	if gateway == nil || validator == nil {
		return nil, errors.New("agent gateway and validator are required")
	}
	if locker == nil {
		return nil, errors.New("case locker is required")
	}
	if recorder == nil {
		return nil, errors.New("audit recorder is required")
	}
	c := &Coordinator{
		cases:     cases,
		documents: documents,
		gateway:   gateway,
		validator: validator,
		locker:    locker,
		audit:     recorder,
		tx:        tx.NewMemory(),
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		screenLevels: map[models.RiskLevel]bool{
			models.RiskMedium: true,
			models.RiskHigh:   true,
		},
		rejectBelow: 30,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Advance runs the pipeline for one case. A case already being processed is
// refused with a processing-in-progress conflict, never queued.
func (c *Coordinator) Advance(ctx context.Context, caseID id.CaseID) (models.Status, error) {
	release, err := c.locker.TryAcquire(ctx, caseID)
	if err != nil {
		if lock.IsConflict(err) {
			c.metrics.IncConcurrencyConflict()
		}
		return "", err
	}
	defer release()
	return c.AdvanceLocked(ctx, caseID)
}

// AdvanceLocked is Advance for callers that already hold the case lock.
func (c *Coordinator) AdvanceLocked(ctx context.Context, caseID id.CaseID) (models.Status, error) {
	ctx, span := c.tracer.Start(ctx, "kyc.pipeline.advance",
		trace.WithAttributes(attribute.String("case.id", caseID.String())))
	defer span.End()

	kycCase, err := c.cases.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.NewField(dErrors.CodeNotFound, "case_id", "case not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load case")
	}
	if kycCase.Status != models.StatusPending {
		return kycCase.Status, dErrors.NewField(dErrors.CodeStateTransition, "status",
			fmt.Sprintf("case is %s; only pending cases can be advanced", kycCase.Status))
	}
	if kycCase.HasUnresolvedWarnings() {
		return kycCase.Status, dErrors.NewField(dErrors.CodeStateTransition, "validation_warnings",
			"validation warnings must be accepted or resolved before processing")
	}

	status, err := c.run(ctx, kycCase)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline run failed")
		return "", err
	}
	span.SetAttributes(attribute.String("case.status", string(status)))
	return status, nil
}

// run executes the planned stages then synthesises a decision. A dispatched
// stage runs and persists on a detached context bounded by the gateway's own
// timeout; a cancelled caller stops the run before the next dispatch.
// Pipeline entries are recorded as the system actor.
func (c *Coordinator) run(ctx context.Context, kycCase *models.Case) (models.Status, error) {
	persistCtx := requestcontext.WithActor(context.WithoutCancel(ctx), requestcontext.SystemActor, "")
	docs, err := c.documents.FindByIDs(ctx, kycCase.DocumentIDs)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load case documents")
	}
	state := &runState{kycCase: kycCase, docs: docs}
	if requestcontext.IsHuman(ctx) {
		state.triggeredBy = requestcontext.Actor(ctx)
	}

	for _, stage := range planStages(kycCase, docs) {
		if stage == models.AgentSanctionScreening && !c.screenLevels[kycCase.RiskLevel] {
			if prev, ok := kycCase.LatestStep(stage); ok && prev.Outcome == models.OutcomeSkipped {
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			c.logger.WarnContext(ctx, "pipeline abandoned before dispatch",
				"case_id", kycCase.ID, "stage", stage)
			return kycCase.Status, dErrors.Wrap(err, dErrors.CodeTimeout, "pipeline run abandoned")
		}
		step, err := c.executeStage(persistCtx, state, stage)
		if err != nil {
			return "", err
		}
		if step.Status == models.StepError {
			break
		}
	}
	return c.decide(persistCtx, state)
}

type runState struct {
	kycCase     *models.Case
	docs        []*models.Document
	changed     []*models.Document
	triggeredBy string
}

type stageResult struct {
	outcome  models.StageOutcome
	payload  any
	agentID  string
	attempts int
}

// executeStage dispatches one stage, seals its step and persists the step,
// the case and an audit entry in one transaction. ctx must not carry the
// caller's cancellation.
func (c *Coordinator) executeStage(ctx context.Context, state *runState, stage models.AgentType) (models.ProcessingStep, error) {
	kycCase := state.kycCase
	stageCtx, span := c.tracer.Start(ctx, "kyc.stage."+string(stage),
		trace.WithAttributes(attribute.String("case.id", kycCase.ID.String())))
	defer span.End()

	step := models.NewStep(kycCase.ID, stage, c.now())
	riskBefore := kycCase.RiskLevel
	state.changed = nil

	res, stageErr := c.dispatch(stageCtx, state, stage)
	finished := c.now()
	if err := sealStep(step, res, stageErr, finished); err != nil {
		return models.ProcessingStep{}, err
	}
	if stageErr != nil {
		span.RecordError(stageErr)
		span.SetStatus(codes.Error, "stage failed")
	} else {
		span.SetAttributes(attribute.String("stage.outcome", string(res.outcome)))
	}
	kycCase.AppendStep(*step)
	kycCase.UpdatedAt = finished

	details := map[string]any{
		"step_id":     step.ID.String(),
		"agent_type":  string(stage),
		"agent_id":    step.AgentID,
		"status":      string(step.Status),
		"outcome":     string(step.Outcome),
		"attempts":    step.Attempts,
		"duration_ms": step.Duration.Milliseconds(),
	}
	if step.ErrorMessage != "" {
		details["error"] = step.ErrorMessage
	}
	if kycCase.RiskLevel != riskBefore {
		details["risk_level"] = map[string]any{"old": string(riskBefore), "new": string(kycCase.RiskLevel)}
	}
	if state.triggeredBy != "" {
		details["triggered_by"] = state.triggeredBy
	}

	err := c.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, d := range state.changed {
			if err := c.documents.Save(txCtx, d); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "save document")
			}
		}
		if err := c.cases.Save(txCtx, kycCase); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save case")
		}
		_, err := c.audit.Record(txCtx, kycCase.ID, audit.ActionStageExecuted, details)
		return err
	})
	if err != nil {
		return models.ProcessingStep{}, err
	}

	c.metrics.ObserveStage(stage, step.Status, step.Duration)
	c.logger.InfoContext(ctx, "stage executed",
		"case_id", kycCase.ID,
		"stage", stage,
		"status", step.Status,
		"outcome", step.Outcome,
		"duration_ms", step.Duration.Milliseconds(),
	)
	return *step, nil
}

// sealStep records a stage result or failure on step. Sealing a step twice is
// an invariant violation.
func sealStep(step *models.ProcessingStep, res stageResult, stageErr error, finished time.Time) error {
	if stageErr != nil {
		attempts := 1
		var aerr *agents.AgentError
		if errors.As(stageErr, &aerr) {
			step.AgentID = aerr.AgentID
			if aerr.Attempts > 0 {
				attempts = aerr.Attempts
			}
		}
		return step.Fail(stageErr.Error(), attempts, finished)
	}
	payload, err := marshalPayload(res.payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode stage payload")
	}
	step.AgentID = res.agentID
	return step.Complete(res.outcome, payload, res.attempts, finished)
}

// decide records the synthesis step and applies the resulting transition.
func (c *Coordinator) decide(persistCtx context.Context, state *runState) (models.Status, error) {
	kycCase := state.kycCase
	decision := Synthesize(kycCase)
	from := kycCase.Status
	to, err := statemachine.Evaluate(from, decision.Trigger, false)
	if err != nil {
		return "", err
	}

	now := c.now()
	step := models.NewStep(kycCase.ID, models.AgentDecisionSynthesis, now)
	step.AgentID = "coordinator"
	payload, err := marshalPayload(map[string]any{
		"trigger": decision.Trigger,
		"reasons": decision.Reasons,
		"status":  to,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode decision")
	}
	if err := step.Complete(decision.outcome(), payload, 1, now); err != nil {
		return "", err
	}
	kycCase.AppendStep(*step)
	kycCase.ApplyStatus(to, now)

	err = c.tx.RunInTx(persistCtx, func(txCtx context.Context) error {
		if err := c.cases.Save(txCtx, kycCase); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save case")
		}
		details := map[string]any{
			"step_id":    step.ID.String(),
			"agent_type": string(models.AgentDecisionSynthesis),
			"trigger":    string(decision.Trigger),
			"reasons":    decision.Reasons,
			"status":     map[string]any{"old": string(from), "new": string(to)},
			"risk_level": string(kycCase.RiskLevel),
		}
		if state.triggeredBy != "" {
			details["triggered_by"] = state.triggeredBy
		}
		_, err := c.audit.Record(txCtx, kycCase.ID, audit.ActionStageExecuted, details)
		return err
	})
	if err != nil {
		return "", err
	}

	c.metrics.ObserveTransition(from, to)
	c.logger.InfoContext(persistCtx, "case decided",
		"case_id", kycCase.ID,
		"from", from,
		"to", to,
		"trigger", decision.Trigger,
		"risk_level", kycCase.RiskLevel,
	)
	if c.notifier != nil {
		notes := ""
		if to == models.StatusManualReview {
			notes = kycCase.ValidationSummary
		}
		c.notifier.OnTransition(persistCtx, kycCase, notify.Transition{
			From: from, To: to, Trigger: decision.Trigger,
		}, notify.Details{Reason: decision.reason(), Notes: notes})
	}
	return to, nil
}
