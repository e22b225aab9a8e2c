package service

import (
	"context"

	"kycflow/internal/cases/models"
	"kycflow/internal/cases/statemachine"
	"kycflow/internal/notify"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
)

var reviewTriggers = map[models.ReviewAction]statemachine.Trigger{
	models.ReviewApprove:     statemachine.TriggerApprove,
	models.ReviewReject:      statemachine.TriggerReject,
	models.ReviewRequestInfo: statemachine.TriggerRequestInfo,
}

// ManualReview applies a reviewer decision. Approve and reject also accept any
// outstanding pre-submission warnings, since the reviewer has ruled on the
// case as a whole.
func (s *Service) ManualReview(ctx context.Context, caseID id.CaseID, req *models.ManualReviewRequest) (*models.Case, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	trigger := reviewTriggers[req.Action]

	var updated *models.Case
	var from models.Status
	err := s.withCaseLock(ctx, caseID, func() error {
		c, err := s.loadCase(ctx, caseID)
		if err != nil {
			return err
		}
		from = c.Status
		to, err := statemachine.Evaluate(from, trigger, true)
		if err != nil {
			return err
		}
		details := map[string]any{
			"action": string(req.Action),
			"note":   req.Notes,
			"status": change(string(from), string(to)),
		}
		if len(req.RequiredDocuments) > 0 {
			details["required_documents"] = req.RequiredDocuments
		}
		if req.Action != models.ReviewRequestInfo && c.HasUnresolvedWarnings() {
			details["accepted_warnings"] = len(c.Warnings)
			c.AcceptWarnings()
		}
		c.ApplyStatus(to, s.now(ctx))
		if err := s.commit(ctx, c, audit.ActionManualReview, details); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(from, updated.Status)
	s.logger.InfoContext(ctx, "manual review recorded",
		"case_id", caseID,
		"action", req.Action,
		"from", from,
		"to", updated.Status,
	)
	s.notifyTransition(ctx, updated, notify.Transition{
		From: from, To: updated.Status, Trigger: trigger, Human: true,
	}, notify.Details{
		Reason:            req.Notes,
		Notes:             req.Notes,
		RequiredDocuments: req.RequiredDocuments,
	})
	return updated, nil
}

// Retry re-opens a decided case and resumes the pipeline from the first stage
// that did not settle. Error steps are dropped from the case; the audit log
// keeps their record.
func (s *Service) Retry(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	var from models.Status
	err := s.withCaseLock(ctx, caseID, func() error {
		c, err := s.loadCase(ctx, caseID)
		if err != nil {
			return err
		}
		from = c.Status
		to, err := statemachine.Evaluate(from, statemachine.TriggerRetry, true)
		if err != nil {
			return err
		}
		cleared := c.ClearErrorSteps()
		c.ApplyStatus(to, s.now(ctx))
		if err := s.commit(ctx, c, audit.ActionRetryRequested, map[string]any{
			"status":              change(string(from), string(to)),
			"cleared_error_steps": cleared,
		}); err != nil {
			return err
		}
		s.metrics.ObserveTransition(from, to)
		s.logger.InfoContext(ctx, "retry requested",
			"case_id", caseID,
			"from", from,
			"cleared_error_steps", cleared,
		)
		if s.autoAdvance {
			s.advanceLocked(ctx, caseID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadCase(ctx, caseID)
}

// Process runs the pipeline for a pending case.
func (s *Service) Process(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	if _, err := s.pipeline.Advance(ctx, caseID); err != nil {
		return nil, err
	}
	return s.loadCase(ctx, caseID)
}

func (s *Service) advanceLocked(ctx context.Context, caseID id.CaseID) {
	status, err := s.pipeline.AdvanceLocked(ctx, caseID)
	if err != nil {
		s.logger.WarnContext(ctx, "pipeline did not complete",
			"case_id", caseID,
			"error", err,
		)
		return
	}
	s.logger.InfoContext(ctx, "pipeline completed",
		"case_id", caseID,
		"status", status,
	)
}

// Archive closes a case for good. Archiving twice is a state transition
// error and leaves the case untouched.
func (s *Service) Archive(ctx context.Context, caseID id.CaseID, req *models.NoteRequest) (*models.Case, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var updated *models.Case
	var from models.Status
	err := s.withCaseLock(ctx, caseID, func() error {
		c, err := s.loadCase(ctx, caseID)
		if err != nil {
			return err
		}
		from = c.Status
		to, err := statemachine.Evaluate(from, statemachine.TriggerArchive, true)
		if err != nil {
			return err
		}
		c.ApplyStatus(to, s.now(ctx))
		if err := s.commit(ctx, c, audit.ActionCaseArchived, map[string]any{
			"note":   req.Notes,
			"status": change(string(from), string(to)),
		}); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(from, updated.Status)
	s.logger.InfoContext(ctx, "case archived", "case_id", caseID, "from", from)
	return updated, nil
}

// UpdateCase applies a human override of risk, PEP flag, status or pending
// warnings. Lowering risk is only possible here. Accepting warnings on a
// pending case starts the pipeline.
func (s *Service) UpdateCase(ctx context.Context, caseID id.CaseID, req *models.UpdateCaseRequest) (*models.Case, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var updated *models.Case
	var transition *notify.Transition
	err := s.withCaseLock(ctx, caseID, func() error {
		c, err := s.loadCase(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status == models.StatusArchived {
			return dErrors.NewField(dErrors.CodeStateTransition, "status", "case is archived")
		}
		changes := map[string]any{}
		if level, ok := req.ParsedRiskLevel(); ok && level != c.RiskLevel {
			changes["risk_level"] = change(string(c.RiskLevel), string(level))
			c.OverrideRisk(level)
		}
		if req.PEPFlag != nil && *req.PEPFlag != c.PEPFlag {
			changes["pep_flag"] = change(c.PEPFlag, *req.PEPFlag)
			c.PEPFlag = *req.PEPFlag
		}
		if st, ok := req.ParsedStatus(); ok && st != c.Status {
			trigger, err := statemachine.TriggerForStatus(st)
			if err != nil {
				return err
			}
			to, err := statemachine.Evaluate(c.Status, trigger, true)
			if err != nil {
				return err
			}
			transition = &notify.Transition{From: c.Status, To: to, Trigger: trigger, Human: true}
			changes["status"] = change(string(c.Status), string(to))
			c.ApplyStatus(to, s.now(ctx))
		}
		acceptedWarnings := req.AcceptWarnings && c.HasUnresolvedWarnings()
		if acceptedWarnings {
			changes["validation_warnings"] = change(len(c.Warnings), 0)
			c.AcceptWarnings()
		}
		if len(changes) == 0 {
			return dErrors.New(dErrors.CodeValidation, "update does not change the case")
		}
		c.UpdatedAt = s.now(ctx)

		if err := s.commit(ctx, c, audit.ActionCaseUpdated, map[string]any{
			"note":             req.Notes,
			"changes":          changes,
			"archive_eligible": c.ArchiveEligible(),
		}); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "case updated",
			"case_id", caseID,
			"fields", len(changes),
		)
		if acceptedWarnings && c.Status == models.StatusPending && s.autoAdvance {
			s.advanceLocked(ctx, caseID)
			if c, err = s.loadCase(ctx, caseID); err != nil {
				return err
			}
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if transition != nil {
		s.metrics.ObserveTransition(transition.From, transition.To)
		s.notifyTransition(ctx, updated, *transition, notify.Details{Reason: req.Notes, Notes: req.Notes})
	}
	return updated, nil
}
