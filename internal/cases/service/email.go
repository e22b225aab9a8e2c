package service

import (
	"context"

	"kycflow/internal/cases/models"
	"kycflow/internal/notify"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
)

// SendEmail sends a staff-initiated customer email and audits it. Delivery is
// attempted once.
func (s *Service) SendEmail(ctx context.Context, caseID id.CaseID, req *models.SendEmailRequest) (*notify.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tmpl, err := notify.ParseTemplate(req.Template)
	if err != nil {
		return nil, err
	}
	if s.notifier == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "customer notifications are not configured")
	}
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	p := s.notifier.Compose(ctx, c)
	p.Subject = req.Subject
	p.Message = req.Message
	p.Reason = req.Reason
	p.RequiredDocuments = req.RequiredDocuments
	p.AdditionalNotes = req.AdditionalNotes

	msg, err := s.notifier.Send(ctx, c, tmpl, p)
	if err != nil {
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return nil, err
		}
		s.logger.WarnContext(ctx, "staff email delivery failed",
			"case_id", caseID,
			"template", tmpl,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "email delivery failed")
	}

	if _, err := s.audit.Record(ctx, caseID, audit.ActionEmailSent, map[string]any{
		"note":     req.Notes,
		"template": string(tmpl),
		"subject":  msg.Subject,
		"to":       msg.To,
	}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "staff email sent",
		"case_id", caseID,
		"template", tmpl,
	)
	return &msg, nil
}
