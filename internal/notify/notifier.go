package notify

import (
	"context"
	"log/slog"

	"kycflow/internal/cases/models"
	"kycflow/internal/cases/statemachine"
	"kycflow/pkg/email"
	"kycflow/pkg/requestcontext"
)

// Transition is a status change the notifier may react to.
type Transition struct {
	From    models.Status
	To      models.Status
	Trigger statemachine.Trigger
	Human   bool
}

// Decide maps a transition to the message it warrants, if any. Archive and
// retry are internal and never reach the customer; only automated escalations
// to manual review produce a status update.
func Decide(tr Transition) (Template, bool) {
	switch tr.Trigger {
	case statemachine.TriggerArchive, statemachine.TriggerRetry:
		return "", false
	case statemachine.TriggerRequestInfo:
		return TemplateDocumentRequest, true
	}
	if tr.From == tr.To {
		return "", false
	}
	switch tr.To {
	case models.StatusApproved:
		return TemplateApproval, true
	case models.StatusRejected:
		return TemplateRejection, true
	case models.StatusManualReview:
		if !tr.Human {
			return TemplateStatusUpdate, true
		}
	}
	return "", false
}

// Details carries the transition-specific template inputs.
type Details struct {
	Reason            string
	Notes             string
	RequiredDocuments []string
}

// Metrics counts notification outcomes.
type Metrics interface {
	IncNotification(template, outcome string)
}

// Notifier decides and sends customer messages.
type Notifier struct {
	sender      Sender
	logger      *slog.Logger
	metrics     Metrics
	companyName string
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

func WithCompanyName(name string) Option {
	return func(n *Notifier) {
		if name != "" {
			n.companyName = name
		}
	}
}

func New(sender Sender, opts ...Option) *Notifier {
	n := &Notifier{
		sender:      sender,
		logger:      slog.Default(),
		companyName: "KYC Onboarding",
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OnTransition sends the message a transition warrants. Failures are logged
// and counted, never returned or retried.
func (n *Notifier) OnTransition(ctx context.Context, c *models.Case, tr Transition, d Details) (Message, bool) {
	if n == nil {
		return Message{}, false
	}
	tmpl, ok := Decide(tr)
	if !ok {
		return Message{}, false
	}
	p := n.baseParams(ctx, c)
	p.Reason = d.Reason
	p.AdditionalNotes = d.Notes
	p.RequiredDocuments = d.RequiredDocuments

	msg, err := n.Send(ctx, c, tmpl, p)
	if err != nil {
		n.logger.WarnContext(ctx, "customer notification failed",
			"case_id", c.ID,
			"template", tmpl,
			"error", err,
		)
		return Message{}, false
	}
	return msg, true
}

// Compose fills the case-derived params; callers add template-specific ones.
func (n *Notifier) Compose(ctx context.Context, c *models.Case) Params {
	return n.baseParams(ctx, c)
}

// Send renders and delivers one message and reports delivery failure to the
// caller.
func (n *Notifier) Send(ctx context.Context, c *models.Case, tmpl Template, p Params) (Message, error) {
	to, err := email.Normalize(c.Customer.Email)
	if err != nil {
		n.count(tmpl, "invalid_recipient")
		return Message{}, err
	}
	subject, body, err := Render(tmpl, p)
	if err != nil {
		n.count(tmpl, "render_failed")
		return Message{}, err
	}
	msg := Message{
		CaseID:      c.ID.String(),
		CustomerID:  c.CustomerID.String(),
		To:          to,
		Template:    tmpl,
		Subject:     subject,
		Body:        body,
		Params:      p,
		RequestedBy: requestcontext.Actor(ctx),
		RequestedAt: requestcontext.Now(ctx),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.count(tmpl, "failed")
		return Message{}, err
	}
	n.count(tmpl, "sent")
	n.logger.InfoContext(ctx, "customer notification sent",
		"case_id", c.ID,
		"template", tmpl,
	)
	return msg, nil
}

func (n *Notifier) baseParams(ctx context.Context, c *models.Case) Params {
	return Params{
		CustomerName: email.GreetingName(c.Customer.Name, c.Customer.Email),
		CustomerID:   c.CustomerID.String(),
		CaseID:       c.ID.String(),
		Status:       string(c.Status),
		RiskLevel:    string(c.RiskLevel),
		Date:         requestcontext.Now(ctx).Format("2006-01-02"),
		CompanyName:  n.companyName,
	}
}

func (n *Notifier) count(tmpl Template, outcome string) {
	if n.metrics != nil {
		n.metrics.IncNotification(string(tmpl), outcome)
	}
}
