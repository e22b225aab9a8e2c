// Package recorder appends case audit entries with fail-closed semantics:
// the write is synchronous and a failed append fails the calling operation,
// rolling back the mutation it describes when both share a transaction.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mssola/useragent"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/requestcontext"
)

// Metrics observes recorder outcomes. Implementations must be nil-safe.
type Metrics interface {
	IncRecorded(action audit.ActionType)
	IncPersistFailures()
}

// Recorder stamps entries with identity and client context from ctx and
// appends them to the store.
type Recorder struct {
	store   audit.Store
	logger  *slog.Logger
	metrics Metrics
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func New(store audit.Store, opts ...Option) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one entry. Human actions must carry a non-empty "note"
// detail; the check runs before anything is written.
func (r *Recorder) Record(ctx context.Context, caseID id.CaseID, action audit.ActionType, details map[string]any) (audit.Entry, error) {
	if caseID.IsNil() {
		return audit.Entry{}, fmt.Errorf("audit entry requires a case id")
	}
	if action == "" {
		return audit.Entry{}, fmt.Errorf("audit entry requires an action type")
	}
	if action.IsHumanAction() {
		if note, _ := details["note"].(string); strings.TrimSpace(note) == "" {
			return audit.Entry{}, dErrors.NewField(dErrors.CodeValidation, "note", "a justification note is required")
		}
	}
	if details == nil {
		details = map[string]any{}
	}

	entry := audit.Entry{
		LogID:         id.NewLogID(),
		CaseID:        caseID,
		Action:        action,
		PerformedBy:   requestcontext.Actor(ctx),
		Timestamp:     requestcontext.Now(ctx),
		Details:       details,
		IPAddress:     requestcontext.ClientIP(ctx),
		ClientContext: ClientContext(requestcontext.UserAgent(ctx)),
		RequestID:     requestcontext.RequestID(ctx),
	}

	if err := r.store.Append(ctx, entry); err != nil {
		if r.metrics != nil {
			r.metrics.IncPersistFailures()
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "audit append failed",
				"action", action,
				"case_id", caseID.String(),
				"error", err,
			)
		}
		return audit.Entry{}, fmt.Errorf("audit persistence failed: %w", err)
	}
	if r.metrics != nil {
		r.metrics.IncRecorded(action)
	}
	return entry, nil
}

// History reads a case's audit trail in append order.
func (r *Recorder) History(ctx context.Context, caseID id.CaseID, q audit.Query) ([]audit.Entry, error) {
	return r.store.History(ctx, caseID, q)
}

// ClientContext summarises a User-Agent header as "Browser version on OS".
func ClientContext(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		if name == "" {
			return "bot"
		}
		return "bot: " + name
	}
	name, version := ua.Browser()
	summary := strings.TrimSpace(name + " " + version)
	if os := ua.OS(); os != "" {
		if summary == "" {
			return os
		}
		summary += " on " + os
	}
	if ua.Mobile() {
		summary += " (mobile)"
	}
	if summary == "" {
		return userAgent
	}
	return summary
}
