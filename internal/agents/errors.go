package agents

import (
	"context"
	"errors"
	"fmt"

	"kycflow/internal/cases/models"
)

// ErrorCategory is the normalised failure taxonomy for agent calls.
type ErrorCategory string

const (
	// ErrorTimeout: the agent did not answer within the stage timeout.
	ErrorTimeout ErrorCategory = "timeout"
	// ErrorUnavailable: transport failure or 5xx-equivalent.
	ErrorUnavailable ErrorCategory = "unavailable"
	// ErrorRateLimited: the agent asked us to back off.
	ErrorRateLimited ErrorCategory = "rate_limited"
	// ErrorBadResponse: the answer was malformed or unparseable.
	ErrorBadResponse ErrorCategory = "bad_response"
	// ErrorRejected: the agent refused the request (4xx-equivalent).
	ErrorRejected ErrorCategory = "rejected"
	// ErrorNotConfigured: no agent is registered for the stage.
	ErrorNotConfigured ErrorCategory = "not_configured"
	ErrorInternal      ErrorCategory = "internal"
)

// AgentError wraps agent failures with a normalised category.
type AgentError struct {
	Category  ErrorCategory
	AgentType models.AgentType
	AgentID   string
	Message   string
	Attempts  int
	Err       error
	Retryable bool
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent %s [%s]: %s: %v", e.AgentType, e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("agent %s [%s]: %s", e.AgentType, e.Category, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a normalised error. Timeouts, outages and rate limits
// are transient; everything else is permanent.
func NewAgentError(category ErrorCategory, agentType models.AgentType, message string, err error) *AgentError {
	retryable := category == ErrorTimeout ||
		category == ErrorUnavailable ||
		category == ErrorRateLimited

	return &AgentError{
		Category:  category,
		AgentType: agentType,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// IsRetryable reports whether err is a transient agent failure.
func IsRetryable(err error) bool {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// CategoryOf extracts the category, defaulting to internal.
func CategoryOf(err error) ErrorCategory {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ErrorInternal
}

// normalize converts arbitrary agent errors into an AgentError.
func normalize(err error, agentType models.AgentType, agentID string) *AgentError {
	var ae *AgentError
	if errors.As(err, &ae) {
		cp := *ae
		if cp.AgentType == "" {
			cp.AgentType = agentType
		}
		if cp.AgentID == "" {
			cp.AgentID = agentID
		}
		return &cp
	}
	var out *AgentError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out = NewAgentError(ErrorTimeout, agentType, "agent call timed out", err)
	case errors.Is(err, context.Canceled):
		out = NewAgentError(ErrorInternal, agentType, "agent call cancelled", err)
	default:
		out = NewAgentError(ErrorUnavailable, agentType, "agent call failed", err)
	}
	out.AgentID = agentID
	return out
}

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrDuplicate     = errors.New("agent already registered")
)
