package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "kycflow/pkg/domain-errors"
)

// Typed identifiers. Distinct types keep a DocumentID from being passed where
// a CaseID is expected.
type (
	CaseID     uuid.UUID
	DocumentID uuid.UUID
	StepID     uuid.UUID
	LogID      uuid.UUID
)

// CustomerID is the customer-facing reference (e.g. "CUST-1A2B3C4D").
type CustomerID string

func NewCaseID() CaseID         { return CaseID(uuid.New()) }
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }
func NewStepID() StepID         { return StepID(uuid.New()) }
func NewLogID() LogID           { return LogID(uuid.New()) }

func (id CaseID) String() string     { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id StepID) String() string     { return uuid.UUID(id).String() }
func (id LogID) String() string      { return uuid.UUID(id).String() }
func (id CustomerID) String() string { return string(id) }

func (id CaseID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id CaseID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id StepID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id LogID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func (id *CaseID) UnmarshalText(b []byte) error {
	parsed, err := ParseCaseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDocumentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.NewField(dErrors.CodeInvalidInput, kind, "is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.NewField(dErrors.CodeInvalidInput, kind, "is too long")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.NewField(dErrors.CodeInvalidInput, kind, "must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.NewField(dErrors.CodeInvalidInput, kind, "must not be the nil UUID")
	}
	return parsed, nil
}

func ParseCaseID(s string) (CaseID, error) {
	u, err := parseUUID("case_id", s)
	return CaseID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID("document_id", s)
	return DocumentID(u), err
}

func ParseStepID(s string) (StepID, error) {
	u, err := parseUUID("step_id", s)
	return StepID(u), err
}

func ParseLogID(s string) (LogID, error) {
	u, err := parseUUID("log_id", s)
	return LogID(u), err
}

// NewCustomerID derives a short customer reference from a fresh UUID.
func NewCustomerID() CustomerID {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return CustomerID("CUST-" + strings.ToUpper(raw[:8]))
}

// ParseCustomerID validates the customer reference format.
func ParseCustomerID(s string) (CustomerID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.NewField(dErrors.CodeInvalidInput, "customer_id", "is required")
	}
	if len(s) > 64 {
		return "", dErrors.NewField(dErrors.CodeInvalidInput, "customer_id", "is too long")
	}
	for _, r := range s {
		if !(r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return "", dErrors.NewField(dErrors.CodeInvalidInput, "customer_id", "contains invalid characters")
		}
	}
	return CustomerID(s), nil
}
