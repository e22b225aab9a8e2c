package handler

import (
	"strings"

	dErrors "kycflow/pkg/domain-errors"
)

// ValidateDocumentRequest is the optional body of
// POST /documents/{document_id}/validate.
type ValidateDocumentRequest struct {
	UserData map[string]string `json:"user_data"`
}

// Validate implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ValidateDocumentRequest) Validate() error {
	for k, v := range r.UserData {
		if strings.TrimSpace(k) == "" {
			return dErrors.NewField(dErrors.CodeValidation, "user_data", "keys must not be empty")
		}
		r.UserData[k] = strings.TrimSpace(v)
	}
	return nil
}
