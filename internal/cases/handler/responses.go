package handler

import (
	"time"

	"kycflow/internal/cases/models"
	"kycflow/internal/cases/service"
	"kycflow/internal/notify"
)

// SubmitResponse is the HTTP response for POST /cases.
type SubmitResponse struct {
	CaseID             string                     `json:"case_id"`
	CustomerID         string                     `json:"customer_id"`
	Status             models.Status              `json:"status"`
	CustomerType       string                     `json:"customer_type,omitempty"`
	EstimatedRiskLevel models.RiskLevel           `json:"estimated_risk_level,omitempty"`
	DocumentIDs        []string                   `json:"document_ids"`
	Warnings           []models.ValidationWarning `json:"validation_warnings,omitempty"`
	Message            string                     `json:"message"`
}

func toSubmitResponse(res *service.SubmitResult) *SubmitResponse {
	c := res.Case
	docIDs := make([]string, 0, len(c.DocumentIDs))
	for _, d := range c.DocumentIDs {
		docIDs = append(docIDs, d.String())
	}
	msg := "case submitted"
	if len(res.Warnings) > 0 {
		msg = "case submitted with validation warnings; processing waits for review"
	}
	return &SubmitResponse{
		CaseID:             c.ID.String(),
		CustomerID:         c.CustomerID.String(),
		Status:             c.Status,
		CustomerType:       c.CustomerType,
		EstimatedRiskLevel: c.EstimatedRiskLevel,
		DocumentIDs:        docIDs,
		Warnings:           res.Warnings,
		Message:            msg,
	}
}

// CustomerStatusResponse is what the customer portal may see of a case.
type CustomerStatusResponse struct {
	CaseID      string        `json:"case_id"`
	CustomerID  string        `json:"customer_id"`
	Status      models.Status `json:"status"`
	SubmittedAt time.Time     `json:"submitted_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

func toCustomerStatus(c *models.Case) *CustomerStatusResponse {
	return &CustomerStatusResponse{
		CaseID:      c.ID.String(),
		CustomerID:  c.CustomerID.String(),
		Status:      c.Status,
		SubmittedAt: c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		CompletedAt: c.CompletedAt,
	}
}

// EmailResponse confirms a staff email was handed to delivery.
type EmailResponse struct {
	To          string          `json:"to"`
	Template    notify.Template `json:"template_type"`
	Subject     string          `json:"subject"`
	RequestedAt time.Time       `json:"requested_at"`
}

func toEmailResponse(msg *notify.Message) *EmailResponse {
	return &EmailResponse{
		To:          msg.To,
		Template:    msg.Template,
		Subject:     msg.Subject,
		RequestedAt: msg.RequestedAt,
	}
}
