package local

import (
	"context"
	"strings"

	"kycflow/internal/agents"
	"kycflow/internal/cases/models"
)

// NewComplianceAgent checks document completeness and due-diligence
// requirements. Document validity is the validation stage's verdict and is
// not re-judged here.
func NewComplianceAgent() agents.Agent {
	return &base{
		id:        "local-compliance",
		agentType: models.AgentComplianceCheck,
		handle: func(_ context.Context, req agents.CaseRequest) (any, error) {
			var issues []string
			have := make(map[models.DocumentType]bool)
			decision := agents.ComplianceClear
			for _, d := range req.Documents {
				have[d.Type] = true
			}
			for _, required := range models.RequiredDocuments {
				if !have[required] {
					issues = append(issues, "missing "+string(required))
					decision = agents.ComplianceReview
				}
			}
			if req.PEPFlag && req.RiskLevel == models.RiskHigh {
				issues = append(issues, "politically exposed person requires enhanced due diligence")
				decision = agents.ComplianceReview
			}
			if req.RiskLevel == models.RiskHigh && strings.TrimSpace(req.Customer.SourceOfFunds) == "" {
				issues = append(issues, "high risk customer has not declared a source of funds")
				decision = agents.ComplianceReview
			}
			return agents.ComplianceResponse{
				Compliant: decision == agents.ComplianceClear,
				Decision:  decision,
				Issues:    issues,
			}, nil
		},
	}
}
