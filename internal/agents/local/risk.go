package local

import (
	"context"
	"strings"

	"kycflow/internal/agents"
	"kycflow/internal/cases/models"
	"kycflow/internal/cases/profile"
)

// NewRiskAgent scores risk from the customer profile heuristics.
func NewRiskAgent() agents.Agent {
	return &base{
		id:        "local-risk",
		agentType: models.AgentRiskAnalysis,
		handle: func(_ context.Context, req agents.CaseRequest) (any, error) {
			customer := profile.Enrich(req.Customer, toDocuments(req.Documents))
			p := profile.Classify(customer, req.PEPFlag, documentTypes(req.Documents))
			return agents.RiskAnalysisResponse{
				RiskLevel:    strings.ToLower(string(p.EstimatedRisk)),
				RiskScore:    float64(p.Score),
				CustomerType: p.CustomerType,
				Factors:      p.Factors,
			}, nil
		},
	}
}
