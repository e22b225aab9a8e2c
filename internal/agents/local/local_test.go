package local

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/agents"
	"kycflow/internal/agents/contract"
	"kycflow/internal/cases/models"
)

func invoke[T any](t *testing.T, a agents.Agent, req agents.CaseRequest) T {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	raw, err := a.Invoke(context.Background(), payload)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func fullDocs(status models.DocumentStatus) []agents.DocumentRef {
	var refs []agents.DocumentRef
	for _, t := range models.RequiredDocuments {
		refs = append(refs, agents.DocumentRef{Type: t, ValidationStatus: status})
	}
	return refs
}

const watchlistYAML = `
watchlist:
  - name: Viktor Sanctioned
    aliases: ["V. Sanctioned"]
    list: OFAC
    reason: asset freeze
  - name: Paula Minister
    list: PEP
    pep: true
`

func TestSanctionsAgent(t *testing.T) {
	entries, err := ParseWatchlist([]byte(watchlistYAML))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	a := NewSanctionsAgent(entries)
	assert.Equal(t, models.AgentSanctionScreening, a.Type())

	t.Run("sanction hit ignores case and order", func(t *testing.T) {
		resp := invoke[agents.SanctionScreeningResponse](t, a, agents.CaseRequest{Customer: models.CustomerData{Name: "sanctioned  VIKTOR"}})
		assert.True(t, resp.SanctionHit)
		assert.False(t, resp.PEPMatch)
		require.Len(t, resp.Matches, 1)
		assert.Equal(t, "OFAC", resp.Matches[0].List)
	})
	t.Run("alias match", func(t *testing.T) {
		resp := invoke[agents.SanctionScreeningResponse](t, a, agents.CaseRequest{Customer: models.CustomerData{Name: "V. Sanctioned"}})
		assert.True(t, resp.SanctionHit)
	})
	t.Run("pep match", func(t *testing.T) {
		resp := invoke[agents.SanctionScreeningResponse](t, a, agents.CaseRequest{Customer: models.CustomerData{Name: "Paula Minister"}})
		assert.False(t, resp.SanctionHit)
		assert.True(t, resp.PEPMatch)
	})
	t.Run("no match", func(t *testing.T) {
		resp := invoke[agents.SanctionScreeningResponse](t, a, agents.CaseRequest{Customer: models.CustomerData{Name: "Jane Doe"}})
		assert.False(t, resp.SanctionHit)
		assert.Empty(t, resp.Matches)
	})
}

func TestParseWatchlist_RequiresName(t *testing.T) {
	_, err := ParseWatchlist([]byte("watchlist:\n  - list: OFAC\n"))
	require.Error(t, err)
}

func TestRiskAgent(t *testing.T) {
	a := NewRiskAgent()
	resp := invoke[agents.RiskAnalysisResponse](t, a, agents.CaseRequest{
		Customer:  models.CustomerData{Name: "Jane", AnnualIncome: 50000},
		Documents: fullDocs(models.DocumentValid),
	})
	assert.Equal(t, "low", resp.RiskLevel)
	assert.Equal(t, "Individual", resp.CustomerType)

	resp = invoke[agents.RiskAnalysisResponse](t, a, agents.CaseRequest{
		Customer:  models.CustomerData{Name: "Paula"},
		Documents: fullDocs(models.DocumentValid),
		PEPFlag:   true,
	})
	assert.Equal(t, "high", resp.RiskLevel)
}

func TestComplianceAgent(t *testing.T) {
	a := NewComplianceAgent()

	resp := invoke[agents.ComplianceResponse](t, a, agents.CaseRequest{Documents: fullDocs(models.DocumentValid), RiskLevel: models.RiskLow})
	assert.Equal(t, agents.ComplianceClear, resp.Decision)
	assert.True(t, resp.Compliant)

	resp = invoke[agents.ComplianceResponse](t, a, agents.CaseRequest{Documents: fullDocs(models.DocumentValid)[:1]})
	assert.Equal(t, agents.ComplianceReview, resp.Decision)
	assert.Len(t, resp.Issues, 2)

	resp = invoke[agents.ComplianceResponse](t, a, agents.CaseRequest{Documents: fullDocs(models.DocumentValid), PEPFlag: true, RiskLevel: models.RiskHigh})
	assert.Equal(t, agents.ComplianceReview, resp.Decision)

	resp = invoke[agents.ComplianceResponse](t, a, agents.CaseRequest{Documents: fullDocs(models.DocumentInvalid), RiskLevel: models.RiskMedium})
	assert.Equal(t, agents.ComplianceClear, resp.Decision, "document validity belongs to the validation stage")

	resp = invoke[agents.ComplianceResponse](t, a, agents.CaseRequest{Documents: fullDocs(models.DocumentValid), RiskLevel: models.RiskHigh})
	assert.Equal(t, agents.ComplianceReview, resp.Decision)
	assert.Contains(t, resp.Issues, "high risk customer has not declared a source of funds")

	resp = invoke[agents.ComplianceResponse](t, a, agents.CaseRequest{
		Customer:  models.CustomerData{SourceOfFunds: "salary"},
		Documents: fullDocs(models.DocumentValid),
		RiskLevel: models.RiskHigh,
	})
	assert.Equal(t, agents.ComplianceClear, resp.Decision)
}

func TestInvoke_RejectsMalformedPayload(t *testing.T) {
	_, err := NewComplianceAgent().Invoke(context.Background(), json.RawMessage(`[1,2]`))
	require.Error(t, err)
	assert.Equal(t, agents.ErrorRejected, agents.CategoryOf(err))
}

func TestLocalAgentsContract(t *testing.T) {
	req := agents.CaseRequest{
		CaseID:     "case-1",
		CustomerID: "CUST-1",
		Customer:   models.CustomerData{Name: "Jane Doe", AnnualIncome: 85000},
		Documents:  fullDocs(models.DocumentValid),
		RiskLevel:  models.RiskLow,
	}
	factories := map[string]func(*testing.T) agents.Agent{
		"risk":       func(*testing.T) agents.Agent { return NewRiskAgent() },
		"compliance": func(*testing.T) agents.Agent { return NewComplianceAgent() },
		"sanctions":  func(*testing.T) agents.Agent { return NewSanctionsAgent(nil) },
	}
	for name, newAgent := range factories {
		t.Run(name, func(t *testing.T) {
			contract.Run(t, &contract.Suite{NewAgent: newAgent, Request: req})
		})
	}
}
