package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"kycflow/internal/agents"
	"kycflow/internal/cases/models"
	"kycflow/internal/validation"
	dErrors "kycflow/pkg/domain-errors"
)

const validationEngineID = "validation-engine"

func (c *Coordinator) dispatch(ctx context.Context, state *runState, stage models.AgentType) (stageResult, error) {
	switch stage {
	case models.AgentDocumentValidation:
		return c.validateDocuments(ctx, state)
	case models.AgentRiskAnalysis:
		return c.analyseRisk(ctx, state)
	case models.AgentSanctionScreening:
		return c.screenSanctions(ctx, state)
	case models.AgentComplianceCheck:
		return c.checkCompliance(ctx, state)
	}
	return stageResult{}, dErrors.New(dErrors.CodeInternal, "unknown stage "+string(stage))
}

type documentVerdict struct {
	DocumentID   string                   `json:"document_id"`
	DocumentType models.DocumentType      `json:"document_type"`
	Status       models.DocumentStatus    `json:"validation_status"`
	HumanDecided bool                     `json:"human_decided,omitempty"`
	Result       *models.ValidationResult `json:"result,omitempty"`
}

type validationPayload struct {
	Documents []documentVerdict `json:"documents"`
	Summary   string            `json:"summary,omitempty"`
	Rejected  bool              `json:"hard_reject,omitempty"`
}

// validateDocuments runs the validation engine over every document a human
// has not already decided. Mismatches are ambiguous; a retried validation
// that still finds a high-severity mismatch below the reject score rejects.
func (c *Coordinator) validateDocuments(ctx context.Context, state *runState) (stageResult, error) {
	kycCase := state.kycCase
	retried := priorRuns(kycCase, models.AgentDocumentValidation) > 0

	var items []validation.Item
	var pending []*models.Document
	for _, d := range state.docs {
		if d.HumanValidated() {
			continue
		}
		items = append(items, validation.Item{DocumentID: d.ID.String(), Type: d.Type, Extracted: d.ExtractedData})
		pending = append(pending, d)
	}
	results := c.validator.ValidateAll(ctx, items, kycCase.Customer.Fields())

	byDoc := make(map[string]models.ValidationResult, len(results))
	failed := make(map[models.DocumentType]models.ValidationResult)
	hardReject := false
	for i, d := range pending {
		res := results[i]
		byDoc[d.ID.String()] = res
		d.ApplyAutomatedValidation(res)
		state.changed = append(state.changed, d)
		if !res.OverallMatch {
			failed[d.Type] = res
			if retried && res.ConfidenceScore < c.rejectBelow && res.HasHighSeverity() {
				hardReject = true
			}
		}
	}

	payload := validationPayload{}
	humanInvalid := false
	for _, d := range state.docs {
		v := documentVerdict{DocumentID: d.ID.String(), DocumentType: d.Type, Status: d.ValidationStatus}
		if res, ok := byDoc[d.ID.String()]; ok {
			v.Result = &res
		} else {
			v.HumanDecided = true
			if d.ValidationStatus == models.DocumentInvalid {
				humanInvalid = true
			}
		}
		payload.Documents = append(payload.Documents, v)
	}
	kycCase.ValidationSummary = validation.Summarize(failed)
	payload.Summary = kycCase.ValidationSummary
	payload.Rejected = hardReject

	outcome := models.OutcomeClean
	switch {
	case hardReject:
		outcome = models.OutcomeReject
	case len(failed) > 0 || humanInvalid:
		outcome = models.OutcomeAmbiguous
	}
	return stageResult{outcome: outcome, payload: payload, agentID: validationEngineID, attempts: 1}, nil
}

func (c *Coordinator) analyseRisk(ctx context.Context, state *runState) (stageResult, error) {
	kycCase := state.kycCase
	res, err := c.gateway.Invoke(ctx, models.AgentRiskAnalysis, caseRequest(state))
	if err != nil {
		return stageResult{}, err
	}
	var resp agents.RiskAnalysisResponse
	if err := json.Unmarshal(res.Payload, &resp); err != nil {
		return stageResult{}, badResponse(models.AgentRiskAnalysis, res, "decode risk response", err)
	}
	level, err := models.ParseRiskLevel(resp.RiskLevel)
	if err != nil || level == models.RiskUnset {
		return stageResult{}, badResponse(models.AgentRiskAnalysis, res, fmt.Sprintf("unknown risk level %q", resp.RiskLevel), err)
	}
	kycCase.EscalateRisk(level)
	if kycCase.CustomerType == "" {
		kycCase.CustomerType = resp.CustomerType
	}
	return stageResult{outcome: models.OutcomeClean, payload: res.Payload, agentID: res.AgentID, attempts: res.Attempts}, nil
}

// screenSanctions runs only for configured risk levels; otherwise it records
// an explicit skipped step.
func (c *Coordinator) screenSanctions(ctx context.Context, state *runState) (stageResult, error) {
	kycCase := state.kycCase
	if !c.screenLevels[kycCase.RiskLevel] {
		return stageResult{
			outcome:  models.OutcomeSkipped,
			payload:  map[string]any{"skipped": true, "risk_level": kycCase.RiskLevel},
			agentID:  "coordinator",
			attempts: 0,
		}, nil
	}
	res, err := c.gateway.Invoke(ctx, models.AgentSanctionScreening, caseRequest(state))
	if err != nil {
		return stageResult{}, err
	}
	var resp agents.SanctionScreeningResponse
	if err := json.Unmarshal(res.Payload, &resp); err != nil {
		return stageResult{}, badResponse(models.AgentSanctionScreening, res, "decode screening response", err)
	}
	outcome := models.OutcomeClean
	if resp.PEPMatch {
		kycCase.PEPFlag = true
		kycCase.EscalateRisk(models.RiskHigh)
	}
	if resp.SanctionHit {
		kycCase.EscalateRisk(models.RiskHigh)
		outcome = models.OutcomeReject
	}
	return stageResult{outcome: outcome, payload: res.Payload, agentID: res.AgentID, attempts: res.Attempts}, nil
}

func (c *Coordinator) checkCompliance(ctx context.Context, state *runState) (stageResult, error) {
	res, err := c.gateway.Invoke(ctx, models.AgentComplianceCheck, caseRequest(state))
	if err != nil {
		return stageResult{}, err
	}
	var resp agents.ComplianceResponse
	if err := json.Unmarshal(res.Payload, &resp); err != nil {
		return stageResult{}, badResponse(models.AgentComplianceCheck, res, "decode compliance response", err)
	}
	outcome := models.OutcomeAmbiguous
	switch resp.Decision {
	case agents.ComplianceReject:
		outcome = models.OutcomeReject
	case agents.ComplianceClear:
		outcome = models.OutcomeClean
	case "":
		if resp.Compliant {
			outcome = models.OutcomeClean
		}
	}
	return stageResult{outcome: outcome, payload: res.Payload, agentID: res.AgentID, attempts: res.Attempts}, nil
}

func caseRequest(state *runState) agents.CaseRequest {
	kycCase := state.kycCase
	docs := make([]agents.DocumentRef, 0, len(state.docs))
	for _, d := range state.docs {
		docs = append(docs, agents.DocumentRef{
			DocumentID:       d.ID.String(),
			Type:             d.Type,
			ValidationStatus: d.ValidationStatus,
			ExtractedData:    d.ExtractedData,
		})
	}
	return agents.CaseRequest{
		CaseID:     kycCase.ID.String(),
		CustomerID: kycCase.CustomerID.String(),
		Customer:   kycCase.Customer,
		Documents:  docs,
		RiskLevel:  kycCase.RiskLevel,
		PEPFlag:    kycCase.PEPFlag,
	}
}

// badResponse turns an undecodable answer into a permanent agent error.
func badResponse(stage models.AgentType, res *agents.Result, msg string, err error) error {
	aerr := agents.NewAgentError(agents.ErrorBadResponse, stage, msg, err)
	aerr.AgentID = res.AgentID
	aerr.Attempts = res.Attempts
	return aerr
}

func marshalPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	return json.Marshal(v)
}
