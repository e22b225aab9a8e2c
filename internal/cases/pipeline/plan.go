package pipeline

import (
	"kycflow/internal/cases/models"
)

// planStages returns the stages to dispatch on this run. A stage whose latest
// step is settled is reused; everything else runs again. Sanction screening is
// decided later, once risk analysis has run, and is always part of the plan
// unless a real screening already settled it. A settled validation is reused
// only while every current document is still valid: a re-upload or a human
// invalidation reopens it.
func planStages(c *models.Case, docs []*models.Document) []models.AgentType {
	var plan []models.AgentType
	for _, stage := range models.StageOrder {
		if stage == models.AgentDecisionSynthesis {
			continue
		}
		step, ok := c.LatestStep(stage)
		reuse := ok && step.Settled()
		switch stage {
		case models.AgentSanctionScreening:
			reuse = reuse && step.Outcome != models.OutcomeSkipped
		case models.AgentDocumentValidation:
			reuse = reuse && allValid(docs)
		}
		if !reuse {
			plan = append(plan, stage)
		}
	}
	return plan
}

func allValid(docs []*models.Document) bool {
	for _, d := range docs {
		if d.ValidationStatus != models.DocumentValid {
			return false
		}
	}
	return true
}

// priorRuns counts earlier steps of stage, used to recognise a retried stage.
func priorRuns(c *models.Case, stage models.AgentType) int {
	n := 0
	for _, s := range c.Steps {
		if s.AgentType == stage {
			n++
		}
	}
	return n
}
