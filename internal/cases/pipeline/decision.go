package pipeline

import (
	"strings"

	"kycflow/internal/cases/models"
	"kycflow/internal/cases/statemachine"
)

// Decision is the outcome of synthesising stage verdicts.
type Decision struct {
	Trigger statemachine.Trigger `json:"trigger"`
	Reasons []string             `json:"reasons,omitempty"`
}

// Synthesize combines the latest step of every stage. A reject from any stage
// wins, then a stage error, then any ambiguous verdict; only an all-clean
// history approves.
func Synthesize(c *models.Case) Decision {
	var rejects, errs, ambiguous []string
	for _, stage := range models.StageOrder {
		if stage == models.AgentDecisionSynthesis {
			continue
		}
		step, ok := c.LatestStep(stage)
		if !ok {
			ambiguous = append(ambiguous, string(stage)+" did not run")
			continue
		}
		switch {
		case step.Status == models.StepError:
			errs = append(errs, string(stage)+" failed: "+step.ErrorMessage)
		case step.Outcome == models.OutcomeReject:
			rejects = append(rejects, string(stage)+" rejected the application")
		case step.Outcome == models.OutcomeAmbiguous:
			ambiguous = append(ambiguous, string(stage)+" needs review")
		}
	}
	switch {
	case len(rejects) > 0:
		return Decision{Trigger: statemachine.TriggerStageReject, Reasons: rejects}
	case len(errs) > 0:
		return Decision{Trigger: statemachine.TriggerStageError, Reasons: errs}
	case len(ambiguous) > 0:
		return Decision{Trigger: statemachine.TriggerNeedsReview, Reasons: ambiguous}
	}
	return Decision{Trigger: statemachine.TriggerAllClear}
}

func (d Decision) outcome() models.StageOutcome {
	switch d.Trigger {
	case statemachine.TriggerAllClear:
		return models.OutcomeClean
	case statemachine.TriggerStageReject:
		return models.OutcomeReject
	}
	return models.OutcomeAmbiguous
}

func (d Decision) reason() string {
	return strings.Join(d.Reasons, "; ")
}
