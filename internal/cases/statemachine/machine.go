// Package statemachine holds the case lifecycle as data: a guarded transition
// table keyed by (state, trigger) plus a single evaluator. It performs no I/O.
package statemachine

import (
	"fmt"

	"kycflow/internal/cases/models"
	dErrors "kycflow/pkg/domain-errors"
)

// Trigger is an event that may move a case between states.
type Trigger string

const (
	// Automated triggers fired by the pipeline.
	TriggerDocumentsReceived Trigger = "documents_received"
	TriggerNeedsReview       Trigger = "needs_review"
	TriggerStageError        Trigger = "stage_error"
	TriggerStageReject       Trigger = "stage_reject"
	TriggerAllClear          Trigger = "all_clear"

	// Human triggers.
	TriggerApprove     Trigger = "approve"
	TriggerReject      Trigger = "reject"
	TriggerRequestInfo Trigger = "request_info"
	TriggerEscalate    Trigger = "escalate"
	TriggerRetry       Trigger = "retry"
	TriggerArchive     Trigger = "archive"
)

type key struct {
	from    models.Status
	trigger Trigger
}

type rule struct {
	to        models.Status
	humanOnly bool
}

var (
	s = struct {
		submitted, pending, approved, rejected, review, archived models.Status
	}{
		models.StatusSubmitted, models.StatusPending, models.StatusApproved,
		models.StatusRejected, models.StatusManualReview, models.StatusArchived,
	}

	table = map[key]rule{
		{s.submitted, TriggerDocumentsReceived}: {to: s.pending},

		{s.pending, TriggerNeedsReview}: {to: s.review},
		{s.pending, TriggerStageError}:  {to: s.review},
		{s.pending, TriggerStageReject}: {to: s.rejected},
		{s.pending, TriggerAllClear}:    {to: s.approved},

		{s.pending, TriggerApprove}:     {to: s.approved, humanOnly: true},
		{s.pending, TriggerReject}:      {to: s.rejected, humanOnly: true},
		{s.pending, TriggerRequestInfo}: {to: s.pending, humanOnly: true},
		{s.pending, TriggerEscalate}:    {to: s.review, humanOnly: true},

		{s.review, TriggerApprove}:     {to: s.approved, humanOnly: true},
		{s.review, TriggerReject}:      {to: s.rejected, humanOnly: true},
		{s.review, TriggerRequestInfo}: {to: s.pending, humanOnly: true},
		{s.review, TriggerRetry}:       {to: s.pending, humanOnly: true},

		{s.approved, TriggerReject}:   {to: s.rejected, humanOnly: true},
		{s.approved, TriggerEscalate}: {to: s.review, humanOnly: true},
		{s.approved, TriggerRetry}:    {to: s.pending, humanOnly: true},

		{s.rejected, TriggerApprove}:     {to: s.approved, humanOnly: true},
		{s.rejected, TriggerEscalate}:    {to: s.review, humanOnly: true},
		{s.rejected, TriggerRequestInfo}: {to: s.pending, humanOnly: true},
		{s.rejected, TriggerRetry}:       {to: s.pending, humanOnly: true},

		{s.submitted, TriggerArchive}: {to: s.archived, humanOnly: true},
		{s.pending, TriggerArchive}:   {to: s.archived, humanOnly: true},
		{s.review, TriggerArchive}:    {to: s.archived, humanOnly: true},
		{s.approved, TriggerArchive}:  {to: s.archived, humanOnly: true},
		{s.rejected, TriggerArchive}:  {to: s.archived, humanOnly: true},
	}
)

// Evaluate returns the state reached by firing trigger from the current state.
// Human-only triggers fail when human is false. Archived is absorbing.
func Evaluate(from models.Status, trigger Trigger, human bool) (models.Status, error) {
	if from == models.StatusArchived {
		return from, dErrors.NewField(dErrors.CodeStateTransition, "status", "case is archived")
	}
	r, ok := table[key{from, trigger}]
	if !ok {
		return from, dErrors.NewField(dErrors.CodeStateTransition, "status",
			fmt.Sprintf("%s is not allowed from %s", trigger, from))
	}
	if r.humanOnly && !human {
		return from, dErrors.NewField(dErrors.CodeStateTransition, "status",
			fmt.Sprintf("%s requires a human actor", trigger))
	}
	return r.to, nil
}

// Allowed reports whether Evaluate would succeed.
func Allowed(from models.Status, trigger Trigger, human bool) bool {
	_, err := Evaluate(from, trigger, human)
	return err == nil
}

// TriggerForStatus maps a requested target status from a human override to
// the trigger that reaches it.
func TriggerForStatus(to models.Status) (Trigger, error) {
	switch to {
	case models.StatusApproved:
		return TriggerApprove, nil
	case models.StatusRejected:
		return TriggerReject, nil
	case models.StatusManualReview:
		return TriggerEscalate, nil
	case models.StatusPending:
		return TriggerRequestInfo, nil
	case models.StatusArchived:
		return TriggerArchive, nil
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "status", "cannot be set directly to "+string(to))
}

// Edges lists every legal (from, trigger, to) triple. Used by property tests
// and the admin docs endpoint.
func Edges() []Edge {
	out := make([]Edge, 0, len(table))
	for k, r := range table {
		out = append(out, Edge{From: k.from, Trigger: k.trigger, To: r.to, HumanOnly: r.humanOnly})
	}
	return out
}

// Edge is one row of the transition table.
type Edge struct {
	From      models.Status `json:"from"`
	Trigger   Trigger       `json:"trigger"`
	To        models.Status `json:"to"`
	HumanOnly bool          `json:"human_only"`
}
