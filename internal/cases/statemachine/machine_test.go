package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/cases/models"
	dErrors "kycflow/pkg/domain-errors"
)

var allTriggers = []Trigger{
	TriggerDocumentsReceived, TriggerNeedsReview, TriggerStageError, TriggerStageReject,
	TriggerAllClear, TriggerApprove, TriggerReject, TriggerRequestInfo, TriggerEscalate,
	TriggerRetry, TriggerArchive,
}

func TestEvaluate_EveryOutcomeIsAValidStatus(t *testing.T) {
	for _, from := range models.AllStatuses {
		for _, trig := range allTriggers {
			for _, human := range []bool{true, false} {
				to, err := Evaluate(from, trig, human)
				assert.True(t, to.IsValid(), "%s --%s--> %s", from, trig, to)
				if err != nil {
					assert.Equal(t, from, to, "failed transitions leave the state unchanged")
					assert.True(t, dErrors.HasCode(err, dErrors.CodeStateTransition))
				}
			}
		}
	}
}

func TestArchivedIsAbsorbing(t *testing.T) {
	for _, trig := range allTriggers {
		_, err := Evaluate(models.StatusArchived, trig, true)
		require.Error(t, err, trig)
	}
}

func TestArchiveIsHumanOnly(t *testing.T) {
	for _, from := range []models.Status{models.StatusSubmitted, models.StatusPending, models.StatusManualReview, models.StatusApproved, models.StatusRejected} {
		_, err := Evaluate(from, TriggerArchive, false)
		assert.Error(t, err, from)

		to, err := Evaluate(from, TriggerArchive, true)
		require.NoError(t, err, from)
		assert.Equal(t, models.StatusArchived, to)
	}
}

func TestRetryFromReopenableStates(t *testing.T) {
	tests := []struct {
		from    models.Status
		allowed bool
	}{
		{models.StatusManualReview, true},
		{models.StatusRejected, true},
		{models.StatusApproved, true},
		{models.StatusPending, false},
		{models.StatusSubmitted, false},
		{models.StatusArchived, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			to, err := Evaluate(tt.from, TriggerRetry, true)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, models.StatusPending, to)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAutomatedRejectOnlyFromPending(t *testing.T) {
	to, err := Evaluate(models.StatusPending, TriggerStageReject, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, to)

	to, err = Evaluate(models.StatusPending, TriggerStageError, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusManualReview, to, "a stage error never rejects")

	_, err = Evaluate(models.StatusManualReview, TriggerStageReject, false)
	assert.Error(t, err)
}

func TestEdgesCoverTable(t *testing.T) {
	edges := Edges()
	assert.Len(t, edges, len(table))
	for _, e := range edges {
		to, err := Evaluate(e.From, e.Trigger, true)
		require.NoError(t, err)
		assert.Equal(t, e.To, to)
	}
}

func TestTriggerForStatus(t *testing.T) {
	trig, err := TriggerForStatus(models.StatusManualReview)
	require.NoError(t, err)
	assert.Equal(t, TriggerEscalate, trig)

	_, err = TriggerForStatus(models.StatusSubmitted)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
