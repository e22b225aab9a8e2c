package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/audit/store/memory"
	"kycflow/pkg/requestcontext"
)

type failingStore struct{ audit.Store }

func (failingStore) Append(context.Context, audit.Entry) error { return errors.New("db down") }

type countingMetrics struct {
	recorded map[audit.ActionType]int
	failures int
}

func (m *countingMetrics) IncRecorded(a audit.ActionType) { m.recorded[a]++ }
func (m *countingMetrics) IncPersistFailures()            { m.failures++ }

func TestRecorder_StampsContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	r := New(store)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithActor(context.Background(), "alice@bank.test", "reviewer")
	ctx = requestcontext.WithTime(ctx, now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.7",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	caseID := id.NewCaseID()
	entry, err := r.Record(ctx, caseID, audit.ActionCaseArchived, map[string]any{"note": "duplicate application"})
	require.NoError(t, err)

	assert.Equal(t, "alice@bank.test", entry.PerformedBy)
	assert.Equal(t, now, entry.Timestamp)
	assert.Equal(t, "10.0.0.7", entry.IPAddress)
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Contains(t, entry.ClientContext, "Chrome")

	history, err := r.History(ctx, caseID, audit.Query{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entry.LogID, history[0].LogID)
}

func TestRecorder_SystemActorByDefault(t *testing.T) {
	r := New(memory.NewInMemoryStore())
	entry, err := r.Record(context.Background(), id.NewCaseID(), audit.ActionStageExecuted, nil)
	require.NoError(t, err)
	assert.Equal(t, requestcontext.SystemActor, entry.PerformedBy)
	assert.NotNil(t, entry.Details)
}

func TestRecorder_HumanActionsRequireNote(t *testing.T) {
	store := memory.NewInMemoryStore()
	r := New(store)
	caseID := id.NewCaseID()

	_, err := r.Record(context.Background(), caseID, audit.ActionManualReview, map[string]any{"note": "  "})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "note", dErrors.FieldOf(err))

	history, _ := store.History(context.Background(), caseID, audit.Query{})
	assert.Empty(t, history)
}

func TestRecorder_FailClosed(t *testing.T) {
	m := &countingMetrics{recorded: map[audit.ActionType]int{}}
	r := New(failingStore{}, WithMetrics(m))
	_, err := r.Record(context.Background(), id.NewCaseID(), audit.ActionStageExecuted, nil)
	require.Error(t, err)
	assert.Equal(t, 1, m.failures)
	assert.Empty(t, m.recorded)
}

func TestClientContext(t *testing.T) {
	assert.Empty(t, ClientContext(""))
	assert.NotEmpty(t, ClientContext("curl/8.4.0"))
	assert.Contains(t, ClientContext("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"), "bot")
}
