package notify_test

//go:generate mockgen -source=sender.go -destination=mocks/mocks.go -package=mocks Sender,Publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycflow/internal/cases/models"
	"kycflow/internal/cases/statemachine"
	"kycflow/internal/notify"
	"kycflow/internal/notify/mocks"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/requestcontext"
)

// =============================================================================
// Decision table
// =============================================================================
// Justification for unit tests: which transitions reach the customer is a pure
// mapping; every row is cheaper to pin here than through the pipeline.

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		tr     notify.Transition
		want   notify.Template
		wantOK bool
	}{
		{"automated approval", notify.Transition{From: models.StatusPending, To: models.StatusApproved, Trigger: statemachine.TriggerAllClear}, notify.TemplateApproval, true},
		{"human approval", notify.Transition{From: models.StatusManualReview, To: models.StatusApproved, Trigger: statemachine.TriggerApprove, Human: true}, notify.TemplateApproval, true},
		{"stage rejection", notify.Transition{From: models.StatusPending, To: models.StatusRejected, Trigger: statemachine.TriggerStageReject}, notify.TemplateRejection, true},
		{"automated escalation", notify.Transition{From: models.StatusPending, To: models.StatusManualReview, Trigger: statemachine.TriggerNeedsReview}, notify.TemplateStatusUpdate, true},
		{"human escalation is silent", notify.Transition{From: models.StatusApproved, To: models.StatusManualReview, Trigger: statemachine.TriggerEscalate, Human: true}, "", false},
		{"request info", notify.Transition{From: models.StatusPending, To: models.StatusPending, Trigger: statemachine.TriggerRequestInfo, Human: true}, notify.TemplateDocumentRequest, true},
		{"archive is silent", notify.Transition{From: models.StatusApproved, To: models.StatusArchived, Trigger: statemachine.TriggerArchive, Human: true}, "", false},
		{"retry is silent", notify.Transition{From: models.StatusRejected, To: models.StatusPending, Trigger: statemachine.TriggerRetry, Human: true}, "", false},
		{"submission is silent", notify.Transition{From: models.StatusSubmitted, To: models.StatusPending, Trigger: statemachine.TriggerDocumentsReceived}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := notify.Decide(tt.tr)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender(t *testing.T) {
	p := notify.Params{
		CustomerName:      "Jane Doe",
		CustomerID:        "CUST-1",
		RiskLevel:         "low",
		Date:              "2025-03-01",
		CompanyName:       "Acme Bank",
		RequiredDocuments: []string{"address_proof", "employment_proof"},
		Reason:            "address could not be verified",
	}

	t.Run("document request lists every document", func(t *testing.T) {
		subject, body, err := notify.Render(notify.TemplateDocumentRequest, p)
		require.NoError(t, err)
		assert.Equal(t, "Additional Documents Required", subject)
		assert.Contains(t, body, "- address_proof\n- employment_proof")
		assert.Contains(t, body, "Reason: address could not be verified")
		assert.Contains(t, body, "Acme Bank KYC Team")
	})

	t.Run("custom needs a message and honours the subject", func(t *testing.T) {
		_, _, err := notify.Render(notify.TemplateCustom, p)
		assert.Equal(t, "message", dErrors.FieldOf(err))

		custom := p
		custom.Message = "Please call us."
		custom.Subject = "Quick question"
		subject, body, err := notify.Render(notify.TemplateCustom, custom)
		require.NoError(t, err)
		assert.Equal(t, "Quick question", subject)
		assert.Contains(t, body, "Please call us.")
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := notify.ParseTemplate("newsletter")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Notifier
// =============================================================================

type NotifierSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	sender   *mocks.MockSender
	notifier *notify.Notifier
	kycCase  *models.Case
	ctx      context.Context
}

func TestNotifierSuite(t *testing.T) {
	suite.Run(t, new(NotifierSuite))
}

func (s *NotifierSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.sender = mocks.NewMockSender(s.ctrl)
	s.notifier = notify.New(s.sender,
		notify.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		notify.WithCompanyName("Acme Bank"),
	)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := models.NewCase("CUST-1", models.CustomerData{Name: "Jane Doe", Email: "Jane@Example.com"},
		[]id.DocumentID{id.NewDocumentID()}, now)
	s.Require().NoError(err)
	c.Status = models.StatusApproved
	c.RiskLevel = models.RiskLow
	s.kycCase = c
	s.ctx = requestcontext.WithTime(context.Background(), now)
}

func (s *NotifierSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *NotifierSuite) TestApprovalIsRenderedAndSent() {
	s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg notify.Message) error {
			s.Equal("jane@example.com", msg.To)
			s.Equal(notify.TemplateApproval, msg.Template)
			s.Equal("KYC Application Approved", msg.Subject)
			s.Contains(msg.Body, "Risk level: low")
			s.Contains(msg.Body, "Approved on: 2025-03-01")
			s.Equal(requestcontext.SystemActor, msg.RequestedBy)
			return nil
		})

	msg, sent := s.notifier.OnTransition(s.ctx, s.kycCase, notify.Transition{
		From: models.StatusPending, To: models.StatusApproved, Trigger: statemachine.TriggerAllClear,
	}, notify.Details{})
	s.True(sent)
	s.Equal(s.kycCase.ID.String(), msg.CaseID)
}

func (s *NotifierSuite) TestSenderFailureIsSwallowed() {
	s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

	_, sent := s.notifier.OnTransition(s.ctx, s.kycCase, notify.Transition{
		From: models.StatusPending, To: models.StatusRejected, Trigger: statemachine.TriggerStageReject,
	}, notify.Details{Reason: "sanction match"})
	s.False(sent)
}

func (s *NotifierSuite) TestSilentTransitionSendsNothing() {
	_, sent := s.notifier.OnTransition(s.ctx, s.kycCase, notify.Transition{
		From: models.StatusApproved, To: models.StatusArchived, Trigger: statemachine.TriggerArchive, Human: true,
	}, notify.Details{})
	s.False(sent)
}

func (s *NotifierSuite) TestInvalidRecipientFailsDirectSend() {
	s.kycCase.Customer.Email = "nobody"
	_, err := s.notifier.Send(s.ctx, s.kycCase, notify.TemplateStatusUpdate, s.notifier.Compose(s.ctx, s.kycCase))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestKafkaSender(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	sender := notify.NewKafkaSender(publisher, "kyc.notifications")

	publisher.EXPECT().Publish(gomock.Any(), "kyc.notifications", "CUST-1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, value []byte) error {
			var decoded notify.Message
			require.NoError(t, json.Unmarshal(value, &decoded))
			assert.Equal(t, notify.TemplateApproval, decoded.Template)
			return nil
		})

	require.NoError(t, sender.Send(context.Background(), notify.Message{CustomerID: "CUST-1", Template: notify.TemplateApproval}))
}
