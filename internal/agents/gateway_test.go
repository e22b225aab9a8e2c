package agents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"kycflow/internal/cases/models"
	"kycflow/pkg/platform/circuit"
)

type GatewaySuite struct {
	suite.Suite
	registry *Registry
	calls    atomic.Int32
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.registry = NewRegistry()
	s.calls.Store(0)
}

func (s *GatewaySuite) gateway(opts ...GatewayOption) *Gateway {
	base := []GatewayOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetryBackoff(0),
		WithTimeout(50 * time.Millisecond),
	}
	return NewGateway(s.registry, append(base, opts...)...)
}

func (s *GatewaySuite) register(fn func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)) {
	s.Require().NoError(s.registry.Register(&FuncAgent{
		AgentID:   "risk-test",
		AgentType: models.AgentRiskAnalysis,
		Fn: func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
			s.calls.Add(1)
			return fn(ctx, payload)
		},
	}))
}

func (s *GatewaySuite) TestSuccessOnFirstAttempt() {
	s.register(func(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var in map[string]string
		s.Require().NoError(json.Unmarshal(payload, &in))
		s.Equal("case-1", in["case_id"])
		return json.RawMessage(`{"risk_level":"low"}`), nil
	})

	res, err := s.gateway().Invoke(context.Background(), models.AgentRiskAnalysis, map[string]string{"case_id": "case-1"})
	s.Require().NoError(err)
	s.Equal(1, res.Attempts)
	s.Equal("risk-test", res.AgentID)
	s.JSONEq(`{"risk_level":"low"}`, string(res.Payload))
}

func (s *GatewaySuite) TestTransientFailureRetriedOnce() {
	s.register(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		if s.calls.Load() == 1 {
			return nil, NewAgentError(ErrorUnavailable, models.AgentRiskAnalysis, "503", nil)
		}
		return json.RawMessage(`{"risk_level":"medium"}`), nil
	})

	res, err := s.gateway().Invoke(context.Background(), models.AgentRiskAnalysis, nil)
	s.Require().NoError(err)
	s.Equal(2, res.Attempts)
	s.Equal(int32(2), s.calls.Load())
}

func (s *GatewaySuite) TestSecondTransientFailureIsReturned() {
	s.register(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("connection reset")
	})

	_, err := s.gateway().Invoke(context.Background(), models.AgentRiskAnalysis, nil)
	s.Require().Error(err)
	s.Equal(int32(2), s.calls.Load(), "exactly one automatic retry")

	var aerr *AgentError
	s.Require().ErrorAs(err, &aerr)
	s.Equal(ErrorUnavailable, aerr.Category)
	s.Equal(2, aerr.Attempts)
	s.Equal("risk-test", aerr.AgentID)
}

func (s *GatewaySuite) TestTimeoutIsTransient() {
	s.register(func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := s.gateway(WithTimeout(5*time.Millisecond)).Invoke(context.Background(), models.AgentRiskAnalysis, nil)
	s.Require().Error(err)
	s.Equal(ErrorTimeout, CategoryOf(err))
	s.Equal(int32(2), s.calls.Load())
}

func (s *GatewaySuite) TestMalformedResponseIsPermanent() {
	s.register(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`I think the risk is low`), nil
	})

	_, err := s.gateway().Invoke(context.Background(), models.AgentRiskAnalysis, nil)
	s.Require().Error(err)
	s.Equal(ErrorBadResponse, CategoryOf(err))
	s.False(IsRetryable(err))
	s.Equal(int32(1), s.calls.Load(), "permanent errors are not retried")
}

func (s *GatewaySuite) TestUnregisteredAgent() {
	_, err := s.gateway().Invoke(context.Background(), models.AgentComplianceCheck, nil)
	s.Require().Error(err)
	s.Equal(ErrorNotConfigured, CategoryOf(err))
	s.ErrorIs(err, ErrAgentNotFound)
}

func (s *GatewaySuite) TestOpenBreakerShortCircuits() {
	s.register(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("down")
	})
	g := s.gateway(WithBreakerOptions(circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)))

	_, err := g.Invoke(context.Background(), models.AgentRiskAnalysis, nil)
	s.Require().Error(err)
	s.Equal("open", g.BreakerState()[models.AgentRiskAnalysis])

	_, err = g.Invoke(context.Background(), models.AgentRiskAnalysis, nil)
	s.Require().Error(err)
	s.Equal(int32(2), s.calls.Load(), "no call while the breaker is open")
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	agent := &FuncAgent{AgentID: "a", AgentType: models.AgentSanctionScreening}
	require.NoError(t, r.Register(agent))
	assert.ErrorIs(t, r.Register(agent), ErrDuplicate)
	assert.Equal(t, []models.AgentType{models.AgentSanctionScreening}, r.Types())
}

func TestNormalize(t *testing.T) {
	err := normalize(context.DeadlineExceeded, models.AgentRiskAnalysis, "x")
	assert.Equal(t, ErrorTimeout, err.Category)
	assert.True(t, err.Retryable)

	err = normalize(NewAgentError(ErrorRejected, "", "bad request", nil), models.AgentRiskAnalysis, "x")
	assert.Equal(t, models.AgentRiskAnalysis, err.AgentType)
	assert.False(t, err.Retryable)
}
