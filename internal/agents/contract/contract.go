// Package contract is a conformance suite for agents.Agent implementations.
// Every adapter runs it from its own tests so local and remote agents behave
// the same way behind the gateway.
package contract

import (
	"context"
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/suite"

	"kycflow/internal/agents"
	"kycflow/internal/cases/models"
)

// Suite checks the behaviour the gateway relies on.
type Suite struct {
	suite.Suite

	// NewAgent builds a fresh agent for each test.
	NewAgent func(t *testing.T) agents.Agent
	// Request is a payload the agent must accept.
	Request any
	// Check inspects the answer to Request. Optional.
	Check func(t *testing.T, raw json.RawMessage)
}

// Run executes the suite against s.NewAgent.
func Run(t *testing.T, s *Suite) {
	t.Helper()
	if s.NewAgent == nil {
		t.Fatal("contract: NewAgent is required")
	}
	suite.Run(t, s)
}

func (s *Suite) TestIdentity() {
	a := s.NewAgent(s.T())
	s.NotEmpty(a.ID())
	s.True(slices.Contains(models.StageOrder, a.Type()), "unknown agent type %q", a.Type())
	s.NotEqual(models.AgentDecisionSynthesis, a.Type())
}

func (s *Suite) TestHealthy() {
	s.NoError(s.NewAgent(s.T()).Health(context.Background()))
}

func (s *Suite) TestAnswersWithJSONObject() {
	payload, err := json.Marshal(s.Request)
	s.Require().NoError(err)

	raw, err := s.NewAgent(s.T()).Invoke(context.Background(), payload)
	s.Require().NoError(err)

	var obj map[string]any
	s.Require().NoError(json.Unmarshal(raw, &obj), "answer must be a JSON object")
	if s.Check != nil {
		s.Check(s.T(), raw)
	}
}

// TestHonoursCancellation: a cancelled call fails instead of answering.
func (s *Suite) TestHonoursCancellation() {
	payload, err := json.Marshal(s.Request)
	s.Require().NoError(err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.NewAgent(s.T()).Invoke(ctx, payload)
	s.Error(err)
}
