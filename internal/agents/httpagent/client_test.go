package httpagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/agents"
	"kycflow/internal/agents/contract"
	"kycflow/internal/cases/models"
)

func TestClient_Invoke(t *testing.T) {
	t.Run("posts envelope and returns body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer agent-token", r.Header.Get("Authorization"))
			var env struct {
				AgentType string          `json:"agent_type"`
				Payload   json.RawMessage `json:"payload"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
			assert.Equal(t, "sanction_screening", env.AgentType)
			assert.JSONEq(t, `{"name":"Jane Doe"}`, string(env.Payload))
			_, _ = w.Write([]byte(`{"sanction_hit":false}`))
		}))
		defer srv.Close()

		c := New("sanctions", models.AgentSanctionScreening, srv.URL, WithBearerToken("agent-token"))
		raw, err := c.Invoke(context.Background(), json.RawMessage(`{"name":"Jane Doe"}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"sanction_hit":false}`, string(raw))
	})

	statusCases := []struct {
		status    int
		category  agents.ErrorCategory
		retryable bool
	}{
		{http.StatusServiceUnavailable, agents.ErrorUnavailable, true},
		{http.StatusTooManyRequests, agents.ErrorRateLimited, true},
		{http.StatusUnprocessableEntity, agents.ErrorRejected, false},
	}
	for _, tc := range statusCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := New("x", models.AgentRiskAnalysis, srv.URL).Invoke(context.Background(), json.RawMessage(`{}`))
			require.Error(t, err)
			assert.Equal(t, tc.category, agents.CategoryOf(err))
			assert.Equal(t, tc.retryable, agents.IsRetryable(err))
		})
	}

	t.Run("non-json body is a bad response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>oops</html>`))
		}))
		defer srv.Close()

		_, err := New("x", models.AgentRiskAnalysis, srv.URL).Invoke(context.Background(), json.RawMessage(`{}`))
		assert.Equal(t, agents.ErrorBadResponse, agents.CategoryOf(err))
	})
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	assert.NoError(t, New("x", models.AgentRiskAnalysis, srv.URL).Health(context.Background()))
	assert.Error(t, New("x", models.AgentRiskAnalysis, srv.URL, WithHealthURL(srv.URL)).Health(context.Background()))
}

func TestClientContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(`{"compliant":true,"decision":"clear"}`))
	}))
	defer srv.Close()

	contract.Run(t, &contract.Suite{
		NewAgent: func(*testing.T) agents.Agent {
			return New("compliance-remote", models.AgentComplianceCheck, srv.URL+"/invoke", WithHealthURL(srv.URL+"/health"))
		},
		Request: agents.CaseRequest{CaseID: "case-1", CustomerID: "CUST-1"},
		Check: func(t *testing.T, raw json.RawMessage) {
			var resp agents.ComplianceResponse
			require.NoError(t, json.Unmarshal(raw, &resp))
			assert.True(t, resp.Compliant)
		},
	})
}
